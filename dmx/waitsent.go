package dmx

import "time"

// WaitSent blocks until no frame is in flight (§4.7). wait < 0 blocks
// indefinitely, wait == 0 polls without blocking, wait > 0 bounds the
// block. Returns false on timeout.
func (d *Driver) WaitSent(wait time.Duration) bool {
	d.mux.Lock()
	defer d.mux.Unlock()
	return d.waitSentLocked(wait)
}

// waitSentLocked is WaitSent's body, assuming d.mux is already held. Send
// and Receive call this instead of WaitSent, which is how this package
// realizes the "recursive mutex" §3 documents for mux: a public entry
// point that locks once, and an internal already-locked helper the public
// entry points share.
func (d *Driver) waitSentLocked(wait time.Duration) bool {
	for {
		d.spin.Lock()
		sending := d.flags.has(flagIsSending)
		d.spin.Unlock()

		if !sending {
			return true
		}

		d.spin.Lock()
		d.waiting = true
		d.spin.Unlock()

		ok := d.wake.wait(wait)

		d.spin.Lock()
		d.waiting = false
		d.spin.Unlock()

		if !ok {
			d.wake.drain()
			return false
		}
		// A stray wakeup not caused by TX completion re-checks the
		// flag and waits again.
	}
}
