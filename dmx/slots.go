package dmx

// Read copies up to size bytes from the driver buffer starting at offset
// into dst (§4.3). It neither acquires mux nor disables interrupts - the
// buffer is safe to snapshot asynchronously, and callers accept eventual
// consistency for monitoring use. Returns the byte count copied, or 0 on
// a precondition failure.
func (d *Driver) Read(offset int, dst []byte, size int) int {
	if !d.installed || offset < 0 || offset >= DMXMaxPacketSize || size <= 0 {
		return 0
	}

	if avail := DMXMaxPacketSize - offset; size > avail {
		size = avail
	}
	if size > len(dst) {
		size = len(dst)
	}

	return copy(dst, d.buffer[offset:offset+size])
}

// Write copies src into the driver buffer starting at offset (§4.3). It
// refuses writes (returns 0) while the driver is actively sending, to
// avoid mid-send mutation. If currently listening, it flips RTS to
// drive-TX - the only place a write implicitly changes bus direction.
// Advances tx_size to offset+n if that extends it.
func (d *Driver) Write(offset int, src []byte, size int) int {
	if !d.installed || offset < 0 || offset >= DMXMaxPacketSize || size <= 0 {
		return 0
	}

	d.spin.Lock()
	sending := d.flags.has(flagIsSending)
	d.spin.Unlock()
	if sending {
		return 0
	}

	if d.hal.GetRTS() {
		d.hal.SetRTS(false)
	}

	if avail := DMXMaxPacketSize - offset; size > avail {
		size = avail
	}
	if size > len(src) {
		size = len(src)
	}

	n := copy(d.buffer[offset:offset+size], src[:size])

	d.spin.Lock()
	if offset+n > d.txSize {
		d.txSize = offset + n
	}
	d.spin.Unlock()

	return n
}

// ReadSlot reads the single octet at offset, or -1 on error.
func (d *Driver) ReadSlot(offset int) int {
	var b [1]byte
	if d.Read(offset, b[:], 1) != 1 {
		return -1
	}
	return int(b[0])
}

// WriteSlot writes a single octet at offset, or -1 on error.
func (d *Driver) WriteSlot(offset int, value byte) int {
	if d.Write(offset, []byte{value}, 1) != 1 {
		return -1
	}
	return 0
}
