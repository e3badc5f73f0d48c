package dmx

import (
	"time"

	"github.com/usbarmory/godmx/dmx/hal"
	"github.com/usbarmory/godmx/dmx/rdm"
)

// lockedResponder adapts a Driver already holding mux to rdm.Responder,
// so Dispatch can re-enter the bus engine via sendLocked instead of the
// mux-acquiring Send - the same already-locked-helper pattern documented
// on Driver.mux.
type lockedResponder struct {
	d *Driver
}

func (r *lockedResponder) Buffer() []byte { return r.d.buffer[:] }

func (r *lockedResponder) Send(size int) (int, error) { return r.d.sendLocked(size) }

// Receive is the sole entry point for inbound frames (§4.2).
func (d *Driver) Receive(pkt *Packet, wait time.Duration) (int, error) {
	d.mux.Lock()
	defer d.mux.Unlock()

	if !d.installed {
		return 0, ErrNotInstalled
	}
	if pkt == nil {
		return 0, ErrInvalidArg
	}

	d.waitSentLocked(-1)

	if !d.hal.GetRTS() {
		// Currently driving TX; flip to listen and start fresh.
		d.hal.SetRTS(true)
		d.wake.drain()

		d.spin.Lock()
		d.head = -1
		d.flags &^= flagHasData
		d.spin.Unlock()
	}

	d.spin.Lock()
	hasData := d.flags.has(flagHasData)
	d.spin.Unlock()

	if !hasData {
		d.waitForFrame(wait)
	}

	size, sc, rxErr := d.snapshotRXResult()

	pkt.SC = sc
	pkt.Err = rxErr
	pkt.Size = size
	pkt.IsRDM = false

	if size > 0 && rxErr == nil {
		d.spin.Lock()
		d.lastTXGotResponse = true
		d.spin.Unlock()

		h, _, ok := rdm.ParseHeader(d.buffer[:size])
		if ok && rdm.IsTarget(d.uid, h.DestUID) && h.IsRequest() {
			pkt.IsRDM = true
			d.table.Dispatch(d.uid, &lockedResponder{d: d}, d.buffer[:size])
		}
	}

	return size, rxErr
}

// waitForFrame implements §4.2 steps 4-5: optionally arms the RDM
// early-timeout window, then blocks on task notification until the UART
// ISR signals frame completion, the timer ISR signals response-lost, or
// wait elapses.
func (d *Driver) waitForFrame(wait time.Duration) {
	d.spin.Lock()
	d.waiting = true
	arm := d.flags.hasAll(flagSentLast | flagRDMIsRequest | flagRDMIsDiscUniqueBranch)
	lastTS := d.lastSlotTS
	d.spin.Unlock()

	if arm {
		elapsed := time.Since(lastTS)
		if elapsed >= RDMControllerResponseLostTimeout {
			d.spin.Lock()
			d.waiting = false
			d.spin.Unlock()
			return
		}

		remain := RDMControllerResponseLostTimeout - elapsed
		d.spin.Lock()
		d.tmode = timerRDMEarlyTimeout
		d.spin.Unlock()

		d.wake.drain()
		d.timer.SetAlarm(uint64(remain.Microseconds())+1, false)
		d.timer.Start()
	}

	d.wake.wait(wait)

	d.spin.Lock()
	d.waiting = false
	d.tmode = timerIdle
	d.spin.Unlock()
	d.wake.drain()
}

// snapshotRXResult reads the frame the RX ISR assembled, clearing
// HAS_DATA and resetting head for the next frame (§4.2 step 6).
func (d *Driver) snapshotRXResult() (size, sc int, err error) {
	d.spin.Lock()
	defer d.spin.Unlock()

	size = d.head
	if size < 0 {
		size = 0
		sc = -1
	} else {
		sc = int(d.buffer[0])
	}

	err = d.pendErr
	d.pendErr = nil
	d.flags &^= flagHasData
	d.head = -1

	return size, sc, err
}

// handleRXBreak maintains head across a BREAK interrupt (§4.2, "UART RX
// ISR"): a break arriving mid-accumulation finalizes the in-progress
// frame (the newest frame always wins over an unconsumed older one),
// before resetting head to begin accumulating the next frame.
func (d *Driver) handleRXBreak() {
	if d.onRXBreak != nil {
		d.onRXBreak()
	}

	d.spin.Lock()
	priorHead := d.head
	if priorHead >= 0 {
		d.flags |= flagHasData
		d.flags &^= flagSentLast
		d.lastSlotTS = time.Now()
	}
	d.head = 0
	waiting := d.waiting
	d.spin.Unlock()

	d.hal.ResetRxFIFO()

	if priorHead >= 0 && waiting {
		d.wake.signal()
	}
}

// handleRXData drains the RX FIFO into buffer[head:] on RX-FIFO-FULL or
// RX-FIFO-TIMEOUT (§4.2, "UART RX ISR"). A timeout (line gone idle) always
// completes the frame; a full-FIFO drain completes it only once the
// buffer is exhausted, truncating and flagging overflow past that point.
func (d *Driver) handleRXData(mask hal.IntrMask) {
	var tmp [64]byte
	n := d.hal.ReadRxFIFO(tmp[:])
	if n == 0 {
		return
	}

	d.spin.Lock()
	head := d.head
	if head < 0 {
		head = 0
	}

	overflow := false
	if room := DMXMaxPacketSize - head; n > room {
		n = room
		overflow = true
	}
	copy(d.buffer[head:head+n], tmp[:n])
	head += n
	d.head = head

	if overflow {
		d.pendErr = ErrPacketSize
	}

	complete := overflow || head >= DMXMaxPacketSize || mask&hal.IntrRxFIFOTimeout != 0
	if complete {
		d.flags |= flagHasData
		d.flags &^= flagSentLast
		d.lastSlotTS = time.Now()
	}
	waiting := d.waiting
	d.spin.Unlock()

	if complete && waiting {
		d.wake.signal()
	}
}

// handleRXError resets the FIFO and stamps the error kind on RX-FIFO
// overflow, framing, or parity interrupts (§4.2, §7).
func (d *Driver) handleRXError(mask hal.IntrMask) {
	d.hal.ResetRxFIFO()

	err := ErrImproperSlot
	if mask&hal.IntrRxFIFOOverflow != 0 {
		err = ErrDataOverflow
	}

	d.spin.Lock()
	d.pendErr = err
	d.flags |= flagHasData
	d.flags &^= flagSentLast
	d.lastSlotTS = time.Now()
	waiting := d.waiting
	d.spin.Unlock()

	if waiting {
		d.wake.signal()
	}
}

// handleEarlyTimeoutTimer fires when the RDM controller-response-lost
// window (§4.2 step 4) elapses with no reply, waking the suspended
// Receive call.
func (d *Driver) handleEarlyTimeoutTimer() {
	d.timer.Stop()
	d.wake.signal()
}
