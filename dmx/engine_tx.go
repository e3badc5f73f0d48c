package dmx

import (
	"time"

	"github.com/usbarmory/godmx/dmx/hal"
	"github.com/usbarmory/godmx/dmx/rdm"
)

// Send is the sole entry point for outgoing frames (§4.1).
func (d *Driver) Send(size int) (int, error) {
	d.mux.Lock()
	defer d.mux.Unlock()
	return d.sendLocked(size)
}

// sendLocked is Send's body, assuming d.mux is already held. The RDM
// dispatcher reaches this through a lockedResponder rather than through
// Send itself, since Receive already holds mux when it invokes Dispatch.
func (d *Driver) sendLocked(size int) (int, error) {
	if !d.installed {
		return 0, ErrNotInstalled
	}

	d.waitSentLocked(-1)

	d.spin.Lock()
	sc := d.buffer[0]
	cc := d.buffer[rdm.OffsetCC]
	lastTS := d.lastSlotTS
	d.collision = false // observed; the send proceeds regardless (§7)
	d.spin.Unlock()

	if sc == StartCodeRDM && isResponseCC(cc) && time.Since(lastTS) >= RDMResponderResponseLostTimeout {
		// The response window has closed; the caller's reply is stale.
		return 0, nil
	}

	d.waitRequiredSpacing(sc, cc)

	d.hal.SetRTS(false)

	if size > 0 {
		d.txSize = size
	}

	d.classifyOutbound()

	if d.buffer[0] == StartCodePreamble {
		d.sendDiscoveryResponseFrame()
	} else {
		d.startBreakSequence()
	}

	return d.txSize, nil
}

func isResponseCC(cc byte) bool {
	switch cc {
	case rdm.CCDiscoveryCommandResponse, rdm.CCGetCommandResponse, rdm.CCSetCommandResponse:
		return true
	}
	return false
}

// waitRequiredSpacing enforces the RDM inter-packet spacing rule of §4.1
// step 3, keyed off whether the frame about to go out is itself a
// response, or else off the classification of the last request we sent
// and whether a reply arrived for it.
func (d *Driver) waitRequiredSpacing(sc, cc byte) {
	d.spin.Lock()
	isResponse := sc == StartCodeRDM && isResponseCC(cc)
	lastTS := d.lastSlotTS
	lastClass := d.lastTXClass
	gotResponse := d.lastTXGotResponse
	d.spin.Unlock()

	var required time.Duration
	switch {
	case isResponse:
		required = RDMRespondToRequestPacketSpacing
	case lastClass == txClassDiscoveryRequest && !gotResponse:
		required = RDMDiscoveryNoResponsePacketSpacing
	case lastClass == txClassBroadcastRequest:
		required = RDMBroadcastPacketSpacing
	case lastClass == txClassUnicastRequest && !gotResponse:
		required = RDMRequestNoResponsePacketSpacing
	default:
		return
	}

	elapsed := time.Since(lastTS)
	if elapsed >= required {
		return
	}
	remain := required - elapsed

	d.spin.Lock()
	d.tmode = timerInterPacketSpacing
	d.spin.Unlock()

	d.wake.drain()
	d.timer.SetAlarm(uint64(remain.Microseconds())+1, false)
	d.timer.Start()
	d.wake.wait(-1)

	d.spin.Lock()
	d.tmode = timerIdle
	d.spin.Unlock()
}

// classifyOutbound sets the RDM_IS_* flags and bumps tn from the frame
// about to be sent (§4.1 step 6): start code at offset 0, command class at
// offset 20, broadcast test on the destination UID at offset 3..9, and
// PID at offset 21. A discovery response (preamble start code) is not an
// RDM request/response frame and is left unclassified.
func (d *Driver) classifyOutbound() {
	buf := d.buffer[:]
	sc := buf[0]

	d.spin.Lock()
	defer d.spin.Unlock()

	d.flags &^= flagRDMIsValid | flagRDMIsRequest | flagRDMIsBroadcast | flagRDMIsDiscUniqueBranch

	if sc != StartCodeRDM || d.txSize < rdm.HeaderLen {
		return
	}

	d.flags |= flagRDMIsValid

	cc := buf[rdm.OffsetCC]
	pid := uint16(buf[rdm.OffsetPID])<<8 | uint16(buf[rdm.OffsetPID+1])

	var dest rdm.UID
	copy(dest[:], buf[rdm.OffsetDestUID:rdm.OffsetDestUID+6])

	isRequest := cc == rdm.CCDiscoveryCommand || cc == rdm.CCGetCommand || cc == rdm.CCSetCommand
	if !isRequest {
		return
	}

	d.flags |= flagRDMIsRequest
	d.rdmTN++

	broadcast := dest.IsBroadcast()
	if broadcast {
		d.flags |= flagRDMIsBroadcast
	}
	if cc == rdm.CCDiscoveryCommand && pid == rdm.PIDDiscUniqueBranch {
		d.flags |= flagRDMIsDiscUniqueBranch
	}

	switch {
	case cc == rdm.CCDiscoveryCommand:
		d.lastTXClass = txClassDiscoveryRequest
	case broadcast:
		d.lastTXClass = txClassBroadcastRequest
	default:
		d.lastTXClass = txClassUnicastRequest
	}
	d.lastTXGotResponse = false
}

// startBreakSequence begins the break/MAB reset sequence for a normal
// frame (§4.1 step 7, normal path): sets IS_IN_BREAK, inverts TX to
// idle-low, and arms the timer for break_len. step is primed to 1 so the
// first timer ISR firing (handleBreakSequenceTimer) performs row 1 of the
// sequence table (end of break, begin MAB).
func (d *Driver) startBreakSequence() {
	d.spin.Lock()
	d.flags |= flagIsSending | flagIsInBreak
	d.step = 1
	d.tmode = timerBreakSequence
	d.spin.Unlock()

	d.hal.InvertTX(true)
	d.timer.SetAlarm(uint64(d.breakLen.Microseconds()), false)
	d.timer.Start()
}

// handleBreakSequenceTimer advances the break/MAB sequence (§4.1 step 7
// table, rows 1-2; row 0 runs synchronously in startBreakSequence).
func (d *Driver) handleBreakSequenceTimer() {
	d.spin.Lock()
	step := d.step
	d.spin.Unlock()

	switch step {
	case 1:
		d.hal.InvertTX(false)

		d.spin.Lock()
		d.flags &^= flagIsInBreak
		d.step = 2
		d.spin.Unlock()

		d.timer.SetAlarm(uint64(d.mabLen.Microseconds()), false)
		d.timer.Start()

	case 2:
		d.timer.Stop()

		d.spin.Lock()
		d.tmode = timerIdle
		n := d.hal.WriteTxFIFO(d.buffer[:d.txSize])
		d.head = n
		d.spin.Unlock()

		d.hal.IntrEnable(hal.IntrTxFIFOEmpty | hal.IntrTxDone | hal.IntrTxCollision)
	}
}

// sendDiscoveryResponseFrame implements §4.1 step 7's "no break" path: an
// RDM discovery response is a preamble-framed fake frame that must not be
// preceded by a break, so it goes straight to the TX FIFO.
func (d *Driver) sendDiscoveryResponseFrame() {
	d.spin.Lock()
	d.flags |= flagIsSending
	n := d.hal.WriteTxFIFO(d.buffer[:d.txSize])
	d.head = n
	d.spin.Unlock()

	d.hal.IntrEnable(hal.IntrTxFIFOEmpty | hal.IntrTxDone | hal.IntrTxCollision)
}

// handleTXInterrupt drains buffer[head:tx_size] into the TX FIFO whenever
// TX-empty or TX-done fires (§4.1, "UART TX ISR"). The caller's wait is
// satisfied as soon as the UART has accepted all bytes, not when the wire
// has drained, since the buffer is reusable the moment it is.
func (d *Driver) handleTXInterrupt() {
	d.spin.Lock()
	head := d.head
	size := d.txSize
	d.spin.Unlock()

	if head < 0 {
		// No frame in flight; RX is awaiting a break.
		return
	}

	if head < size {
		n := d.hal.WriteTxFIFO(d.buffer[head:size])
		d.spin.Lock()
		d.head += n
		head = d.head
		d.spin.Unlock()
	}

	if head < size {
		return
	}

	d.hal.IntrDisable(hal.IntrTxFIFOEmpty | hal.IntrTxDone)
	d.hal.SetRTS(true)

	d.spin.Lock()
	d.flags &^= flagIsSending
	d.flags |= flagSentLast
	d.lastSlotTS = time.Now()
	d.head = -1 // back to listening: awaiting the next break
	waiting := d.waiting
	d.spin.Unlock()

	if waiting {
		d.wake.signal()
	}
}

// handleSpacingTimer fires when an inter-packet spacing wait (§4.1 step 3)
// elapses, waking the Send call suspended in waitRequiredSpacing.
func (d *Driver) handleSpacingTimer() {
	d.timer.Stop()
	d.wake.signal()
}

// handleCollision records and logs an RS-485 collision observed during
// send; the next Send call clears the flag and proceeds, rather than this
// handler raising an error itself (§4.1, §7).
func (d *Driver) handleCollision() {
	d.spin.Lock()
	d.collision = true
	d.spin.Unlock()

	d.log.Printf("dmx: tx collision on port %d", d.port)
}
