package rdm

import "encoding/binary"

// Responder is what the dispatcher needs from the bus engine to emit a
// composed response: the shared TX buffer to compose into, and a way to
// transmit it. Handlers themselves never see this - see §9 Design Notes,
// "avoid re-entrant send from within a handler by design": only the
// dispatcher, after a handler returns, re-enters the bus engine.
type Responder interface {
	// Buffer returns the mutable frame buffer to compose the response
	// into.
	Buffer() []byte
	// Send transmits size bytes from Buffer as an RDM response.
	Send(size int) (int, error)
}

// Mute marks discovery as muted (in response to DISC_MUTE).
func (t *Table) Mute() {
	t.mu.Lock()
	t.muted = true
	t.mu.Unlock()
}

// Unmute clears discovery mute (in response to DISC_UN_MUTE).
func (t *Table) Unmute() {
	t.mu.Lock()
	t.muted = false
	t.mu.Unlock()
}

// Muted reports whether discovery is currently muted.
func (t *Table) Muted() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.muted
}

// Dispatch parses frame as an RDM request, resolves it against t, and
// emits a response via r (§4.5). frame must already be known to carry the
// RDM start code and pass checksum verification (ParseHeader re-verifies
// regardless). Dispatch is a no-op if frame does not parse.
func (t *Table) Dispatch(myUID UID, r Responder, frame []byte) {
	h, pdIn, ok := ParseHeader(frame)
	if !ok {
		return
	}

	if h.PID == PIDDiscUniqueBranch && h.CC == CCDiscoveryCommand {
		t.dispatchDiscUniqueBranch(myUID, r, pdIn)
		return
	}

	// §4.5 step 3 / scenario 4: broadcast never gets a response except
	// DISC_UNIQUE_BRANCH above - every responder on the bus would answer
	// at once otherwise. Any state change a request asks for (mute/unmute,
	// SET) still applies; only the response is suppressed.
	broadcast := h.DestUID.IsBroadcast()

	if h.SubDevice != SubDeviceRoot && h.SubDevice != SubDeviceAll {
		if !broadcast {
			t.respond(myUID, r, h, RespNackReason, NRSubDeviceOutOfRange, nil)
		}
		return
	}

	if h.PID == PIDDiscMute || h.PID == PIDDiscUnMute {
		if h.PID == PIDDiscMute {
			t.Mute()
		} else {
			t.Unmute()
		}
		if !broadcast {
			pd, _ := PackFormat("w", 0) // control field: no proxy, no managed devices
			t.respond(myUID, r, h, RespACK, 0, pd)
		}
		return
	}

	param := t.Find(h.PID)

	var pdOut []byte
	var nackReason uint16
	rt := RespInvalid

	if param != nil && param.Handler != nil {
		pdOut, nackReason, rt = param.Handler(&HandlerContext{Header: &h, PDIn: pdIn, Param: param, Table: t})
	}

	if broadcast {
		// Any SET side effect above already ran; only the response is
		// suppressed.
		return
	}

	if rt == RespNone {
		if h.CC == CCDiscoveryCommand {
			return
		}
		rt = RespInvalid
	}

	if param == nil {
		if h.CC == CCDiscoveryCommand {
			return
		}
		rt, nackReason = RespNackReason, NRUnknownPID
	} else if rt == RespInvalid {
		rt, nackReason = RespNackReason, NRHardwareFault
	}

	t.respond(myUID, r, h, rt, nackReason, pdOut)
}

// respond composes the standard (non-discovery-branch) response frame and
// emits it via r (§4.5 step 4-5): swap UIDs, advance CC, stamp
// message_count from the pending queue depth, keep tn/sub_device/pid.
func (t *Table) respond(myUID UID, r Responder, req Header, rt ResponseType, nackReason uint16, pdOut []byte) {
	resp := Header{
		DestUID:      req.SrcUID,
		SrcUID:       myUID,
		TN:           req.TN,
		MessageCount: byte(t.QueueLen()),
		SubDevice:    req.SubDevice,
		CC:           responseCC(req.CC),
		PID:          req.PID,
	}

	switch rt {
	case RespACK:
		resp.PortID = ResponseTypeACK
	case RespACKTimer:
		resp.PortID = ResponseTypeACKTimer
	case RespACKOverflow:
		resp.PortID = ResponseTypeACKOverflow
	case RespNackReason:
		resp.PortID = ResponseTypeNackReason
		b := make([]byte, 2)
		binary.BigEndian.PutUint16(b, nackReason)
		pdOut = b
	}

	buf := r.Buffer()
	n := Encode(buf, &resp, pdOut)
	r.Send(n)
}

// dispatchDiscUniqueBranch implements the DISC_UNIQUE_BRANCH discovery
// algorithm: respond, as the preamble-framed "fake" frame of §6, only if
// discovery is unmuted and myUID falls within the requested [lower, upper]
// range.
func (t *Table) dispatchDiscUniqueBranch(myUID UID, r Responder, pdIn []byte) {
	if t.Muted() || len(pdIn) < 12 {
		return
	}

	var lower, upper UID
	copy(lower[:], pdIn[0:6])
	copy(upper[:], pdIn[6:12])

	if uidLess(myUID, lower) || uidLess(upper, myUID) {
		return
	}

	buf := r.Buffer()
	n := encodeDiscoveryResponse(buf, myUID)
	r.Send(n)
}

func uidLess(a, b UID) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}

// encodeDiscoveryResponse writes the preamble-framed discovery response
// (§6: up to 7x 0xFE, then 0xAA, then 16 bytes of EUID+checksum bytewise
// ORed with 0xAA/0x55) into dst and returns its length.
func encodeDiscoveryResponse(dst []byte, uid UID) int {
	var body [8]byte
	copy(body[:6], uid[:])
	binary.BigEndian.PutUint16(body[6:], Checksum(uid[:]))

	n := 0
	for i := 0; i < 7; i++ {
		dst[n] = 0xfe
		n++
	}
	dst[n] = 0xaa
	n++

	for _, b := range body {
		dst[n] = b | 0xaa
		dst[n+1] = b | 0x55
		n += 2
	}

	return n
}
