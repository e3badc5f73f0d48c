package dmx

import "errors"

// Error kinds surfaced to callers (§7). These are sentinel values suitable
// for errors.Is; ISR-observed conditions are stamped onto the Packet
// returned by Receive rather than returned directly, since the engine
// never returns an error out of interrupt context.
var (
	ErrNotInstalled = errors.New("dmx: port not installed")
	ErrNotEnabled   = errors.New("dmx: port not enabled")
	ErrInvalidArg   = errors.New("dmx: invalid argument")
	ErrTimeout      = errors.New("dmx: operation timed out")

	// ErrDataOverflow indicates the RX FIFO overflowed before the task
	// could drain it.
	ErrDataOverflow = errors.New("dmx: rx data overflow")
	// ErrImproperSlot indicates a parity or framing error on a received
	// octet.
	ErrImproperSlot = errors.New("dmx: improper slot (parity/framing)")
	// ErrPacketSize indicates an inbound frame exceeded DMXMaxPacketSize.
	ErrPacketSize = errors.New("dmx: packet size exceeded")
)
