// Package sniffer implements the optional edge-timed break/MAB measurement
// of §4.6: a dedicated GPIO edge-interrupt handler, independent of the
// driver state, publishing {break_us, mab_us} pairs to a bounded consumer
// queue.
package sniffer

import (
	"sync"
	"time"
)

// EdgePin is the edge-triggered GPIO contract the sniffer drives, modeled
// on periph's gpio.PinIn: edge detection is configured and polled through
// WaitForEdge there, whereas here the board wires RisingEdge/FallingEdge
// directly to the pin's own interrupt, since the sniffer must not block.
type EdgePin interface {
	Read() bool
}

// Sample is one measured break/MAB pair.
type Sample struct {
	BreakLen time.Duration
	MABLen   time.Duration
}

const unset time.Duration = -1

// DefaultQueueDepth bounds the published-sample queue.
const DefaultQueueDepth = 32

// Sniffer measures DMX break/MAB timing purely by timestamping edges on a
// GPIO pin wired to RX. It never touches dmx.Driver state.
type Sniffer struct {
	mu sync.Mutex

	isInBreak     bool
	havePosEdge   bool
	haveNegEdge   bool
	lastPosEdgeTS time.Time
	lastNegEdgeTS time.Time
	breakLen      time.Duration
	mabLen        time.Duration

	samples chan Sample
	dropped uint64
}

// New creates a Sniffer with its sentinels cleared.
func New() *Sniffer {
	s := &Sniffer{samples: make(chan Sample, DefaultQueueDepth)}
	s.Reset()
	return s
}

// Samples returns the channel consumers read published pairs from.
func (s *Sniffer) Samples() <-chan Sample { return s.samples }

// Dropped reports how many samples were discarded because the consumer
// queue was full.
func (s *Sniffer) Dropped() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

// Reset clears all edge-timing sentinels, as required "at each frame
// boundary" (§4.6). Board wiring calls this alongside the UART's own
// break-interrupt handler to keep the sniffer in sync with frame
// boundaries the bus engine itself observes.
func (s *Sniffer) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.isInBreak = false
	s.havePosEdge = false
	s.haveNegEdge = false
	s.breakLen = unset
	s.mabLen = unset
}

// RisingEdge is the GPIO rising-edge ISR entry point (§4.6): the line
// going high ends a break.
func (s *Sniffer) RisingEdge(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isInBreak && s.haveNegEdge {
		s.breakLen = now.Sub(s.lastNegEdgeTS)
		s.isInBreak = false
	}
	s.lastPosEdgeTS = now
	s.havePosEdge = true
}

// FallingEdge is the GPIO falling-edge ISR entry point (§4.6): the line
// going low either starts a break or, if a break was already timed and
// MAB has not yet been, ends the MAB.
func (s *Sniffer) FallingEdge(now time.Time) {
	var sample Sample
	var ready bool

	s.mu.Lock()

	if s.mabLen == unset && s.breakLen != unset && s.havePosEdge {
		s.mabLen = now.Sub(s.lastPosEdgeTS)
		sample = Sample{BreakLen: s.breakLen, MABLen: s.mabLen}
		ready = true
	}

	s.lastNegEdgeTS = now
	s.haveNegEdge = true
	s.isInBreak = true

	s.mu.Unlock()

	if ready {
		s.publish(sample)
	}
}

func (s *Sniffer) publish(sample Sample) {
	select {
	case s.samples <- sample:
	default:
		s.mu.Lock()
		s.dropped++
		s.mu.Unlock()
	}
}
