package serial485

import (
	"sync"
	"time"

	"github.com/usbarmory/godmx/dmx/hal"
)

var _ hal.Timer = (*Timer)(nil)

// Timer implements dmx/hal.Timer on top of time.AfterFunc, standing in
// for the EPIT hardware timer soc/nxp/timer drives on an embedded target -
// there is no auxiliary hardware timer behind a host process, so a
// regular Go timer plays the same one-shot/periodic role.
type Timer struct {
	mu         sync.Mutex
	t          *time.Timer
	isr        func()
	dur        time.Duration
	autoReload bool
	running    bool
}

// NewTimer creates a stopped Timer.
func NewTimer() *Timer { return &Timer{} }

// SetCount implements hal.Timer; unused by the bus engine (only SetAlarm
// is), so this is a no-op.
func (h *Timer) SetCount(uint64) {}

// SetAlarm implements hal.Timer.
func (h *Timer) SetAlarm(v uint64, autoReload bool) {
	h.mu.Lock()
	h.dur = time.Duration(v) * time.Microsecond
	h.autoReload = autoReload
	h.mu.Unlock()
}

// Start implements hal.Timer.
func (h *Timer) Start() {
	h.mu.Lock()
	dur := h.dur
	h.running = true
	h.mu.Unlock()

	h.arm(dur)
}

func (h *Timer) arm(dur time.Duration) {
	h.mu.Lock()
	if h.t != nil {
		h.t.Stop()
	}
	h.t = time.AfterFunc(dur, h.fire)
	h.mu.Unlock()
}

func (h *Timer) fire() {
	h.mu.Lock()
	running := h.running
	autoReload := h.autoReload
	dur := h.dur
	isr := h.isr
	h.mu.Unlock()

	if !running {
		return
	}

	if autoReload {
		h.arm(dur)
	} else {
		h.mu.Lock()
		h.running = false
		h.mu.Unlock()
	}

	if isr != nil {
		isr()
	}
}

// Stop implements hal.Timer.
func (h *Timer) Stop() {
	h.mu.Lock()
	h.running = false
	if h.t != nil {
		h.t.Stop()
	}
	h.mu.Unlock()
}

// SetISR implements hal.Timer.
func (h *Timer) SetISR(fn func()) {
	h.mu.Lock()
	h.isr = fn
	h.mu.Unlock()
}
