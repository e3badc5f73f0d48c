package dmx

import (
	"sync"
	"time"

	"github.com/usbarmory/godmx/dmx/hal"
)

// fakeUART is an in-memory stand-in for a register-level UART, for testing
// the bus engine without real hardware. Like soc/host/serial485.UART, it
// has no genuine asynchronous interrupt source, so it drives the
// installed callback from a dedicated dispatcher goroutine whenever new
// pending bits are raised - never inline from within a HAL method, which
// would re-enter the engine while a spinlock it already holds is locked.
type fakeUART struct {
	mu          sync.Mutex
	rx          []byte
	tx          []byte
	pending     hal.IntrMask
	enabled     hal.IntrMask
	rts         bool
	inverted    bool
	onInterrupt func()

	work chan struct{}
}

func newFakeUART() *fakeUART {
	u := &fakeUART{rts: true, work: make(chan struct{}, 64)}
	go u.dispatch()
	return u
}

func (u *fakeUART) dispatch() {
	for range u.work {
		u.mu.Lock()
		cb := u.onInterrupt
		u.mu.Unlock()
		if cb != nil {
			cb()
		}
	}
}

func (u *fakeUART) setOnInterrupt(fn func()) {
	u.mu.Lock()
	u.onInterrupt = fn
	u.mu.Unlock()
}

func (u *fakeUART) raise(bits hal.IntrMask) {
	u.mu.Lock()
	u.pending |= bits
	u.mu.Unlock()

	select {
	case u.work <- struct{}{}:
	default:
	}
}

// injectFrame simulates an inbound frame: a break, followed by the frame
// bytes landing in the RX FIFO, followed by idle-timeout (frame complete).
func (u *fakeUART) injectFrame(frame []byte) {
	u.raise(hal.IntrRxBreak)
	time.Sleep(time.Millisecond)

	u.mu.Lock()
	u.rx = append(u.rx, frame...)
	u.mu.Unlock()
	u.raise(hal.IntrRxFIFOTimeout)
}

func (u *fakeUART) txBytes() []byte {
	u.mu.Lock()
	defer u.mu.Unlock()
	return append([]byte(nil), u.tx...)
}

var _ hal.UART = (*fakeUART)(nil)

func (u *fakeUART) IntrStatus() hal.IntrMask {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.pending & u.enabled
}

func (u *fakeUART) IntrEnable(mask hal.IntrMask) {
	u.mu.Lock()
	u.enabled |= mask
	u.mu.Unlock()
}

func (u *fakeUART) IntrDisable(mask hal.IntrMask) {
	u.mu.Lock()
	u.enabled &^= mask
	u.mu.Unlock()
}

func (u *fakeUART) IntrClear(mask hal.IntrMask) {
	u.mu.Lock()
	u.pending &^= mask
	u.mu.Unlock()
}

func (u *fakeUART) RxFIFOLen() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return len(u.rx)
}

func (u *fakeUART) TxFIFOLen() int { return 0 }

func (u *fakeUART) ReadRxFIFO(dst []byte) int {
	u.mu.Lock()
	defer u.mu.Unlock()
	n := copy(dst, u.rx)
	u.rx = u.rx[n:]
	return n
}

func (u *fakeUART) WriteTxFIFO(src []byte) int {
	u.mu.Lock()
	u.tx = append(u.tx, src...)
	u.mu.Unlock()

	u.raise(hal.IntrTxFIFOEmpty | hal.IntrTxDone)
	return len(src)
}

func (u *fakeUART) ResetRxFIFO() {
	u.mu.Lock()
	u.rx = nil
	u.mu.Unlock()
}

func (u *fakeUART) SetBaud(uint32)      {}
func (u *fakeUART) SetBreakBits(int)    {}
func (u *fakeUART) SetIdleBits(int)     {}
func (u *fakeUART) InvertTX(invert bool) {
	u.mu.Lock()
	u.inverted = invert
	u.mu.Unlock()
}

func (u *fakeUART) GetRTS() bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.rts
}

func (u *fakeUART) SetRTS(level bool) {
	u.mu.Lock()
	u.rts = level
	u.mu.Unlock()
}

func (u *fakeUART) RxLevel() bool { return true }

// fakeTimer is a software stand-in for the auxiliary hardware timer,
// built on time.AfterFunc exactly like soc/host/serial485.Timer.
type fakeTimer struct {
	mu         sync.Mutex
	t          *time.Timer
	isr        func()
	dur        time.Duration
	autoReload bool
	running    bool
}

func newFakeTimer() *fakeTimer { return &fakeTimer{} }

var _ hal.Timer = (*fakeTimer)(nil)

func (h *fakeTimer) SetCount(uint64) {}

func (h *fakeTimer) SetAlarm(v uint64, autoReload bool) {
	h.mu.Lock()
	h.dur = time.Duration(v) * time.Microsecond
	h.autoReload = autoReload
	h.mu.Unlock()
}

func (h *fakeTimer) Start() {
	h.mu.Lock()
	dur := h.dur
	h.running = true
	h.mu.Unlock()
	h.arm(dur)
}

func (h *fakeTimer) arm(dur time.Duration) {
	h.mu.Lock()
	if h.t != nil {
		h.t.Stop()
	}
	h.t = time.AfterFunc(dur, h.fire)
	h.mu.Unlock()
}

func (h *fakeTimer) fire() {
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

func (h *fakeTimer) Stop() {
	h.mu.Lock()
	h.running = false
	if h.t != nil {
		h.t.Stop()
	}
	h.mu.Unlock()
}

func (h *fakeTimer) SetISR(fn func()) {
	h.mu.Lock()
	h.isr = fn
	h.mu.Unlock()
}
