// Package dmx implements the bus engine and public slot API for a DMX512 /
// RDM driver over an RS-485 UART: break/MAB shaping and reception on
// transmit and receive, RTS-arbitrated bus direction, and RDM inter-packet
// spacing and early-timeout rules. See dmx/rdm for the parameter store and
// dispatcher invoked from Receive, and dmx/hal for the register-level
// contract this package drives.
package dmx

import (
	"fmt"
	"sync"
	"time"

	"github.com/usbarmory/godmx/dmx/hal"
	"github.com/usbarmory/godmx/dmx/rdm"
)

// Port identifies one driver instance, in [0, MaxPorts).
type Port int

// flags mirrors the §3 bitset: {DRIVER_IS_SENDING, DRIVER_IS_IN_BREAK,
// DRIVER_HAS_DATA, DRIVER_SENT_LAST, TIMER_IS_RUNNING, RDM_IS_VALID,
// RDM_IS_REQUEST, RDM_IS_BROADCAST, RDM_IS_DISC_UNIQUE_BRANCH}.
type flags uint32

const (
	flagIsSending flags = 1 << iota
	flagIsInBreak
	flagHasData
	flagSentLast
	flagTimerRunning
	flagRDMIsValid
	flagRDMIsRequest
	flagRDMIsBroadcast
	flagRDMIsDiscUniqueBranch
)

func (f flags) has(bit flags) bool { return f&bit != 0 }

// hasAll reports whether every bit in mask is set.
func (f flags) hasAll(mask flags) bool { return f&mask == mask }

// timerMode selects what the next hardware timer alarm means, since a port
// has exactly one auxiliary timer shared across three uses.
type timerMode int

const (
	timerIdle timerMode = iota
	timerBreakSequence
	timerInterPacketSpacing
	timerRDMEarlyTimeout
)

// txClass classifies the most recently transmitted request, used to
// compute the next send's required inter-packet spacing (§4.1 step 3).
type txClass int

const (
	txClassNone txClass = iota
	txClassDiscoveryRequest
	txClassBroadcastRequest
	txClassUnicastRequest
)

// Config wires a Driver to its hardware and RDM identity.
type Config struct {
	// UART is the register-level HAL this driver drives.
	UART hal.UART
	// Timer is the auxiliary hardware timer used for break/MAB shaping,
	// inter-packet spacing, and the RDM early-timeout window.
	Timer hal.Timer
	// UID is this responder's own RDM UID, used to match inbound
	// requests and to stamp outbound responses.
	UID rdm.UID
	// Table is the RDM parameter store; if nil, rdm.NewDefaultTable(UID)
	// is used.
	Table *rdm.Table
	// BreakLen / MABLen override the §3 defaults (176us / 12us) for
	// outbound frames; zero means use the default. Values are clamped
	// to the legal range at Install.
	BreakLen time.Duration
	MABLen   time.Duration
	// Logger receives diagnostic output; defaults to a no-op.
	Logger Logger
	// OnRXBreak, if set, is invoked from interrupt context every time a
	// BREAK is observed on RX, before the driver's own frame-boundary
	// bookkeeping runs. Board wiring uses this to keep an independently
	// clocked instrument (e.g. dmx/sniffer.Sniffer.Reset) in sync with
	// the frame boundaries the bus engine itself observes. Must not
	// block.
	OnRXBreak func()
}

// Driver is a per-port singleton holding all state described in §3: the
// frame buffer, head/tx_size bookkeeping, flags, timestamps, RDM
// transaction state, and the spinlock/mutex pair guarding them.
type Driver struct {
	port Port
	hal  hal.UART
	timer hal.Timer
	log  Logger

	// mux serializes caller-side access. send/receive/wait_sent are
	// documented as needing a *recursive* mutex because wait_sent is
	// called both directly and from inside send/receive while mux is
	// already held; this is realized idiomatically as a plain mutex
	// held by the public entry points, with an unexported
	// "...Locked" helper that assumes the lock is already held and is
	// what send/receive call internally instead of re-entering.
	mux sync.Mutex

	// spin is the ISR-safe critical section guarding the fields the
	// UART and timer interrupt handlers touch.
	spin sync.Mutex

	buffer     [DMXMaxPacketSize]byte
	head       int
	txSize     int
	flags      flags
	lastSlotTS time.Time
	breakLen   time.Duration
	mabLen     time.Duration

	waiting  bool
	wake     *notifier
	pendErr  error

	step      int
	tmode     timerMode
	collision bool

	installed bool

	rdmTN             uint32
	discoveryMuted    bool
	lastTXClass       txClass
	lastTXGotResponse bool

	onRXBreak func()

	table *rdm.Table
	uid   rdm.UID
}

var (
	portsMu sync.Mutex
	ports   [MaxPorts]*Driver
)

// Install creates and wires the driver state for port, matching the
// install-at-boot / uninstall-at-shutdown lifecycle of §3. It is an error
// to install an already-installed port.
func Install(port Port, cfg Config) (*Driver, error) {
	if port < 0 || int(port) >= MaxPorts {
		return nil, fmt.Errorf("%w: port %d out of range", ErrInvalidArg, port)
	}
	if cfg.UART == nil || cfg.Timer == nil {
		return nil, fmt.Errorf("%w: UART and Timer are required", ErrInvalidArg)
	}

	portsMu.Lock()
	defer portsMu.Unlock()

	if ports[port] != nil {
		return nil, fmt.Errorf("%w: port %d already installed", ErrInvalidArg, port)
	}

	table := cfg.Table
	if table == nil {
		table = rdm.NewDefaultTable(cfg.UID)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = nopLogger{}
	}

	breakLen := clampDuration(cfg.BreakLen, DefaultBreakLen, MinBreakLen, MaxBreakLen)
	mabLen := clampDuration(cfg.MABLen, DefaultMABLen, MinMABLen, MaxMABLen)

	d := &Driver{
		port:      port,
		hal:       cfg.UART,
		timer:     cfg.Timer,
		log:       logger,
		head:      -1,
		txSize:    1,
		breakLen:  breakLen,
		mabLen:    mabLen,
		wake:      newNotifier(),
		table:     table,
		uid:       cfg.UID,
		onRXBreak: cfg.OnRXBreak,
	}

	d.timer.SetISR(d.handleTimerAlarm)
	d.hal.SetRTS(true) // listen by default

	// RX (and RX error) interrupts are enabled for the driver's entire
	// lifetime, unlike the TX set which handleBreakSequenceTimer /
	// sendDiscoveryResponseFrame enable only for the duration of a send.
	d.hal.IntrEnable(hal.IntrRxBreak | hal.IntrRxFIFOFull | hal.IntrRxFIFOTimeout |
		hal.IntrRxFIFOOverflow | hal.IntrRxFramingError | hal.IntrRxParityError)

	d.installed = true

	ports[port] = d

	return d, nil
}

// Uninstall tears down the driver state for port.
func Uninstall(port Port) error {
	portsMu.Lock()
	defer portsMu.Unlock()

	d := ports[port]
	if d == nil {
		return ErrNotInstalled
	}

	d.mux.Lock()
	d.installed = false
	d.timer.Stop()
	d.hal.IntrDisable(^hal.IntrMask(0))
	d.mux.Unlock()

	ports[port] = nil

	return nil
}

// Get returns the installed driver for port, or nil.
func Get(port Port) *Driver {
	portsMu.Lock()
	defer portsMu.Unlock()
	return ports[port]
}

func clampDuration(v, def, lo, hi time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// HandleUARTInterrupt is the UART ISR entry point (§4.1/§4.2): board init
// code registers it against the controller's interrupt line via the SoC's
// interrupt controller. It must never block.
func (d *Driver) HandleUARTInterrupt() {
	mask := d.hal.IntrStatus()
	if mask == 0 {
		return
	}

	d.hal.IntrClear(mask)

	if mask&(hal.IntrTxFIFOEmpty|hal.IntrTxDone) != 0 {
		d.handleTXInterrupt()
	}
	if mask&hal.IntrTxCollision != 0 {
		d.handleCollision()
	}
	if mask&hal.IntrRxBreak != 0 {
		d.handleRXBreak()
	}
	if mask&(hal.IntrRxFIFOFull|hal.IntrRxFIFOTimeout) != 0 {
		d.handleRXData(mask)
	}
	if mask&(hal.IntrRxFIFOOverflow|hal.IntrRxFramingError|hal.IntrRxParityError) != 0 {
		d.handleRXError(mask)
	}
}

// handleTimerAlarm is the auxiliary timer ISR entry point, dispatched by
// timerMode since the same one-shot timer serves three purposes.
func (d *Driver) handleTimerAlarm() {
	d.spin.Lock()
	mode := d.tmode
	d.spin.Unlock()

	switch mode {
	case timerBreakSequence:
		d.handleBreakSequenceTimer()
	case timerInterPacketSpacing:
		d.handleSpacingTimer()
	case timerRDMEarlyTimeout:
		d.handleEarlyTimeoutTimer()
	}
}
