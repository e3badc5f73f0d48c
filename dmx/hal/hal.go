// Package hal defines the hardware contracts the DMX/RDM bus engine drives.
//
// These interfaces are the "HAL" and "Timer" contracts of §6 of the
// specification: register-level UART and auxiliary-timer operations,
// consumed by the bus engine but implemented elsewhere. Two concrete
// adapters ship in this module: soc/nxp/uart + soc/nxp/timer (bare-metal,
// register-level, grounded on the teacher's tamago UART driver) and
// soc/host/serial485 (a POSIX /dev/ttyUSBx adapter for desktop development).
package hal

// IntrMask is a bitmask of UART interrupt sources.
type IntrMask uint32

const (
	IntrRxFIFOFull IntrMask = 1 << iota
	IntrRxFIFOTimeout
	IntrRxFIFOOverflow
	IntrRxBreak
	IntrRxFramingError
	IntrRxParityError
	IntrTxFIFOEmpty
	IntrTxDone
	IntrTxCollision
)

// UART is the register-level contract the bus engine drives. Every method
// must be safe to call from both task and interrupt context; the HAL itself
// is responsible for any hardware-level locking it requires.
type UART interface {
	// IntrStatus returns the pending interrupt bits and clears nothing.
	IntrStatus() IntrMask
	// IntrEnable sets the given interrupt bits in the enable mask.
	IntrEnable(mask IntrMask)
	// IntrDisable clears the given interrupt bits in the enable mask.
	IntrDisable(mask IntrMask)
	// IntrClear acknowledges (clears) the given pending interrupt bits.
	IntrClear(mask IntrMask)

	// RxFIFOLen returns the number of bytes currently queued in the RX FIFO.
	RxFIFOLen() int
	// TxFIFOLen returns the number of bytes currently queued in the TX FIFO.
	TxFIFOLen() int
	// ReadRxFIFO drains up to len(dst) bytes from the RX FIFO into dst.
	ReadRxFIFO(dst []byte) (n int)
	// WriteTxFIFO pushes up to len(src) bytes into the TX FIFO.
	WriteTxFIFO(src []byte) (n int)
	// ResetRxFIFO discards any buffered RX bytes.
	ResetRxFIFO()

	// SetBaud configures the baud rate in bits/second.
	SetBaud(baud uint32)
	// SetBreakBits configures the number of bit-times the hardware break
	// generator (if any) asserts; the bus engine in this module drives
	// break timing itself via Timer, so this is advisory for HALs that
	// offload break generation.
	SetBreakBits(bits int)
	// SetIdleBits configures the MAB / idle-detect threshold in bit-times.
	SetIdleBits(bits int)

	// InvertTX inverts the logic level of the TX line; used to shape the
	// break (driven low) and MAB (driven high) without disabling the UART.
	InvertTX(invert bool)

	// GetRTS returns the current RTS line level (false = drive-TX, per the
	// invariant in §3: RTS level is 0 while sending).
	GetRTS() bool
	// SetRTS sets the RTS line level.
	SetRTS(level bool)

	// RxLevel returns the instantaneous level sampled on the RX line,
	// primarily for the sniffer and for line-idle detection.
	RxLevel() bool
}

// Timer is the auxiliary one-shot/periodic hardware timer contract: it
// drives the break/MAB reset sequence on TX and the RDM early-timeout
// window on RX.
type Timer interface {
	// SetCount loads the timer's free-running counter, in microseconds.
	SetCount(v uint64)
	// SetAlarm sets the timer to fire its callback v microseconds after
	// the next Start; autoReload causes the timer to repeat at the same
	// interval. HAL
	// implementations convert to their own native tick rate internally.
	SetAlarm(v uint64, autoReload bool)
	// Start enables the timer.
	Start()
	// Stop disables the timer.
	Stop()
	// SetISR installs the callback invoked when the alarm fires. HAL
	// implementations call it from interrupt context; callers must not
	// block in it.
	SetISR(fn func())
}
