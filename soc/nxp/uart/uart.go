// NXP UART driver for DMX512/RDM
// https://github.com/usbarmory/godmx
//
// Copyright (c) The godmx Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

//go:build tamago && arm

// Package uart implements the dmx/hal.UART contract for NXP i.MX UART
// controllers, adopting the same register map and access idiom as a plain
// RS-232 UART driver for the same family (IMX6ULLRM, 55.15 UART Memory
// Map/Register Definition) plus break detection. IntrStatus reports
// break, RX data ready, RX overrun, framing and parity errors, TX FIFO
// empty and TX ready; it never reports IntrRxFIFOTimeout or
// IntrTxCollision, so a received frame is closed only by the next break
// or by filling the buffer.
//
// This package is only meant to be used with `GOOS=tamago GOARCH=arm` as
// supported by the TamaGo framework for bare metal Go on ARM SoCs, see
// https://github.com/usbarmory/tamago.
package uart

import (
	"github.com/usbarmory/godmx/dmx/hal"
	"github.com/usbarmory/godmx/internal/bits"
	"github.com/usbarmory/godmx/internal/reg"
)

// UART registers, offsets relative to Base.
const (
	UARTx_URXD   = 0x0000
	URXD_CHARRDY = 15
	URXD_ERR     = 14
	URXD_OVRRUN  = 13
	URXD_FRMERR  = 12
	URXD_BRK     = 11
	URXD_PRERR   = 10
	URXD_RX_DATA = 0

	UARTx_UTXD   = 0x0040
	UTXD_TX_DATA = 0

	UARTx_UCR1    = 0x0080
	UCR1_ADEN     = 15
	UCR1_TRDYEN   = 13
	UCR1_RRDYEN   = 9
	UCR1_TXMPTYEN = 6
	UCR1_UARTEN   = 0

	UARTx_UCR2 = 0x0084
	UCR2_IRTS  = 14
	UCR2_CTSC  = 13
	UCR2_ESCEN = 11
	UCR2_STPB  = 6 // two stop bits (8N2)
	UCR2_WS    = 5
	UCR2_RTSEN = 4
	UCR2_TXEN  = 2
	UCR2_RXEN  = 1
	UCR2_SRST  = 0

	UARTx_UCR3     = 0x0088
	UCR3_DSR       = 10
	UCR3_DCD       = 9
	UCR3_RI        = 8
	UCR3_ADNIMP    = 7
	UCR3_RXDMUXSEL = 2
	UCR3_INVT      = 1 // invert TX line (used to shape break/MAB)

	UARTx_UCR4 = 0x008c
	UCR4_CTSTL = 10
	UCR4_BKEN  = 6 // break interrupt enable

	UARTx_UFCR = 0x0090
	UFCR_RFDIV = 7
	UFCR_TXTL  = 10
	UFCR_RXTL  = 0

	UARTx_USR1    = 0x0094
	USR1_PARITYERR = 15
	USR1_RTSS      = 14
	USR1_TRDY      = 13
	USR1_RTSD      = 12
	USR1_FRAMERR   = 10
	USR1_AWAKE     = 4

	UARTx_USR2 = 0x0098
	USR2_ADET  = 15
	USR2_TXFE  = 14 // TX FIFO empty
	USR2_ORE   = 1  // overrun error
	USR2_RDR   = 0

	UARTx_UBIR = 0x00a4
	UARTx_UBMR = 0x00a8
	UARTx_UTS  = 0x00b4
	UTS_TXFULL = 4
	UTS_RXEMPTY = 5
)

// UART represents a DMX512/RDM-capable serial port instance.
type UART struct {
	// Controller index
	Index int
	// Base register
	Base uint32
	// Clock gate register
	CCGR uint32
	// Clock gate
	CG int
	// Clock retrieval function
	Clock func() uint32

	// RTS GPIO, toggled to switch the RS-485 transceiver direction. The
	// i.MX hardware RTS/CTS flow control pins are not used for this -
	// direction control needs to be glitch-free and under driver
	// control, not automatic flow control.
	RTS interface {
		Out()
		High()
		Low()
		Get() bool
	}

	urxd, utxd                       uint32
	ucr1, ucr2, ucr3, ucr4           uint32
	ufcr, usr1, usr2                 uint32
	ubir, ubmr, uts                  uint32

	enabled hal.IntrMask
}

var _ hal.UART = (*UART)(nil)

// Init initializes the UART for 250000 8N2 DMX512 framing.
func (hw *UART) Init() {
	if hw.Base == 0 || hw.CCGR == 0 || hw.Clock == nil || hw.RTS == nil {
		panic("invalid UART controller instance")
	}

	hw.urxd = hw.Base + UARTx_URXD
	hw.utxd = hw.Base + UARTx_UTXD
	hw.ucr1 = hw.Base + UARTx_UCR1
	hw.ucr2 = hw.Base + UARTx_UCR2
	hw.ucr3 = hw.Base + UARTx_UCR3
	hw.ucr4 = hw.Base + UARTx_UCR4
	hw.ufcr = hw.Base + UARTx_UFCR
	hw.usr1 = hw.Base + UARTx_USR1
	hw.usr2 = hw.Base + UARTx_USR2
	hw.ubir = hw.Base + UARTx_UBIR
	hw.ubmr = hw.Base + UARTx_UBMR
	hw.uts = hw.Base + UARTx_UTS

	reg.SetN(hw.CCGR, hw.CG, 0b11, 0b11)
	hw.RTS.Out()
	hw.RTS.High()

	hw.setup()
	hw.SetBaud(250000)
}

func (hw *UART) setup() {
	reg.Write(hw.ucr1, 0)
	reg.Write(hw.ucr2, 0)
	reg.Wait(hw.ucr2, UCR2_SRST, 1, 1)

	var ucr3 uint32
	bits.Set(&ucr3, UCR3_DSR)
	bits.Set(&ucr3, UCR3_DCD)
	bits.Set(&ucr3, UCR3_RI)
	bits.Set(&ucr3, UCR3_ADNIMP)
	bits.Set(&ucr3, UCR3_RXDMUXSEL)
	reg.Write(hw.ucr3, ucr3)

	var ufcr uint32
	bits.SetN(&ufcr, UFCR_RFDIV, 0b111, 0b100)
	bits.SetN(&ufcr, UFCR_TXTL, 0b111111, 2)
	bits.SetN(&ufcr, UFCR_RXTL, 0b111111, 1)
	reg.Write(hw.ufcr, ufcr)

	var ucr2 uint32
	bits.Set(&ucr2, UCR2_WS)    // 8 data bits
	bits.Set(&ucr2, UCR2_STPB)  // 2 stop bits: 8N2 as DMX512 requires
	bits.Set(&ucr2, UCR2_IRTS)  // ignore the RTS input pin; RTS is ours
	bits.Set(&ucr2, UCR2_TXEN)
	bits.Set(&ucr2, UCR2_RXEN)
	bits.Set(&ucr2, UCR2_SRST)
	reg.SetN(hw.ucr4, UCR4_CTSTL, 0b111111, 32)
	reg.Write(hw.ucr2, ucr2)

	reg.Set(hw.ucr4, UCR4_BKEN)
	reg.Set(hw.ucr1, UCR1_UARTEN)
}

// SetBaud implements hal.UART.
func (hw *UART) SetBaud(baud uint32) {
	ubmr := hw.Clock() / (2 * baud)
	reg.Write(hw.ubir, 15)
	reg.Write(hw.ubmr, ubmr)
}

// SetBreakBits implements hal.UART. The i.MX UART break generator is not
// used by this driver (breaks are timed by the auxiliary hardware timer via
// InvertTX), so this is a no-op.
func (hw *UART) SetBreakBits(int) {}

// SetIdleBits implements hal.UART; the RX FIFO idle/timeout threshold is
// fixed by UFCR_RXTL=1 in setup(), matching a byte-at-a-time delimiter
// model suited to DMX/RDM framing.
func (hw *UART) SetIdleBits(int) {}

// InvertTX implements hal.UART: flips the UCR3 INVT bit so the bus engine
// can shape break (driven low) and MAB (driven high) without disabling the
// transmitter.
func (hw *UART) InvertTX(invert bool) {
	if invert {
		reg.Set(hw.ucr3, UCR3_INVT)
	} else {
		reg.Clear(hw.ucr3, UCR3_INVT)
	}
}

// GetRTS implements hal.UART.
func (hw *UART) GetRTS() bool {
	return hw.RTS.Get()
}

// SetRTS implements hal.UART: false drives TX (transceiver in send mode, per
// the §3 invariant), true listens.
func (hw *UART) SetRTS(level bool) {
	if level {
		hw.RTS.High()
	} else {
		hw.RTS.Low()
	}
}

// RxLevel implements hal.UART.
func (hw *UART) RxLevel() bool {
	return reg.Get(hw.urxd, URXD_RX_DATA, 1) == 1
}

// RxFIFOLen implements hal.UART.
func (hw *UART) RxFIFOLen() int {
	if reg.Get(hw.uts, UTS_RXEMPTY, 1) == 1 {
		return 0
	}
	return 1
}

// TxFIFOLen implements hal.UART.
func (hw *UART) TxFIFOLen() int {
	if reg.Get(hw.uts, UTS_TXFULL, 1) == 1 {
		return 32
	}
	return 0
}

// ReadRxFIFO implements hal.UART.
func (hw *UART) ReadRxFIFO(dst []byte) (n int) {
	for n < len(dst) && reg.Get(hw.usr2, USR2_RDR, 1) == 1 {
		urxd := reg.Read(hw.urxd)
		dst[n] = byte(bits.Get(&urxd, URXD_RX_DATA, 0xff))
		n++
	}
	return
}

// WriteTxFIFO implements hal.UART.
func (hw *UART) WriteTxFIFO(src []byte) (n int) {
	for n < len(src) && reg.Get(hw.uts, UTS_TXFULL, 1) == 0 {
		reg.Write(hw.utxd, uint32(src[n]))
		n++
	}
	return
}

// ResetRxFIFO implements hal.UART.
func (hw *UART) ResetRxFIFO() {
	reg.Set(hw.ucr2, UCR2_SRST)
	reg.Clear(hw.ucr2, UCR2_SRST)
}

// IntrStatus implements hal.UART, translating USR1/USR2 into the
// HAL-neutral hal.IntrMask bits the bus engine understands.
func (hw *UART) IntrStatus() (m hal.IntrMask) {
	usr1 := reg.Read(hw.usr1)
	usr2 := reg.Read(hw.usr2)

	if bits.Get(&usr2, USR2_ADET, 1) != 0 {
		m |= hal.IntrRxBreak
	}
	if bits.Get(&usr2, USR2_RDR, 1) != 0 {
		m |= hal.IntrRxFIFOFull
	}
	if bits.Get(&usr2, USR2_ORE, 1) != 0 {
		m |= hal.IntrRxFIFOOverflow
	}
	if bits.Get(&usr1, USR1_FRAMERR, 1) != 0 {
		m |= hal.IntrRxFramingError
	}
	if bits.Get(&usr1, USR1_PARITYERR, 1) != 0 {
		m |= hal.IntrRxParityError
	}
	if bits.Get(&usr2, USR2_TXFE, 1) != 0 {
		m |= hal.IntrTxFIFOEmpty
	}
	if bits.Get(&usr1, USR1_TRDY, 1) != 0 {
		m |= hal.IntrTxDone
	}

	return m & hw.enabled
}

// IntrEnable implements hal.UART.
func (hw *UART) IntrEnable(mask hal.IntrMask) {
	hw.enabled |= mask
	hw.applyIntrEnable()
}

// IntrDisable implements hal.UART.
func (hw *UART) IntrDisable(mask hal.IntrMask) {
	hw.enabled &^= mask
	hw.applyIntrEnable()
}

func (hw *UART) applyIntrEnable() {
	if hw.enabled&(hal.IntrTxFIFOEmpty|hal.IntrTxDone) != 0 {
		reg.Set(hw.ucr1, UCR1_TXMPTYEN)
	} else {
		reg.Clear(hw.ucr1, UCR1_TXMPTYEN)
	}
	if hw.enabled&(hal.IntrRxFIFOFull|hal.IntrRxBreak) != 0 {
		reg.Set(hw.ucr1, UCR1_RRDYEN)
	} else {
		reg.Clear(hw.ucr1, UCR1_RRDYEN)
	}
}

// IntrClear implements hal.UART; USR1/USR2 status bits are write-1-to-clear.
func (hw *UART) IntrClear(mask hal.IntrMask) {
	var usr1, usr2 uint32

	if mask&hal.IntrRxBreak != 0 {
		bits.Set(&usr2, USR2_ADET)
	}
	if mask&hal.IntrRxFIFOOverflow != 0 {
		bits.Set(&usr2, USR2_ORE)
	}
	if mask&hal.IntrRxFramingError != 0 {
		bits.Set(&usr1, USR1_FRAMERR)
	}
	if mask&hal.IntrRxParityError != 0 {
		bits.Set(&usr1, USR1_PARITYERR)
	}

	if usr1 != 0 {
		reg.Write(hw.usr1, usr1)
	}
	if usr2 != 0 {
		reg.Write(hw.usr2, usr2)
	}
}
