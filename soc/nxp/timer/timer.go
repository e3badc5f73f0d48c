// NXP EPIT timer driver for DMX512/RDM
// https://github.com/usbarmory/godmx
//
// Copyright (c) The godmx Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

//go:build tamago && arm

// Package timer implements the dmx/hal.Timer contract on top of an i.MX
// Enhanced Periodic Interrupt Timer (EPIT) instance, used by the bus
// engine to shape break/MAB intervals and to arm the RDM early-timeout
// window.
package timer

import (
	"github.com/usbarmory/godmx/dmx/hal"
	"github.com/usbarmory/godmx/internal/bits"
	"github.com/usbarmory/godmx/internal/reg"
)

// EPIT registers.
const (
	EPITx_CR   = 0x00
	CR_CLKSRC  = 24
	CR_SWR     = 16
	CR_IOVW    = 17
	CR_RLD     = 3
	CR_OCIEN   = 2
	CR_ENMOD   = 1
	CR_EN      = 0

	EPITx_SR  = 0x04
	SR_OCIF   = 0

	EPITx_LR   = 0x08
	EPITx_CMPR = 0x0c
	EPITx_CNR  = 0x10
)

// Timer represents a one-shot/periodic auxiliary timer instance driving
// the bus engine's break/MAB sequencer and RDM timeout windows.
type Timer struct {
	// Controller index
	Index int
	// Base register
	Base uint32
	// Clock gate register
	CCGR uint32
	// Clock gate
	CG int
	// Clock frequency in Hz, after prescaling
	Freq uint32

	cr, sr, lr, cmpr, cnr uint32
	isr                   func()
}

var _ hal.Timer = (*Timer)(nil)

// Init initializes the timer in free-running, software-reset state.
func (hw *Timer) Init() {
	if hw.Base == 0 || hw.CCGR == 0 || hw.Freq == 0 {
		panic("invalid timer instance")
	}

	hw.cr = hw.Base + EPITx_CR
	hw.sr = hw.Base + EPITx_SR
	hw.lr = hw.Base + EPITx_LR
	hw.cmpr = hw.Base + EPITx_CMPR
	hw.cnr = hw.Base + EPITx_CNR

	reg.SetN(hw.CCGR, hw.CG, 0b11, 0b11)

	reg.Set(hw.cr, CR_SWR)
	reg.Wait(hw.cr, CR_SWR, 1, 0)

	var cr uint32
	bits.Set(&cr, CR_IOVW)
	bits.Set(&cr, CR_ENMOD) // counter reloads from LR on enable
	bits.Set(&cr, CR_OCIEN)
	reg.Write(hw.cr, cr)
}

// ticks converts a microsecond duration to this timer's native tick count
// at its configured Freq.
func (hw *Timer) ticks(us uint64) uint32 {
	return uint32(us * uint64(hw.Freq) / 1000000)
}

// SetCount implements hal.Timer: loads the reload register so the counter
// starts counting down from v microseconds on the next Start.
func (hw *Timer) SetCount(v uint64) {
	reg.Write(hw.lr, hw.ticks(v))
}

// SetAlarm implements hal.Timer.
func (hw *Timer) SetAlarm(v uint64, autoReload bool) {
	t := hw.ticks(v)
	reg.Write(hw.cmpr, t)
	reg.Write(hw.lr, t)

	if autoReload {
		reg.Set(hw.cr, CR_RLD)
	} else {
		reg.Clear(hw.cr, CR_RLD)
	}
}

// Start implements hal.Timer.
func (hw *Timer) Start() {
	reg.Set(hw.cr, CR_EN)
}

// Stop implements hal.Timer.
func (hw *Timer) Stop() {
	reg.Clear(hw.cr, CR_EN)
}

// SetISR implements hal.Timer. HandleInterrupt must be wired by board code
// to the EPIT's IRQ line via the SoC interrupt controller; this only
// records the callback.
func (hw *Timer) SetISR(fn func()) {
	hw.isr = fn
}

// HandleInterrupt is the EPIT IRQ entry point: acknowledges the compare
// event and invokes the installed callback. Must be registered against the
// EPIT's interrupt line by board init code.
func (hw *Timer) HandleInterrupt() {
	reg.Write(hw.sr, 1<<SR_OCIF)

	if hw.isr != nil {
		hw.isr()
	}
}
