// NXP GPIO support for RS-485 direction control
// https://github.com/usbarmory/godmx
//
// Copyright (c) The godmx Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

//go:build tamago && arm

// Package gpio implements the minimal GPIO helpers the DMX/RDM driver
// needs: a direction-controlled output pin for the RS-485 transceiver's
// DE/RE select, and an edge-readable input pin for the optional sniffer.
package gpio

import (
	"errors"
	"fmt"

	"github.com/usbarmory/godmx/internal/reg"
)

// Register offsets (IMX6ULLRM 28.7, "GPIO Memory Map").
const (
	GPIO_DR       = 0x00
	GPIO_GDIR     = 0x04
	GPIO_PSR      = 0x08
	GPIO_ICR1     = 0x0c
	GPIO_ICR2     = 0x10
	GPIO_IMR      = 0x14
	GPIO_ISR      = 0x18
	GPIO_EDGE_SEL = 0x1c
)

// GPIO is a bank controller instance.
type GPIO struct {
	Index int
	Base  uint32
	CCGR  uint32
	CG    int

	clk bool
}

// Pin is a single GPIO line within a bank.
type Pin struct {
	num     int
	data    uint32
	dir     uint32
	psr     uint32
	imr     uint32
	isr     uint32
	edgeSel uint32
}

// Init configures pin num on the controller.
func (hw *GPIO) Init(num int) (*Pin, error) {
	if hw.Base == 0 || hw.CCGR == 0 {
		return nil, errors.New("invalid GPIO controller instance")
	}
	if num > 31 {
		return nil, fmt.Errorf("invalid GPIO number %d", num)
	}

	p := &Pin{
		num:     num,
		data:    hw.Base + GPIO_DR,
		dir:     hw.Base + GPIO_GDIR,
		psr:     hw.Base + GPIO_PSR,
		imr:     hw.Base + GPIO_IMR,
		isr:     hw.Base + GPIO_ISR,
		edgeSel: hw.Base + GPIO_EDGE_SEL,
	}

	if !hw.clk {
		reg.SetN(hw.CCGR, hw.CG, 0b11, 0b11)
		hw.clk = true
	}

	return p, nil
}

// Out configures the pin as output.
func (p *Pin) Out() { reg.Set(p.dir, p.num) }

// In configures the pin as input.
func (p *Pin) In() { reg.Clear(p.dir, p.num) }

// High drives the pin high.
func (p *Pin) High() { reg.Set(p.data, p.num) }

// Low drives the pin low.
func (p *Pin) Low() { reg.Clear(p.data, p.num) }

// Get returns the driven (output) or sampled (input) level.
func (p *Pin) Get() bool { return reg.Get(p.data, p.num, 1) == 1 }

// Read samples the instantaneous pad level regardless of direction,
// matching dmx/sniffer.EdgePin's Read semantics.
func (p *Pin) Read() bool { return reg.Get(p.psr, p.num, 1) == 1 }

// EnableEdgeIRQ configures the pin to interrupt on either edge (EDGE_SEL
// overrides the ICR1/ICR2 level/edge selection for the pin) and unmasks
// it. The pin must already be configured as input via In.
func (p *Pin) EnableEdgeIRQ() {
	reg.Set(p.edgeSel, p.num)
	reg.Set(p.isr, p.num) // W1C: clear any interrupt latched before unmasking
	reg.Set(p.imr, p.num)
}

// DisableEdgeIRQ masks the pin's interrupt and clears its any-edge
// selection.
func (p *Pin) DisableEdgeIRQ() {
	reg.Clear(p.imr, p.num)
	reg.Clear(p.edgeSel, p.num)
}

// IRQPending reports whether this pin's edge interrupt is latched in ISR.
func (p *Pin) IRQPending() bool { return reg.Get(p.isr, p.num, 1) == 1 }

// AckIRQ clears the pin's latched edge interrupt (ISR is write-1-to-clear).
func (p *Pin) AckIRQ() { reg.Set(p.isr, p.num) }
