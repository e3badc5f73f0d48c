// DMX HAT support for the USB armory Mk II
// https://github.com/usbarmory/godmx
//
// Copyright (c) The godmx Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

//go:build tamago && arm

// Package dmxhat provides board-level wiring, automatically on import, for
// a USB armory Mk II fitted with an RS-485 transceiver HAT: UART2 carries
// the DMX512/RDM line, GPIO1 IO05 drives the transceiver's DE/RE select,
// GPIO1 IO06 feeds the optional edge-timed sniffer, and EPIT1 times the
// break/MAB sequence and RDM windows.
//
// This package is only meant to be used with `GOOS=tamago GOARCH=arm` as
// supported by the TamaGo framework for bare metal Go on ARM SoCs, see
// https://github.com/usbarmory/tamago.
package dmxhat

import (
	"time"

	"github.com/usbarmory/godmx/dmx"
	"github.com/usbarmory/godmx/dmx/hal"
	"github.com/usbarmory/godmx/dmx/rdm"
	"github.com/usbarmory/godmx/dmx/sniffer"
	"github.com/usbarmory/godmx/soc/nxp/gpio"
	"github.com/usbarmory/godmx/soc/nxp/timer"
	"github.com/usbarmory/godmx/soc/nxp/uart"

	"github.com/usbarmory/tamago/arm/gic"
	"github.com/usbarmory/tamago/soc/imx6"
	_ "github.com/usbarmory/tamago/soc/imx6/imx6ul"

	_ "unsafe"
)

// Interrupt lines (i.MX6ULL interrupt list, IMX6ULLRM Table 3-1).
const (
	irqUART2   = 27 + 32
	irqEPIT1   = 88 + 32
	irqGPIO1Lo = 64 + 32 // GPIO1_Combined_0_15, covers sniffer pin IO06
)

// snifferPinNum is the GPIO1 line wired to the transceiver's RX line for
// edge-timed break/MAB measurement, distinct from the RTS/DE-RE pin.
const snifferPinNum = 6

const (
	uart2Base = 0x021e8000
	gpio1Base = 0x0209c000
	epit1Base = 0x020d0000

	ccgr1 = 0x020c406c
	ccgr3 = 0x020c4074
)

// DefaultUID is the RDM manufacturer/device identity burned into a
// freshly-built responder; Init installs the port 0 driver with it.
var DefaultUID = rdm.UID{0x7f, 0xf0, 0x00, 0x00, 0x00, 0x01}

var (
	// GIC is the shared interrupt controller instance.
	GIC = &gic.GIC{Base: 0x00a00000}

	// UART is the board's DMX512/RDM serial port.
	UART = &uart.UART{
		Index: 2,
		Base:  uart2Base,
		CCGR:  ccgr1,
		CG:    10, // CCGR1 CG10 gates UART2
		Clock: func() uint32 { return 80000000 }, // ipg_clk, IMX6ULLRM 18.3
	}

	// Timer is the board's break/MAB/RDM-window auxiliary timer.
	Timer = &timer.Timer{
		Index: 1,
		Base:  epit1Base,
		CCGR:  ccgr1,
		CG:    6, // CCGR1 CG6 gates EPIT1
		Freq:  66000000,
	}

	rtsGPIO = &gpio.GPIO{Index: 1, Base: gpio1Base, CCGR: ccgr3, CG: 0}

	rtsPin     *gpio.Pin
	snifferPin *gpio.Pin

	// Driver is the installed bus engine instance for dmx.Port(0), valid
	// once Init has run.
	Driver *dmx.Driver

	// Sniffer is the optional edge-timed break/MAB instrument, wired in
	// Init to a real GPIO1 edge interrupt on the RTS-adjacent bank.
	// Board code that does not need it can simply not read from
	// Sniffer.Samples().
	Sniffer = sniffer.New()
)

// Init takes care of the lower level SoC and board initialization
// triggered early in runtime setup, matching the teacher's
// per-board hwinit entry point.
//
//go:linkname Init runtime.hwinit
func Init() {
	imx6.Init()

	GIC.Init(false, false)

	pin, err := rtsGPIO.Init(5)
	if err != nil {
		panic(err)
	}
	rtsPin = pin

	sPin, err := rtsGPIO.Init(snifferPinNum)
	if err != nil {
		panic(err)
	}
	snifferPin = sPin
	snifferPin.In()
	snifferPin.EnableEdgeIRQ()

	UART.RTS = rtsPin
	UART.Init()
	Timer.Init()

	d, err := dmx.Install(dmx.Port(0), dmx.Config{
		UART:      UART,
		Timer:     Timer,
		UID:       DefaultUID,
		OnRXBreak: Sniffer.Reset,
	})
	if err != nil {
		panic(err)
	}
	Driver = d

	GIC.EnableInterrupt(irqUART2, false)
	GIC.EnableInterrupt(irqEPIT1, false)
	GIC.EnableInterrupt(irqGPIO1Lo, false)

	go dispatchIRQ(irqUART2, Driver.HandleUARTInterrupt)
	go dispatchIRQ(irqEPIT1, Timer.HandleInterrupt)
	go dispatchIRQ(irqGPIO1Lo, handleSnifferEdge)
}

// handleSnifferEdge is the GPIO1 combined-interrupt handler for the
// sniffer's edge-capable pin: it acknowledges the latched interrupt and
// times the edge by the pin's level immediately after - high means the
// line just rose, low means it just fell.
func handleSnifferEdge() {
	if !snifferPin.IRQPending() {
		return
	}

	now := time.Now()
	snifferPin.AckIRQ()

	if snifferPin.Read() {
		Sniffer.RisingEdge(now)
	} else {
		Sniffer.FallingEdge(now)
	}
}

// dispatchIRQ blocks waiting for id to fire on GIC, invoking handle and
// acknowledging completion each time - the goroutine-per-line dispatch
// loop the tamago runtime's GIC.GetInterrupt contract is built for, one
// per interrupt source this board cares about.
func dispatchIRQ(id int, handle func()) {
	for {
		gotID, end := GIC.GetInterrupt(false)
		if gotID == id {
			handle()
		}
		close(end)
	}
}

var _ hal.UART = UART
var _ hal.Timer = Timer
