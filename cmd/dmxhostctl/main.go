// Command dmxhostctl turns a desktop plus a USB RS-485 dongle into an RDM
// responder, for exercising a real controller against this module's
// parameter store and dispatcher without any embedded target.
package main

import (
	"flag"
	"log"
	"os"
	"os/signal"
	"time"

	"github.com/usbarmory/godmx/dmx"
	"github.com/usbarmory/godmx/dmx/rdm"
	"github.com/usbarmory/godmx/soc/host/serial485"
)

func main() {
	device := flag.String("device", "/dev/ttyUSB0", "serial device the RS-485 dongle is attached to")
	uidFlag := flag.String("uid", "7ff0:00000002", "this responder's RDM UID (MMMM:DDDDDDDD hex)")
	label := flag.String("label", "godmx host responder", "RDM DEVICE_LABEL default value")
	flag.Parse()

	uid, err := parseUID(*uidFlag)
	if err != nil {
		log.Fatalf("dmxhostctl: invalid -uid: %v", err)
	}

	u, err := serial485.Open(*device, nil)
	if err != nil {
		log.Fatalf("dmxhostctl: open %s: %v", *device, err)
	}
	defer u.Close()

	table := rdm.NewDefaultTable(uid)
	table.Set(rdm.PIDDeviceLabel, []byte(*label))

	d, err := dmx.Install(dmx.Port(0), dmx.Config{
		UART:  u,
		Timer: serial485.NewTimer(),
		UID:   uid,
		Table: table,
	})
	if err != nil {
		log.Fatalf("dmxhostctl: install: %v", err)
	}
	defer dmx.Uninstall(dmx.Port(0))

	u.SetOnInterrupt(d.HandleUARTInterrupt)
	u.SetRTS(true)

	log.Printf("dmxhostctl: responding as %s on %s", uid, *device)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt)

	done := make(chan struct{})
	go receiveLoop(d, done)

	<-sig
	close(done)
}

// receiveLoop repeatedly blocks in Receive; RDM requests addressed to
// this responder's UID are dispatched and answered inside the call, so
// the loop's only job is to keep calling it. DMX data frames (not
// addressed RDM) are simply discarded after Receive returns.
func receiveLoop(d *dmx.Driver, done <-chan struct{}) {
	var pkt dmx.Packet
	for {
		select {
		case <-done:
			return
		default:
		}

		if _, err := d.Receive(&pkt, 200*time.Millisecond); err != nil {
			continue
		}
	}
}

func parseUID(s string) (rdm.UID, error) {
	var u rdm.UID
	if len(s) != 13 || s[4] != ':' {
		return u, &uidError{s}
	}

	var raw [6]byte
	if _, err := hexDecode(raw[:], s[0:4]+s[5:13]); err != nil {
		return u, err
	}

	copy(u[:], raw[:])
	return u, nil
}

type uidError struct{ s string }

func (e *uidError) Error() string { return "expected MMMM:DDDDDDDD, got " + e.s }

func hexDecode(dst []byte, s string) (int, error) {
	n := 0
	for i := 0; i+1 < len(s) && n < len(dst); i += 2 {
		hi, ok1 := hexDigit(s[i])
		lo, ok2 := hexDigit(s[i+1])
		if !ok1 || !ok2 {
			return n, &uidError{s}
		}
		dst[n] = hi<<4 | lo
		n++
	}
	return n, nil
}

func hexDigit(c byte) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	}
	return 0, false
}
