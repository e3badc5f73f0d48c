// Command dmxctl is a host-side DMX512/RDM reference controller: it opens
// an RS-485 dongle via soc/host/serial485, installs the bus engine, and
// either refreshes a synthetic test pattern at a configurable frame rate
// or sends a single RDM request and prints the response.
package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/usbarmory/godmx/dmx"
	"github.com/usbarmory/godmx/dmx/rdm"
	"github.com/usbarmory/godmx/soc/host/serial485"
)

func main() {
	pflag.String("device", "/dev/ttyUSB0", "serial device the RS-485 dongle is attached to")
	pflag.Uint32("baud", 250000, "line rate in bits/second")
	pflag.Duration("break", dmx.DefaultBreakLen, "outbound break length")
	pflag.Duration("mab", dmx.DefaultMABLen, "outbound mark-after-break length")
	pflag.String("uid", "7ff0:00000001", "this controller's RDM UID (MMMM:DDDDDDDD hex)")
	pflag.Float64("rate", 40, "test pattern refresh rate in Hz (0 disables the pacer)")
	pflag.String("rdm-get", "", "PID (hex) to GET from --rdm-dest instead of running the pacer")
	pflag.String("rdm-dest", "ffff:ffffffff", "destination UID for --rdm-get")
	pflag.Parse()

	viper.BindPFlags(pflag.CommandLine)
	viper.SetEnvPrefix("dmxctl")
	viper.AutomaticEnv()

	logger, _ := zap.NewDevelopment()
	defer logger.Sync()
	log := logger.Sugar()

	uid, err := parseUID(viper.GetString("uid"))
	if err != nil {
		log.Fatalw("invalid --uid", "error", err)
	}

	u, err := serial485.Open(viper.GetString("device"), nil)
	if err != nil {
		log.Fatalw("failed to open serial device", "device", viper.GetString("device"), "error", err)
	}
	defer u.Close()

	u.SetBaud(viper.GetUint32("baud"))

	t := serial485.NewTimer()

	d, err := dmx.Install(dmx.Port(0), dmx.Config{
		UART:     u,
		Timer:    t,
		UID:      uid,
		BreakLen: viper.GetDuration("break"),
		MABLen:   viper.GetDuration("mab"),
		Logger:   zapLogger{log},
	})
	if err != nil {
		log.Fatalw("failed to install driver", "error", err)
	}
	defer dmx.Uninstall(dmx.Port(0))

	u.SetOnInterrupt(d.HandleUARTInterrupt)
	u.SetRTS(true)

	if pid := viper.GetString("rdm-get"); pid != "" {
		if err := runRDMGet(d, uid, pid, viper.GetString("rdm-dest")); err != nil {
			log.Fatalw("rdm get failed", "error", err)
		}
		return
	}

	runPacer(d, viper.GetFloat64("rate"), log)
}

func runPacer(d *dmx.Driver, hz float64, log *zap.SugaredLogger) {
	if hz <= 0 {
		log.Info("pacer disabled (--rate 0); exiting after install")
		return
	}

	limiter := rate.NewLimiter(rate.Limit(hz), 1)

	frame := make([]byte, dmx.DMXMaxPacketSize)
	frame[0] = dmx.StartCodeDMX

	var tick byte
	log.Infow("starting test pattern pacer", "hz", hz)

	for {
		if err := limiter.Wait(context.Background()); err != nil {
			return
		}

		tick++
		for i := 1; i < len(frame); i++ {
			frame[i] = tick
		}

		n := d.Write(0, frame, len(frame))
		if _, err := d.Send(n); err != nil {
			log.Warnw("send failed", "error", err)
		}
		d.WaitSent(-1)
	}
}

func runRDMGet(d *dmx.Driver, myUID rdm.UID, pidHex, destHex string) error {
	pidBytes, err := hex.DecodeString(pidHex)
	if err != nil || len(pidBytes) != 2 {
		return fmt.Errorf("--rdm-get wants a 4-digit hex PID, got %q", pidHex)
	}
	pid := uint16(pidBytes[0])<<8 | uint16(pidBytes[1])

	dest, err := parseUID(destHex)
	if err != nil {
		return err
	}

	h := rdm.Header{
		DestUID: dest,
		SrcUID:  myUID,
		PortID:  1,
		CC:      rdm.CCGetCommand,
		PID:     pid,
	}

	var buf [rdm.HeaderLen + rdm.ChecksumLen]byte
	n := rdm.Encode(buf[:], &h, nil)

	d.Write(0, buf[:n], n)
	if _, err := d.Send(n); err != nil {
		return err
	}

	var pkt dmx.Packet
	if _, err := d.Receive(&pkt, 50*time.Millisecond); err != nil {
		return err
	}
	if pkt.Size == 0 {
		return fmt.Errorf("no response within the controller window")
	}

	respBuf := make([]byte, pkt.Size)
	d.Read(0, respBuf, pkt.Size)

	resp, pd, ok := rdm.ParseHeader(respBuf)
	if !ok {
		return fmt.Errorf("malformed response frame")
	}

	fmt.Printf("response from %s: CC=%#02x PID=%#04x PortID/RT=%#02x pd=%x\n",
		resp.SrcUID, resp.CC, resp.PID, resp.PortID, pd)

	return nil
}

func parseUID(s string) (rdm.UID, error) {
	var u rdm.UID
	if len(s) != 13 || s[4] != ':' {
		return u, fmt.Errorf("expected MMMM:DDDDDDDD, got %q", s)
	}

	raw, err := hex.DecodeString(s[0:4] + s[5:13])
	if err != nil || len(raw) != 6 {
		return u, fmt.Errorf("invalid hex in UID %q", s)
	}

	copy(u[:], raw)
	return u, nil
}

// zapLogger adapts *zap.SugaredLogger to dmx.Logger.
type zapLogger struct {
	log *zap.SugaredLogger
}

func (l zapLogger) Printf(format string, args ...any) {
	l.log.Infof(format, args...)
}
