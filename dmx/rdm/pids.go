package rdm

// Standard RDM PIDs (ANSI E1.20 §10) this responder pre-registers. Not all
// of E1.20's required set is implemented - spec.md names the store and
// dispatcher mechanism without enumerating a default PID set, so this is a
// supplemented baseline (see SPEC_FULL.md) sufficient to answer a
// controller's discovery + info probe.
const (
	PIDProxiedDevices        uint16 = 0x0010
	PIDSupportedParameters   uint16 = 0x0050
	PIDParameterDescription  uint16 = 0x0051
	PIDDeviceInfo            uint16 = 0x0060
	PIDDeviceModelDesc       uint16 = 0x0080
	PIDDeviceLabel           uint16 = 0x0082
	PIDSoftwareVersionLabel  uint16 = 0x00c0
	PIDDMXPersonality        uint16 = 0x00e0
	PIDDMXStartAddress       uint16 = 0x00f0
	PIDIdentifyDevice        uint16 = 0x1000
)

// requiredPIDs are excluded from SUPPORTED_PARAMETERS' response, per E1.20
// (discovery PIDs and the "required" set are never listed there).
var requiredPIDs = map[uint16]bool{
	PIDDiscUniqueBranch:    true,
	PIDDiscMute:            true,
	PIDDiscUnMute:          true,
	PIDSupportedParameters: true,
	PIDDeviceInfo:          true,
	PIDSoftwareVersionLabel: true,
	PIDIdentifyDevice:      true,
}

// NewDefaultTable builds a parameter table pre-registered with the PID set
// a minimal RDM responder needs to answer DEVICE_INFO / discovery probes,
// bound to myUID for DEVICE_INFO's echo fields.
func NewDefaultTable(myUID UID) *Table {
	t := NewTable()

	t.AddDeterministic(Definition{PID: PIDSupportedParameters, PDLSize: 0}, "", supportedParametersHandler(t))

	t.AddDeterministic(Definition{PID: PIDDeviceInfo, PDLSize: 19}, "wwwlwbbwwb", deviceInfoHandler)

	t.AddNew(Definition{PID: PIDSoftwareVersionLabel, PDLSize: 32, Type: DataTypeASCII}, "a", false, asciiGetHandler, []byte("godmx 1.0"))

	t.AddNew(Definition{PID: PIDDeviceLabel, PDLSize: 32, Type: DataTypeASCII}, "a", true, asciiGetSetHandler, []byte("godmx responder"))

	t.AddNew(Definition{PID: PIDIdentifyDevice, PDLSize: 1}, "b", false, identifyHandler, []byte{0})

	t.AddNew(Definition{PID: PIDDMXStartAddress, PDLSize: 2}, "w", true, dmxStartAddressHandler, []byte{0, 1})

	t.AddDeterministic(Definition{PID: PIDProxiedDevices, PDLSize: 0}, "", emptyListHandler)

	return t
}

func nack(reason uint16) (pdOut []byte, nackReason uint16, rt ResponseType) {
	return nil, reason, RespNackReason
}

func ack(pdOut []byte) (pdOutRet []byte, nackReason uint16, rt ResponseType) {
	return pdOut, 0, RespACK
}

func deviceInfoHandler(ctx *HandlerContext) ([]byte, uint16, ResponseType) {
	if ctx.Header.CC != CCGetCommand {
		return nack(NRUnsupportedCommandClass)
	}

	pd, err := PackFormat("wwwlwbbwwb",
		0x0100,     // RDM protocol version 1.0
		0x0001,     // device model ID
		0x0000,     // product category: not declared
		0x00000001, // software version ID
		1,          // DMX footprint: 1 slot (start code's data payload)
		0,          // current personality
		1,          // personality count
		1,          // DMX start address
		0,          // sub-device count (root only, §1 Non-goals)
		0,          // sensor count
	)
	if err != nil {
		return nack(NRHardwareFault)
	}

	return ack(pd)
}

func supportedParametersHandler(t *Table) Handler {
	return func(ctx *HandlerContext) ([]byte, uint16, ResponseType) {
		if ctx.Header.CC != CCGetCommand {
			return nack(NRUnsupportedCommandClass)
		}

		all := make([]uint16, len(t.params))
		n := t.List(all)

		var pd []byte
		for _, pid := range all[:n] {
			if requiredPIDs[pid] {
				continue
			}
			b, _ := PackFormat("w", uint64(pid))
			pd = append(pd, b...)
		}

		return ack(pd)
	}
}

func asciiGetHandler(ctx *HandlerContext) ([]byte, uint16, ResponseType) {
	if ctx.Header.CC != CCGetCommand {
		return nack(NRUnsupportedCommandClass)
	}
	return ack(trimASCII(ctx.Param.data))
}

func asciiGetSetHandler(ctx *HandlerContext) ([]byte, uint16, ResponseType) {
	switch ctx.Header.CC {
	case CCGetCommand:
		return ack(trimASCII(ctx.Param.data))
	case CCSetCommand:
		if len(ctx.PDIn) > len(ctx.Param.data) {
			return nack(NRFormatError)
		}
		ctx.Table.Set(ctx.Param.Definition.PID, ctx.PDIn)
		return ack(nil)
	}
	return nack(NRUnsupportedCommandClass)
}

func identifyHandler(ctx *HandlerContext) ([]byte, uint16, ResponseType) {
	switch ctx.Header.CC {
	case CCGetCommand:
		return ack(append([]byte(nil), ctx.Param.data...))
	case CCSetCommand:
		if len(ctx.PDIn) != 1 || (ctx.PDIn[0] != 0 && ctx.PDIn[0] != 1) {
			return nack(NRFormatError)
		}
		ctx.Table.Set(ctx.Param.Definition.PID, ctx.PDIn)
		return ack(nil)
	}
	return nack(NRUnsupportedCommandClass)
}

func dmxStartAddressHandler(ctx *HandlerContext) ([]byte, uint16, ResponseType) {
	switch ctx.Header.CC {
	case CCGetCommand:
		return ack(append([]byte(nil), ctx.Param.data...))
	case CCSetCommand:
		vals, err := UnpackFormat("w", ctx.PDIn)
		if err != nil || vals[0] == 0 || vals[0] > 512 {
			return nack(NRDataOutOfRange)
		}
		ctx.Table.Set(ctx.Param.Definition.PID, ctx.PDIn)
		return ack(nil)
	}
	return nack(NRUnsupportedCommandClass)
}

func emptyListHandler(ctx *HandlerContext) ([]byte, uint16, ResponseType) {
	if ctx.Header.CC != CCGetCommand {
		return nack(NRUnsupportedCommandClass)
	}
	return ack(nil)
}

func trimASCII(b []byte) []byte {
	n := len(b)
	for n > 0 && b[n-1] == 0 {
		n--
	}
	return b[:n]
}
