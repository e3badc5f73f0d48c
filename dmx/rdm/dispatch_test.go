package rdm

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// fakeResponder is a minimal rdm.Responder for exercising Dispatch without
// a bus engine: Buffer and Send just capture what was composed.
type fakeResponder struct {
	buf  [512]byte
	sent []byte
}

func (r *fakeResponder) Buffer() []byte { return r.buf[:] }

func (r *fakeResponder) Send(size int) (int, error) {
	r.sent = append([]byte(nil), r.buf[:size]...)
	return size, nil
}

func encodeRequest(t *testing.T, h Header, pd []byte) []byte {
	t.Helper()
	var buf [HeaderLen + MaxPDL + ChecksumLen]byte
	n := Encode(buf[:], &h, pd)
	return buf[:n]
}

// scenario 3: RDM GET of DEVICE_INFO.
func TestDispatchDeviceInfoGET(t *testing.T) {
	myUID := UID{0x7f, 0xf0, 0, 0, 0, 1}
	srcUID := UID{0x00, 0x11, 0x22, 0x33, 0x44, 0x55}
	tbl := NewDefaultTable(myUID)

	req := encodeRequest(t, Header{
		DestUID: myUID,
		SrcUID:  srcUID,
		TN:      7,
		CC:      CCGetCommand,
		PID:     PIDDeviceInfo,
	}, nil)

	r := &fakeResponder{}
	tbl.Dispatch(myUID, r, req)

	require.NotEmpty(t, r.sent)
	resp, pd, ok := ParseHeader(r.sent)
	require.True(t, ok)
	require.Equal(t, byte(CCGetCommandResponse), resp.CC)
	require.Equal(t, srcUID, resp.DestUID)
	require.Equal(t, myUID, resp.SrcUID)
	require.Equal(t, byte(ResponseTypeACK), resp.PortID)
	require.Equal(t, byte(7), resp.TN)
	require.Len(t, pd, 19)
}

// scenario 4: broadcast dest suppresses any response even though the
// handler still ran.
func TestDispatchBroadcastSuppressesResponse(t *testing.T) {
	myUID := UID{0x7f, 0xf0, 0, 0, 0, 1}
	tbl := NewDefaultTable(myUID)

	req := encodeRequest(t, Header{
		DestUID: BroadcastUID,
		SrcUID:  UID{0x00, 0x11, 0x22, 0x33, 0x44, 0x55},
		CC:      CCGetCommand,
		PID:     PIDProxiedDevices,
	}, nil)

	r := &fakeResponder{}
	tbl.Dispatch(myUID, r, req)

	require.Empty(t, r.sent)
}

// scenario 6: an unregistered PID NACKs with NR_UNKNOWN_PID.
func TestDispatchUnknownPIDNacks(t *testing.T) {
	myUID := UID{0x7f, 0xf0, 0, 0, 0, 1}
	tbl := NewDefaultTable(myUID)

	req := encodeRequest(t, Header{
		DestUID: myUID,
		SrcUID:  UID{0x00, 0x11, 0x22, 0x33, 0x44, 0x55},
		CC:      CCGetCommand,
		PID:     0x1234,
	}, nil)

	r := &fakeResponder{}
	tbl.Dispatch(myUID, r, req)

	resp, pd, ok := ParseHeader(r.sent)
	require.True(t, ok)
	require.Equal(t, byte(ResponseTypeNackReason), resp.PortID)
	require.Equal(t, []byte{0x00, 0x11}, pd)
}

func TestDispatchSubDeviceOutOfRangeNacks(t *testing.T) {
	myUID := UID{0x7f, 0xf0, 0, 0, 0, 1}
	tbl := NewDefaultTable(myUID)

	req := encodeRequest(t, Header{
		DestUID:   myUID,
		SrcUID:    UID{0x00, 0x11, 0x22, 0x33, 0x44, 0x55},
		CC:        CCGetCommand,
		PID:       PIDDeviceInfo,
		SubDevice: 3,
	}, nil)

	r := &fakeResponder{}
	tbl.Dispatch(myUID, r, req)

	resp, pd, ok := ParseHeader(r.sent)
	require.True(t, ok)
	require.Equal(t, byte(ResponseTypeNackReason), resp.PortID)
	require.Equal(t, []byte{0x00, byte(NRSubDeviceOutOfRange)}, pd)
}

// A broadcast request with an out-of-range sub-device must still be
// silently dropped, not NACKed - every responder on the bus would
// otherwise answer at once and collide.
func TestDispatchSubDeviceOutOfRangeBroadcastIsSilent(t *testing.T) {
	myUID := UID{0x7f, 0xf0, 0, 0, 0, 1}
	tbl := NewDefaultTable(myUID)

	req := encodeRequest(t, Header{
		DestUID:   BroadcastUID,
		SrcUID:    UID{0x00, 0x11, 0x22, 0x33, 0x44, 0x55},
		CC:        CCGetCommand,
		PID:       PIDDeviceInfo,
		SubDevice: 3,
	}, nil)

	r := &fakeResponder{}
	tbl.Dispatch(myUID, r, req)

	require.Empty(t, r.sent)
}

// Broadcast DISC_UN_MUTE ("un-mute all") must still flip the mute state,
// but must not elicit a response - ANSI E1.20 permits this broadcast and
// every responder answering it at once would collide on the bus.
func TestDispatchBroadcastMuteUnmuteAppliesStateButIsSilent(t *testing.T) {
	myUID := UID{0x7f, 0xf0, 0, 0, 0, 1}
	tbl := NewDefaultTable(myUID)

	muteReq := encodeRequest(t, Header{
		DestUID: BroadcastUID,
		SrcUID:  UID{0x00, 0x11, 0x22, 0x33, 0x44, 0x55},
		CC:      CCDiscoveryCommand,
		PID:     PIDDiscMute,
	}, nil)

	r := &fakeResponder{}
	tbl.Dispatch(myUID, r, muteReq)
	require.True(t, tbl.Muted())
	require.Empty(t, r.sent)

	unmuteReq := encodeRequest(t, Header{
		DestUID: BroadcastUID,
		SrcUID:  UID{0x00, 0x11, 0x22, 0x33, 0x44, 0x55},
		CC:      CCDiscoveryCommand,
		PID:     PIDDiscUnMute,
	}, nil)
	tbl.Dispatch(myUID, r, unmuteReq)
	require.False(t, tbl.Muted())
	require.Empty(t, r.sent)
}

func TestDispatchMuteUnmute(t *testing.T) {
	myUID := UID{0x7f, 0xf0, 0, 0, 0, 1}
	tbl := NewDefaultTable(myUID)

	muteReq := encodeRequest(t, Header{
		DestUID: myUID,
		SrcUID:  UID{0x00, 0x11, 0x22, 0x33, 0x44, 0x55},
		CC:      CCDiscoveryCommand,
		PID:     PIDDiscMute,
	}, nil)

	r := &fakeResponder{}
	tbl.Dispatch(myUID, r, muteReq)
	require.True(t, tbl.Muted())

	resp, _, ok := ParseHeader(r.sent)
	require.True(t, ok)
	require.Equal(t, byte(ResponseTypeACK), resp.PortID)

	unmuteReq := encodeRequest(t, Header{
		DestUID: myUID,
		SrcUID:  UID{0x00, 0x11, 0x22, 0x33, 0x44, 0x55},
		CC:      CCDiscoveryCommand,
		PID:     PIDDiscUnMute,
	}, nil)
	tbl.Dispatch(myUID, r, unmuteReq)
	require.False(t, tbl.Muted())
}

func TestDispatchDiscUniqueBranchWithinRange(t *testing.T) {
	myUID := UID{0x7f, 0xf0, 0, 0, 0, 5}
	tbl := NewDefaultTable(myUID)

	var pd [12]byte
	lower := UID{0x7f, 0xf0, 0, 0, 0, 1}
	upper := UID{0x7f, 0xf0, 0, 0, 0, 10}
	copy(pd[0:6], lower[:])
	copy(pd[6:12], upper[:])

	req := encodeRequest(t, Header{
		DestUID: BroadcastUID,
		SrcUID:  UID{0x00, 0x11, 0x22, 0x33, 0x44, 0x55},
		CC:      CCDiscoveryCommand,
		PID:     PIDDiscUniqueBranch,
	}, pd[:])

	r := &fakeResponder{}
	tbl.Dispatch(myUID, r, req)

	require.Len(t, r.sent, 24) // 7x0xFE + 0xAA + 8 bytes doubled
	require.Equal(t, byte(0xaa), r.sent[7])
}

func TestDispatchDiscUniqueBranchOutsideRangeIsSilent(t *testing.T) {
	myUID := UID{0x7f, 0xf0, 0, 0, 0, 20}
	tbl := NewDefaultTable(myUID)

	var pd [12]byte
	lower := UID{0x7f, 0xf0, 0, 0, 0, 1}
	upper := UID{0x7f, 0xf0, 0, 0, 0, 10}
	copy(pd[0:6], lower[:])
	copy(pd[6:12], upper[:])

	req := encodeRequest(t, Header{
		DestUID: BroadcastUID,
		SrcUID:  UID{0x00, 0x11, 0x22, 0x33, 0x44, 0x55},
		CC:      CCDiscoveryCommand,
		PID:     PIDDiscUniqueBranch,
	}, pd[:])

	r := &fakeResponder{}
	tbl.Dispatch(myUID, r, req)

	require.Empty(t, r.sent)
}

func TestDispatchDiscUniqueBranchMutedIsSilent(t *testing.T) {
	myUID := UID{0x7f, 0xf0, 0, 0, 0, 5}
	tbl := NewDefaultTable(myUID)
	tbl.Mute()

	var pd [12]byte
	copy(pd[0:6], UID{0, 0, 0, 0, 0, 0}[:])
	copy(pd[6:12], UID{0xff, 0xff, 0xff, 0xff, 0xff, 0xff}[:])

	req := encodeRequest(t, Header{
		DestUID: BroadcastUID,
		SrcUID:  UID{0x00, 0x11, 0x22, 0x33, 0x44, 0x55},
		CC:      CCDiscoveryCommand,
		PID:     PIDDiscUniqueBranch,
	}, pd[:])

	r := &fakeResponder{}
	tbl.Dispatch(myUID, r, req)

	require.Empty(t, r.sent)
}

func TestDispatchSetDeviceLabel(t *testing.T) {
	myUID := UID{0x7f, 0xf0, 0, 0, 0, 1}
	tbl := NewDefaultTable(myUID)

	req := encodeRequest(t, Header{
		DestUID: myUID,
		SrcUID:  UID{0x00, 0x11, 0x22, 0x33, 0x44, 0x55},
		CC:      CCSetCommand,
		PID:     PIDDeviceLabel,
	}, []byte("new label"))

	r := &fakeResponder{}
	tbl.Dispatch(myUID, r, req)

	resp, _, ok := ParseHeader(r.sent)
	require.True(t, ok)
	require.Equal(t, byte(ResponseTypeACK), resp.PortID)
	require.Equal(t, []byte("new label"), trimASCII(tbl.Get(PIDDeviceLabel)))
}

func TestDispatchIgnoresUnparsableFrame(t *testing.T) {
	myUID := UID{0x7f, 0xf0, 0, 0, 0, 1}
	tbl := NewDefaultTable(myUID)

	r := &fakeResponder{}
	tbl.Dispatch(myUID, r, []byte{0x00, 0x01, 0x02})

	require.Empty(t, r.sent)
}
