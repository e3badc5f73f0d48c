package rdm

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAddNewAndGetSet(t *testing.T) {
	tbl := NewTable()

	data := tbl.AddNew(Definition{PID: PIDDeviceLabel, PDLSize: 8, Type: DataTypeASCII}, "a", true, nil, []byte("hi"))
	require.NotNil(t, data)
	require.Equal(t, []byte("hi\x00\x00\x00\x00\x00\x00"), tbl.Get(PIDDeviceLabel))

	tbl.Set(PIDDeviceLabel, []byte("bye"))
	require.Equal(t, []byte("bye\x00\x00\x00\x00\x00"), tbl.Get(PIDDeviceLabel))

	require.NotNil(t, tbl.Find(PIDDeviceLabel))
	require.Nil(t, tbl.Find(PIDDMXStartAddress))
}

func TestAddNewRejectsDuplicatePID(t *testing.T) {
	tbl := NewTable()
	require.NotNil(t, tbl.AddNew(Definition{PID: PIDDeviceLabel, PDLSize: 4}, "", false, nil, nil))
	require.Nil(t, tbl.AddNew(Definition{PID: PIDDeviceLabel, PDLSize: 4}, "", false, nil, nil))
}

func TestAddNewRejectsFullSlab(t *testing.T) {
	tbl := NewTable()
	tbl.pdSize = 4
	tbl.pd = make([]byte, 4)

	require.NotNil(t, tbl.AddNew(Definition{PID: 1, PDLSize: 4}, "", false, nil, nil))
	require.Nil(t, tbl.AddNew(Definition{PID: 2, PDLSize: 1}, "", false, nil, nil))
}

func TestAddAliasSharesStorage(t *testing.T) {
	tbl := NewTable()
	tbl.AddNew(Definition{PID: 1, PDLSize: 4}, "l", false, nil, []byte{0xde, 0xad, 0xbe, 0xef})

	aliasData := tbl.AddAlias(Definition{PID: 2, PDLSize: 2}, "w", false, nil, 1, 2)
	require.Equal(t, []byte{0xbe, 0xef}, aliasData)

	tbl.Set(2, []byte{0x11, 0x22})
	require.Equal(t, []byte{0xde, 0xad, 0x11, 0x22}, tbl.Get(1))
}

func TestAddAliasFailsOnUnknownBaseOrOffset(t *testing.T) {
	tbl := NewTable()
	tbl.AddNew(Definition{PID: 1, PDLSize: 4}, "l", false, nil, nil)

	require.Nil(t, tbl.AddAlias(Definition{PID: 2, PDLSize: 1}, "b", false, nil, 99, 0))
	require.Nil(t, tbl.AddAlias(Definition{PID: 3, PDLSize: 1}, "b", false, nil, 1, 10))
}

func TestAddDeterministicHasNoBackingStorage(t *testing.T) {
	tbl := NewTable()
	require.True(t, tbl.AddDeterministic(Definition{PID: 9}, "", nil))
	require.False(t, tbl.AddDeterministic(Definition{PID: 9}, "", nil))
	require.Nil(t, tbl.Get(9))
}

func TestSetIgnoresDeterministicAndUnknownPID(t *testing.T) {
	tbl := NewTable()
	tbl.AddDeterministic(Definition{PID: 9}, "", nil)

	tbl.Set(9, []byte{1})  // deterministic: no-op, must not panic
	tbl.Set(123, []byte{1}) // unknown: no-op, must not panic
}

func TestSetInvokesCallback(t *testing.T) {
	tbl := NewTable()
	tbl.AddNew(Definition{PID: 1, PDLSize: 2}, "w", true, nil, nil)

	var gotPID uint16
	var gotVal []byte
	tbl.UpdateCallback(1, func(pid uint16, ctx any, newValue []byte) {
		gotPID = pid
		gotVal = append([]byte(nil), newValue...)
	}, nil)

	tbl.Set(1, []byte{0xaa, 0xbb})
	require.Equal(t, uint16(1), gotPID)
	require.Equal(t, []byte{0xaa, 0xbb}, gotVal)
}

func TestQueueEnqueueDequeue(t *testing.T) {
	tbl := NewTable()

	require.Equal(t, 0, tbl.Enqueue(10))
	require.Equal(t, 1, tbl.Enqueue(20))
	require.Equal(t, 0, tbl.Enqueue(10), "re-enqueue is idempotent")
	require.Equal(t, 2, tbl.QueueLen())

	got := tbl.DequeueAll()
	require.Equal(t, []uint16{10, 20}, got)
	require.Equal(t, 0, tbl.QueueLen())
}

func TestQueueFull(t *testing.T) {
	tbl := NewTable()
	tbl.queueMax = 1

	require.Equal(t, 0, tbl.Enqueue(1))
	require.Equal(t, -1, tbl.Enqueue(2))
}

func TestListCopiesRegisteredPIDs(t *testing.T) {
	tbl := NewTable()
	tbl.AddDeterministic(Definition{PID: 1}, "", nil)
	tbl.AddDeterministic(Definition{PID: 2}, "", nil)

	out := make([]uint16, 1)
	n := tbl.List(out)
	require.Equal(t, 1, n)
	require.Equal(t, uint16(1), out[0])
}

func TestMuteUnmute(t *testing.T) {
	tbl := NewTable()
	require.False(t, tbl.Muted())
	tbl.Mute()
	require.True(t, tbl.Muted())
	tbl.Unmute()
	require.False(t, tbl.Muted())
}
