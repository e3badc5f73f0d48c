package rdm

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestUIDAccessors(t *testing.T) {
	u := UID{0x7f, 0xf0, 0xde, 0xad, 0xbe, 0xef}
	require.Equal(t, uint16(0x7ff0), u.ManufacturerID())
	require.Equal(t, uint32(0xdeadbeef), u.DeviceID())
	require.Equal(t, "7ff0:deadbeef", u.String())
	require.False(t, u.IsBroadcast())
}

func TestUIDIsBroadcast(t *testing.T) {
	require.True(t, BroadcastUID.IsBroadcast())
	require.True(t, UID{0x7f, 0xf0, 0xff, 0xff, 0xff, 0xff}.IsBroadcast())
	require.False(t, UID{0x7f, 0xf0, 0xff, 0xff, 0xff, 0xfe}.IsBroadcast())
}

func TestIsTarget(t *testing.T) {
	my := UID{0x7f, 0xf0, 0, 0, 0, 1}

	require.True(t, IsTarget(my, my), "exact match")
	require.True(t, IsTarget(my, BroadcastUID), "global broadcast")
	require.True(t, IsTarget(my, UID{0x7f, 0xf0, 0xff, 0xff, 0xff, 0xff}), "vendorcast matching manufacturer")
	require.False(t, IsTarget(my, UID{0x7f, 0xf1, 0xff, 0xff, 0xff, 0xff}), "vendorcast, other manufacturer")
	require.False(t, IsTarget(my, UID{0x7f, 0xf0, 0, 0, 0, 2}), "unicast, other device")
}
