package iodrv

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coldvault/mdcache/common"
)

func TestMemDriverReadWriteRoundTrip(t *testing.T) {
	d := NewMemDriver()
	require.NoError(t, d.Open("test"))

	addr, err := d.Alloc(64)
	require.NoError(t, err)

	in := []byte("the quick brown fox............................................")
	require.NoError(t, d.Write(addr, in[:64]))

	out := make([]byte, 64)
	require.NoError(t, d.Read(addr, out))
	assert.Equal(t, in[:64], out)
}

func TestDispatcherVectorEmulation(t *testing.T) {
	d := NewMemDriver()
	require.NoError(t, d.Open("test"))
	disp := NewDispatcher()
	require.NoError(t, disp.Open(d, "test"))

	reqs := []IOVec{
		{Addr: common.Address(0x0), Buf: []byte("aaaa")},
		{Addr: common.Address(0x100), Buf: []byte("bbbb")},
	}
	require.NoError(t, disp.WriteVector(reqs))

	got := make([]byte, 4)
	require.NoError(t, disp.Read(common.Address(0x100), got))
	assert.Equal(t, []byte("bbbb"), got)
}

func TestSnappyDriverRoundTrip(t *testing.T) {
	s := NewSnappyDriver(NewMemDriver())
	require.NoError(t, s.Open("test"))

	payload := []byte("repeated repeated repeated repeated data data data")
	require.NoError(t, s.Write(common.Address(0x10), payload))

	out := make([]byte, len(payload))
	require.NoError(t, s.Read(common.Address(0x10), out))
	assert.Equal(t, payload, out)
}
