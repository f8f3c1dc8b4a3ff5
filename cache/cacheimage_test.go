package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coldvault/mdcache/common"
	"github.com/coldvault/mdcache/config"
	"github.com/coldvault/mdcache/iodrv"
)

func TestEncodeDecodeCacheImageRoundTrip(t *testing.T) {
	entries := []CacheImageEntry{
		{Address: 0x1000, Size: 128, Class: testClassID, Tag: 0x1000, Ring: common.RingUser, Parents: nil},
		{Address: 0x2000, Size: 64, Class: testClassID, Tag: 0x1000, Ring: common.RingUser, Parents: []common.Address{0x1000}},
	}
	raw := EncodeCacheImage(0, entries)
	flags, decoded, err := DecodeCacheImage(raw)
	require.NoError(t, err)
	assert.Equal(t, CacheImageFlags(0), flags)
	require.Len(t, decoded, 2)
	assert.Equal(t, entries[0].Address, decoded[0].Address)
	assert.Equal(t, entries[1].Parents, decoded[1].Parents)
}

func TestDecodeCacheImageRejectsTruncatedHeader(t *testing.T) {
	_, _, err := DecodeCacheImage([]byte{1, 2, 3})
	assert.Error(t, err)
}

// Scenario: a cache that persists an image on Close makes its resident
// entries reappear (decode-and-insert, payload included) on the first
// Protect call against a freshly opened cache sharing the same backing
// store and image address, per spec.md §6.
func TestCacheImagePersistsAcrossClose(t *testing.T) {
	drv := iodrv.NewMemDriver()
	dispatcher := iodrv.NewDispatcher()
	require.NoError(t, dispatcher.Open(drv, "test"))

	registry := NewRegistry(blobClass{})
	imageAddr := common.Address(0x9000)

	c1, err := New(Options{
		MaxSize:      1 << 20,
		MinCleanSize: 1 << 19,
		Registry:     registry,
		Dispatcher:   dispatcher,
		AutoResize:   config.AutoResize{MinSize: 1 << 20, InitialSize: 1 << 20, MaxSize: 1 << 22},
		CacheImage:   config.CacheImage{Enabled: true},
		CacheImageAddress: imageAddr,
	})
	require.NoError(t, err)

	addr := common.Address(0x1000)
	require.NoError(t, c1.Insert(addr, testClassID, addr, common.RingUser, make([]byte, 32), false))
	require.NoError(t, c1.Close())

	imageSize := c1.cacheImageSize
	require.Greater(t, imageSize, int64(0))

	c2, err := New(Options{
		MaxSize:           1 << 20,
		MinCleanSize:      1 << 19,
		Registry:          registry,
		Dispatcher:        dispatcher,
		AutoResize:        config.AutoResize{MinSize: 1 << 20, InitialSize: 1 << 20, MaxSize: 1 << 22},
		CacheImage:        config.CacheImage{Enabled: true},
		CacheImageAddress: imageAddr,
		CacheImageSize:    imageSize,
	})
	require.NoError(t, err)

	// Nothing decoded yet: decode is deferred to the first Protect.
	_, ok := c2.GetEntryStatus(addr)
	assert.False(t, ok)

	got, err := c2.Protect(addr, testClassID, 32, false)
	require.NoError(t, err)
	assert.Equal(t, 32, len(got.([]byte)))
	require.NoError(t, c2.Unprotect(addr, UnprotectFlags{}))

	status, ok := c2.GetEntryStatus(addr)
	require.True(t, ok)
	assert.Equal(t, 32, status.Size)
}
