package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/coldvault/mdcache/config"
)

// Scenario 6: auto-resize flash increment.
func TestFlashIncrement(t *testing.T) {
	cfg := config.AutoResize{
		MinSize:               1,
		InitialSize:            1 << 20,
		MaxSize:                1 << 30,
		FlashIncrementEnabled:  true,
		FlashThreshold:         0.5,
		FlashMultiple:          2.0,
	}
	rc := newResizeController(cfg)

	const entrySize = 600 * 1024
	grown, changed := rc.flashIncrement(entrySize, 1<<20)
	assert.True(t, changed)
	assert.GreaterOrEqual(t, grown, int64(1<<20)+int64(2.0*entrySize))
}

func TestAutoResizeConfigValidation(t *testing.T) {
	bad := config.AutoResize{MinSize: 100, InitialSize: 50, MaxSize: 1000}
	assert.Error(t, bad.Validate())

	good := config.AutoResize{
		MinSize: 100, InitialSize: 500, MaxSize: 1000,
		MinCleanFraction: 0.5, LowerHRThreshold: 0.1, UpperHRThreshold: 0.9,
		IncrementMode: config.IncrementOff,
	}
	assert.NoError(t, good.Validate())
}

func TestOnEpochClampsWithinBounds(t *testing.T) {
	cfg := config.AutoResize{
		MinSize: 100, InitialSize: 1000, MaxSize: 2000,
		IncrementMode: config.IncrementThreshold, Increment: 2.0, LowerHRThreshold: 0.5,
		DecrementMode: config.DecrementThreshold, Decrement: 0.5, UpperHRThreshold: 0.9,
	}
	rc := newResizeController(cfg)

	grown := rc.onEpoch(0.1, 1000) // below lower threshold -> grow
	assert.LessOrEqual(t, grown, int64(2000))

	shrunk := rc.onEpoch(0.95, 1000) // above upper threshold -> shrink
	assert.GreaterOrEqual(t, shrunk, int64(100))
}
