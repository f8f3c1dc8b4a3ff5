// Package config loads the configuration records the cache consumes:
// auto-resize policy, free-space strategy, and cache image settings.
// The cache core itself never parses text. Load validates the
// auto-resize record with AutoResize.Validate before returning it;
// cache.New takes its AutoResize through Options and does not validate
// it again.
package config

import (
	"io"
	"time"

	"github.com/naoina/toml"
)

// IncrementMode and DecrementMode mirror the auto-resize controller's
// modes.
type IncrementMode string

const (
	IncrementOff                IncrementMode = "off"
	IncrementThreshold          IncrementMode = "threshold"
	IncrementAgeOut             IncrementMode = "age-out"
	IncrementAgeOutWithThreshold IncrementMode = "age-out-with-threshold"
)

type DecrementMode string

const (
	DecrementOff                DecrementMode = "off"
	DecrementThreshold          DecrementMode = "threshold"
	DecrementAgeOut             DecrementMode = "age-out"
	DecrementAgeOutWithThreshold DecrementMode = "age-out-with-threshold"
)

// AutoResize is the auto-resize controller configuration (component F).
type AutoResize struct {
	MinSize         int64         `toml:"min_size"`
	InitialSize     int64         `toml:"initial_size"`
	MaxSize         int64         `toml:"max_size"`
	MinCleanFraction float64      `toml:"min_clean_fraction"`

	IncrementMode   IncrementMode `toml:"increment_mode"`
	Increment       float64       `toml:"increment"`
	MaxIncrement    int64         `toml:"max_increment"`
	LowerHRThreshold float64      `toml:"lower_hr_threshold"`

	DecrementMode   DecrementMode `toml:"decrement_mode"`
	Decrement       float64       `toml:"decrement"`
	UpperHRThreshold float64      `toml:"upper_hr_threshold"`

	FlashIncrementEnabled bool    `toml:"flash_increment_enabled"`
	FlashThreshold  float64       `toml:"flash_threshold"`
	FlashMultiple   float64       `toml:"flash_multiple"`

	EpochLength int `toml:"epoch_length"` // operations per epoch

	// EvictionsEnabled gates the cache's eviction sweep. Disabling it
	// while any increment/decrement mode is active is rejected by
	// Validate: an auto-resize mode that can never evict to make room
	// for its own growth has no way to stay within max_size.
	EvictionsEnabled bool `toml:"evictions_enabled"`
}

// AnyModeActive reports whether either the increment or decrement
// auto-resize mode is configured on.
func (a AutoResize) AnyModeActive() bool {
	return a.IncrementMode != IncrementOff && a.IncrementMode != "" ||
		a.DecrementMode != DecrementOff && a.DecrementMode != ""
}

const hardMaxIncrement = 1 << 20 // generous ceiling on increment ratio scale, not bytes

// Validate enforces the auto-resize controller's configuration
// constraints.
func (a AutoResize) Validate() error {
	switch {
	case !(a.MinSize <= a.InitialSize && a.InitialSize <= a.MaxSize):
		return errConfig("min_size <= initial_size <= max_size violated")
	case !(0 <= a.MinCleanFraction && a.MinCleanFraction <= 1):
		return errConfig("min_clean_fraction must be in [0,1]")
	case !(a.LowerHRThreshold < a.UpperHRThreshold):
		return errConfig("lower_hr_threshold must be < upper_hr_threshold")
	case a.IncrementMode != IncrementOff && !(1 < a.Increment):
		return errConfig("increment must be > 1 when increment mode is active")
	case a.Increment > hardMaxIncrement:
		return errConfig("increment exceeds hard maximum")
	case !a.EvictionsEnabled && a.AnyModeActive():
		return errConfig("disabling evictions is illegal while any auto-resize mode is active")
	}
	return nil
}

// Strategy is the free-space manager's merge/shrink policy (component H).
type Strategy struct {
	MergeWithReturnedSpace bool `toml:"merge_with_returned_space"`
	ShrinkAtClose          bool `toml:"shrink_at_close"`
	AlignmentThreshold     int64 `toml:"alignment_threshold"`
	Alignment              int64 `toml:"alignment"`
}

// CacheImage controls whether the cache persists a snapshot on close.
type CacheImage struct {
	Enabled bool `toml:"enabled"`
}

// Config is the whole validated configuration surface the cache reads
// at creation time.
type Config struct {
	AutoResize AutoResize `toml:"auto_resize"`
	FreeSpace  Strategy   `toml:"free_space"`
	CacheImage CacheImage `toml:"cache_image"`

	// SyncPointInterval is decoded from TOML, but no cache code reads
	// it: the multi-writer coordinator (component G) runs a sync point
	// whenever its dirty-byte threshold is crossed, with no time bound.
	SyncPointInterval time.Duration `toml:"sync_point_interval"`
}

// Load decodes a TOML document into a Config and validates it.
func Load(r io.Reader) (Config, error) {
	var c Config
	if err := toml.NewDecoder(r).Decode(&c); err != nil {
		return Config{}, err
	}
	if err := c.AutoResize.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

type configError string

func (e configError) Error() string { return string(e) }

func errConfig(msg string) error { return configError(msg) }
