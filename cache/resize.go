package cache

import "github.com/coldvault/mdcache/config"

// resizeController is the auto-resize controller. It holds validated
// configuration and pure sizing logic; Cache.touchEpoch drives it once
// per epochLength operations, and Cache.Insert drives its
// flash-increment check on every insert.
type resizeController struct {
	cfg config.AutoResize

	minSize     int64
	hardMax     int64
	epochLength int

	reportFunc func(before, after int64)
}

// evictionsEnabled reports whether the cache's eviction sweep may run.
// AutoResize.Validate already rejects EvictionsEnabled=false while any
// increment/decrement mode is active; a cache with no auto-resize mode
// configured is free to disable evictions (e.g. a fixed, fully-pinned
// working set) and zero-value configs (no TOML loaded) default to
// evictions enabled, since they also have no active mode.
func (r *resizeController) evictionsEnabled() bool {
	if r.cfg.EvictionsEnabled {
		return true
	}
	return !r.cfg.AnyModeActive()
}

// newResizeController derives every sizing bound from cfg alone:
// cfg.MaxSize is the hard ceiling §4.F documents ("capped by
// max_increment and the hard max"), not the cache's Options.MaxSize at
// creation time — those two are allowed to differ (a cache can start
// smaller than its eventual auto-resize ceiling).
func newResizeController(cfg config.AutoResize) *resizeController {
	return &resizeController{
		cfg:         cfg,
		minSize:     cfg.MinSize,
		hardMax:     cfg.MaxSize,
		epochLength: cfg.EpochLength,
	}
}

// SetReportFunc installs a settable once-per-epoch report function,
// called whenever an epoch boundary actually changes the cache's max
// size.
func (r *resizeController) SetReportFunc(f func(before, after int64)) {
	r.reportFunc = f
}

func clampSize(v, lo, hi int64) int64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// onEpoch applies increment/decrement rules for one epoch boundary,
// given the measured hit rate and the current max size.
func (r *resizeController) onEpoch(hitRate float64, currentMax int64) int64 {
	next := currentMax

	switch r.cfg.IncrementMode {
	case config.IncrementThreshold, config.IncrementAgeOut, config.IncrementAgeOutWithThreshold:
		if hitRate < r.cfg.LowerHRThreshold {
			grown := int64(float64(currentMax) * r.cfg.Increment)
			if r.cfg.MaxIncrement > 0 {
				cap := currentMax + r.cfg.MaxIncrement
				if grown > cap {
					grown = cap
				}
			}
			next = grown
		}
	}

	switch r.cfg.DecrementMode {
	case config.DecrementThreshold, config.DecrementAgeOut, config.DecrementAgeOutWithThreshold:
		if hitRate > r.cfg.UpperHRThreshold {
			next = int64(float64(next) * r.cfg.Decrement)
		}
	}

	next = clampSize(next, r.minSize, r.hardMax)
	if r.reportFunc != nil && next != currentMax {
		r.reportFunc(currentMax, next)
	}
	return next
}

// flashIncrement implements the flash-increment rule: an insertion whose
// size exceeds flash_threshold*max_size immediately raises max_size by
// flash_multiple*entry_size, capped at hardMax.
func (r *resizeController) flashIncrement(entrySize int, currentMax int64) (int64, bool) {
	if !r.cfg.FlashIncrementEnabled {
		return currentMax, false
	}
	if float64(entrySize) <= r.cfg.FlashThreshold*float64(currentMax) {
		return currentMax, false
	}
	grown := currentMax + int64(r.cfg.FlashMultiple*float64(entrySize))
	grown = clampSize(grown, r.minSize, r.hardMax)
	return grown, grown != currentMax
}
