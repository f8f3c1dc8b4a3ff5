package cache

import (
	"os"
	"sync"

	"github.com/coldvault/mdcache/common"
	mapset "github.com/deckarep/golang-set"
)

// barrierSanityEnvVar is the one environment variable spec.md §6 allows
// as an input to this core: set to any non-empty value, it turns on
// extra collective-call sanity barriers for the multi-writer coordinator.
const barrierSanityEnvVar = "MDCACHE_COLLECTIVE_BARRIER_SANITY"

func barrierSanityEnabled() bool {
	return os.Getenv(barrierSanityEnvVar) != ""
}

// Strategy selects how write permission is distributed across ranks in
// a multi-writer session.
type Strategy int

const (
	StrategyRank0Only Strategy = iota
	StrategyDistributed
)

// CoordinatorConfig configures the multi-writer coordinator at cache
// creation time.
type CoordinatorConfig struct {
	Rank             int
	CohortSize       int
	Strategy         Strategy
	DirtyByteThreshold int64
	MinCleanWatermark  int64
}

// coordinator is the multi-writer auxiliary record. dirtied/cleaned/
// candidate are per-address sets, backed by github.com/deckarep/golang-set
// the way the rest of the pack reaches for a thread-safe set type rather
// than hand-rolling map[T]struct{} plus a mutex.
type coordinator struct {
	mu sync.Mutex

	cfg CoordinatorConfig

	dirtyBytes int64

	dirtied   mapset.Set // common.Address
	cleaned   mapset.Set
	candidate mapset.Set

	onSyncPoint func(cleaned []common.Address) error

	barrierSanity bool
}

func newCoordinator(cfg CoordinatorConfig) *coordinator {
	return &coordinator{
		cfg:           cfg,
		dirtied:       mapset.NewSet(),
		cleaned:       mapset.NewSet(),
		candidate:     mapset.NewSet(),
		barrierSanity: barrierSanityEnabled(),
	}
}

// canWrite reports whether this rank is currently permitted to write,
// per the configured strategy. writePermission is an externally
// installed callback: it's consulted in addition to the strategy, not
// instead of it, so a caller can still veto writes for reasons outside
// the coordinator's knowledge (e.g. a read-only mount).
func (co *coordinator) canWrite(writePermission WritePermissionFunc) bool {
	switch co.cfg.Strategy {
	case StrategyRank0Only:
		if co.cfg.Rank != 0 {
			return false
		}
	case StrategyDistributed:
		// every rank may write in the distributed strategy
	}
	return writePermission()
}

func (co *coordinator) accrueDirty(n int64) {
	co.mu.Lock()
	defer co.mu.Unlock()
	co.dirtyBytes += n
}

func (co *coordinator) overThreshold() bool {
	co.mu.Lock()
	defer co.mu.Unlock()
	return co.cfg.DirtyByteThreshold > 0 && co.dirtyBytes >= co.cfg.DirtyByteThreshold
}

// markDirtied / markCleaned record an address's movement through the
// sync-point protocol's three sets.
func (co *coordinator) markDirtied(addr common.Address) {
	co.dirtied.Add(addr)
	co.candidate.Add(addr)
}

func (co *coordinator) markCleaned(addr common.Address) {
	co.cleaned.Add(addr)
	co.candidate.Remove(addr)
}

// candidates returns the current sync-point candidate set: entries
// dirtied but not yet confirmed cleaned by every rank.
func (co *coordinator) candidates() []common.Address {
	items := co.candidate.ToSlice()
	out := make([]common.Address, 0, len(items))
	for _, v := range items {
		out = append(out, v.(common.Address))
	}
	return out
}

// resetAfterSyncPoint clears the dirty-byte counter and folds cleaned
// back into a fresh baseline, ready for the next accrual cycle.
func (co *coordinator) resetAfterSyncPoint() {
	co.mu.Lock()
	defer co.mu.Unlock()
	co.dirtyBytes = 0
	co.dirtied.Clear()
	co.cleaned.Clear()
	co.candidate.Clear()
}

// runSyncPoint implements a sync point: the writer flushes enough
// entries to cross the min-clean watermark, then broadcasts the cleaned
// set so every rank marks those entries clean locally.
//
// A desync (ranks disagreeing on the candidate set) is fatal; this
// single-process module has no real peer ranks to disagree with, so
// desyncErr is reserved for the broadcast hook (onSyncPoint) reporting a
// mismatch from an external transport.
func (c *Cache) runSyncPoint() error {
	if c.coordinator == nil {
		return nil
	}
	candidates := c.coordinator.candidates()

	cleaned := make([]common.Address, 0, len(candidates))
	var cleanedBytes int64
	for _, addr := range candidates {
		if cleanedBytes >= c.coordinator.cfg.MinCleanWatermark {
			break
		}
		e, ok := c.idx.get(addr)
		if !ok || !e.flags.has(FlagDirty) {
			continue
		}
		if err := c.flushOne(e); err != nil {
			return err
		}
		cleaned = append(cleaned, addr)
		cleanedBytes += int64(e.size)
	}

	if err := c.coordinator.flushMarker(cleaned); err != nil {
		return err
	}
	for _, addr := range cleaned {
		c.coordinator.markCleaned(addr)
	}
	c.coordinator.resetAfterSyncPoint()
	return nil
}

// flushMarker broadcasts a sync point's cleaned set, unconditionally —
// even when cleaned is empty, so that a rank with nothing to flush this
// round still participates in the collective barrier rather than
// leaving its peers waiting (spec.md §4.G: "flush_marker helpers ensure
// every rank participates symmetrically even when one side has nothing
// to do"). When barrierSanity is enabled, a sync point with no
// broadcast hook installed is treated as a desync: a real multi-writer
// transport with the sanity env var set is expected to always have one
// wired in by the time a sync point can fire.
func (co *coordinator) flushMarker(cleaned []common.Address) error {
	if co.onSyncPoint == nil {
		if co.barrierSanity {
			return desyncErr("collective barrier sanity: sync point fired with no broadcast hook installed")
		}
		return nil
	}
	if err := co.onSyncPoint(cleaned); err != nil {
		return desyncErr("sync point broadcast failed: %v", err)
	}
	return nil
}
