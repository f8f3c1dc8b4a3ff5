package freespace

import (
	"sync"

	"github.com/coldvault/mdcache/common"
)

// LockMode is the access mode the section-info block's own reference
// count tracks.
type LockMode int

const (
	LockNone LockMode = iota
	LockRead
	LockWrite
)

// SectionInfoLock implements a nesting protocol: an operation that
// requires RW while RO is held must drop to RO, re-acquire RW, and
// proceed. It's a tiny state machine, not a generic rwmutex, because the
// drop-and-reacquire sequence needs to be visible to the caller (it may
// observe the section info changed out from under it while RW was
// briefly unavailable).
type SectionInfoLock struct {
	mu      sync.Mutex
	mode    LockMode
	readers int
}

func (l *SectionInfoLock) AcquireRead() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.mode = LockRead
	l.readers++
}

func (l *SectionInfoLock) ReleaseRead() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.readers--
	if l.readers == 0 {
		l.mode = LockNone
	}
}

// AcquireWrite upgrades to RW. If RO is currently held, it must first
// be dropped (the caller's RO reference is consumed) before RW is
// granted, matching the drop-to-RO, re-acquire-RW nesting rule: the
// boolean return reports whether a drop actually happened, so the caller
// knows a reread may be needed.
func (l *SectionInfoLock) AcquireWrite() (droppedRead bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.mode == LockRead && l.readers > 0 {
		l.readers--
		droppedRead = true
		if l.readers == 0 {
			l.mode = LockNone
		}
	}
	l.mode = LockWrite
	return droppedRead
}

func (l *SectionInfoLock) ReleaseWrite() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.mode = LockNone
}

// Header holds the free-space tracker's statistics and the address and
// sizes of its section-info block. It is a plain struct: no cache class
// is registered for it, and nothing in this module links it to a Tracker
// or loads or stores it through protect/unprotect.
type Header struct {
	Version          uint32
	ClassCount       int
	TotalSpace       int64
	TotalSectionCount int

	// SectionInfoAddress/AllocSize describe the variable-size
	// section-info block; NilAddress means it's "floating" (in-core
	// only, not currently backed by a disk allocation). Transitions
	// between these two states are driven by whether disk allocation
	// for the section info currently exists.
	SectionInfoAddress common.Address
	AllocSize           int64 // on-disk footprint, the avoid-shrink baseline
	LiveSize            int64 // current recomputed footprint

	Lock SectionInfoLock
}

// RecomputeSize applies the avoid-shrink-at-close rule: if a recomputed
// size is smaller than alloc_size, set size := alloc_size instead of
// re-allocating; if size is larger than alloc_size, free the old block
// and allow the next allocation cycle to claim a larger one.
//
// closing is true only when the container is closing or flushing for
// real; the rule only applies at that boundary.
func (h *Header) RecomputeSize(recomputed int64, closing bool) (needsRealloc bool) {
	h.LiveSize = recomputed
	if !closing {
		return recomputed > h.AllocSize
	}
	if recomputed < h.AllocSize {
		h.LiveSize = h.AllocSize
		return false
	}
	if recomputed > h.AllocSize {
		return true // caller frees the old block and reallocates larger
	}
	return false
}

// CommitAlloc records a fresh allocation of size bytes as the new
// avoid-shrink baseline.
func (h *Header) CommitAlloc(addr common.Address, size int64) {
	h.SectionInfoAddress = addr
	h.AllocSize = size
	h.LiveSize = size
}
