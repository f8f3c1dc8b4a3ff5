package cache

import (
	"context"
	"sort"
	"sync"

	"github.com/coldvault/mdcache/common"
	"github.com/coldvault/mdcache/internal/xtrace"
	"github.com/coldvault/mdcache/iodrv"
	"github.com/panjf2000/ants/v2"
	"github.com/steakknife/bloomfilter"
)

const maxPreSerializeRetries = 8

// FlushMode selects whether a flush leaves entries clean-and-resident
// or additionally evicts them.
type FlushMode int

const (
	FlushClean FlushMode = iota
	FlushDestroy
)

// Flush drains the dirty set to the dispatcher in ring order. Within a
// ring, candidates are first ordered into dependency layers (data-model
// invariant 5: "children flush after all parents are clean"); within
// each layer, "flush-last" entries are deferred to the end and
// "flush-me-collectively" entries are grouped into one coalesced
// vector write.
func (c *Cache) Flush(mode FlushMode) error {
	_, end := xtrace.Start(context.Background(), "mdcache.Flush")
	defer end()
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.flushLocked(mode, nil)
}

// FlushTagged flushes only the entries carrying tag.
func (c *Cache) FlushTagged(tag common.Address) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.corkedTags[tag] {
		return nil // cork freezes propagation for this logical object
	}
	members := make(map[common.Address]bool, len(c.tags.membersOfTag(tag)))
	for _, a := range c.tags.membersOfTag(tag) {
		members[a] = true
	}
	return c.flushLocked(FlushClean, members)
}

func (c *Cache) flushLocked(mode FlushMode, onlyAddrs map[common.Address]bool) error {
	for ring := common.Ring(0); ring < common.Ring(common.NumRings); ring++ {
		candidates := c.ringDirtyCandidates(ring, onlyAddrs)
		if len(candidates) == 0 {
			continue
		}

		for _, layer := range dependencyLayers(candidates) {
			normal, last, collective := partitionByFlushOrder(layer)

			if err := c.flushBatch(normal); err != nil {
				return err
			}
			if err := c.flushCollective(collective); err != nil {
				return err
			}
			if err := c.flushBatch(last); err != nil {
				return err
			}
		}

		c.settleRing(ring)

		if mode == FlushDestroy {
			for _, e := range candidates {
				if e.protectedOrPinned() {
					return invariantErr("flush(destroy): %s is pinned or protected", e.address)
				}
			}
			for _, e := range candidates {
				cls, _ := c.registry.Lookup(e.class)
				_ = cls.Notify(EventEvicted, e.payload)
				cls.FreeICR(e.payload)
				c.removeLocked(e, false)
			}
		}
	}
	return nil
}

// ringDirtyCandidates returns the dirty entries in ring, restricted to
// onlyAddrs if non-nil, skipping epoch markers.
func (c *Cache) ringDirtyCandidates(ring common.Ring, onlyAddrs map[common.Address]bool) []*entry {
	var out []*entry
	for _, addr := range c.tags.membersOfRing(ring) {
		if onlyAddrs != nil && !onlyAddrs[addr] {
			continue
		}
		e, ok := c.idx.get(addr)
		if !ok || e.isEpochMarker || !e.flags.has(FlagDirty) {
			continue
		}
		out = append(out, e)
	}
	// Deterministic order within a ring before flush-last/collective
	// partitioning: address order. A real flush-list would preserve
	// dirty-time order; this cache doesn't track that separately from
	// the LRU, so address order is the stable tie-break.
	sort.Slice(out, func(i, j int) bool { return out[i].address < out[j].address })
	return out
}

// dependencyLayers topologically sorts candidates (already in a stable
// address order) by entry.parents/entry.children so that every parent
// ends up in an earlier layer than any of its dirty children in the
// same batch (data-model invariant 5, spec.md §8 scenario 3: "P's write
// completes before C's write is issued"). flushLocked flushes one layer
// at a time — each layer's flushBatch/flushCollective calls return
// before the next layer's writes are issued — so this is what actually
// makes the ordering observable, not just the sort itself.
//
// Only dependency edges between two entries both present in candidates
// matter here: a parent in a different (already-settled, lower-numbered)
// ring is guaranteed clean before this ring is even considered.
func dependencyLayers(candidates []*entry) [][]*entry {
	remaining := make(map[common.Address]*entry, len(candidates))
	for _, e := range candidates {
		remaining[e.address] = e
	}

	var layers [][]*entry
	for len(remaining) > 0 {
		var layer []*entry
		for _, e := range candidates {
			if _, ok := remaining[e.address]; !ok {
				continue
			}
			ready := true
			for parent := range e.parents {
				if _, stillPending := remaining[parent]; stillPending {
					ready = false
					break
				}
			}
			if ready {
				layer = append(layer, e)
			}
		}
		if len(layer) == 0 {
			// CreateFlushDependency rejects cycle-closing edges, so this
			// shouldn't happen; guard against an infinite loop anyway by
			// draining whatever is left as one final layer.
			for _, e := range candidates {
				if _, ok := remaining[e.address]; ok {
					layer = append(layer, e)
				}
			}
		}
		for _, e := range layer {
			delete(remaining, e.address)
		}
		layers = append(layers, layer)
	}
	return layers
}

func partitionByFlushOrder(candidates []*entry) (normal, last, collective []*entry) {
	for _, e := range candidates {
		switch {
		case e.flags.has(FlagFlushMeCollectively):
			collective = append(collective, e)
		case e.flags.has(FlagFlushMeLast):
			last = append(last, e)
		default:
			normal = append(normal, e)
		}
	}
	return
}

// flushBatch serializes each entry and hands all of the batch's images to
// the dispatcher as one vector write. Each entry's serialize step is
// submitted to a bounded github.com/panjf2000/ants/v2 goroutine pool (at
// most 8 workers), so a batch of thousands of entries doesn't spawn one
// goroutine per entry; szMu is held for the whole serializeWithRetry
// call, since that call updates currentSize and may re-key the index on
// a pre_serialize move, so entries are serialized one at a time.
func (c *Cache) flushBatch(entries []*entry) error {
	if len(entries) == 0 {
		return nil
	}

	seen, _ := bloomfilter.NewOptimal(uint64(len(entries)*4+8), 0.01)
	for _, e := range entries {
		key := addressHashable(e.address)
		if seen.Contains(key) {
			return corruptionErr("flush: duplicate address %s in one flush batch", e.address)
		}
		seen.Add(key)
	}

	images := make([][]byte, len(entries))
	errs := make([]error, len(entries))

	var szMu sync.Mutex
	var wg sync.WaitGroup
	pool, err := ants.NewPool(minInt(len(entries), 8))
	if err != nil {
		return resourceErr(err, "flush: failed to start serialize pool")
	}
	defer pool.Release()

	for i, e := range entries {
		i, e := i, e
		wg.Add(1)
		submitErr := pool.Submit(func() {
			defer wg.Done()
			szMu.Lock()
			defer szMu.Unlock()
			images[i], errs[i] = c.serializeWithRetry(e)
		})
		if submitErr != nil {
			wg.Done()
			images[i], errs[i] = c.serializeWithRetry(e)
		}
	}
	wg.Wait()

	vecs := make([]iodrv.IOVec, 0, len(entries))
	for i, e := range entries {
		if errs[i] != nil {
			return errs[i]
		}
		vecs = append(vecs, iodrv.IOVec{Addr: e.address, Buf: images[i]})
	}

	if err := c.dispatcher.WriteVector(vecs); err != nil {
		return resourceErr(err, "flush: dispatcher write_vector failed")
	}

	for _, e := range entries {
		c.finishFlush(e)
	}
	return nil
}

// flushCollective groups flush-me-collectively entries into a single
// coalesced vector write, relevant only in multi-writer mode.
func (c *Cache) flushCollective(entries []*entry) error {
	return c.flushBatch(entries)
}

// flushOne is the single-entry path the multi-writer sync point uses.
func (c *Cache) flushOne(e *entry) error {
	return c.flushBatch([]*entry{e})
}

// serializeWithRetry runs pre_serialize/move/resize in a bounded loop:
// if pre_serialize requests a new address or size, apply it and retry
// until the class stabilizes or the retry bound is hit, at which point
// the entry is treated as corrupt.
func (c *Cache) serializeWithRetry(e *entry) ([]byte, error) {
	cls, _ := c.registry.Lookup(e.class)

	for attempt := 0; attempt < maxPreSerializeRetries; attempt++ {
		wantSize := cls.ImageLen(e.payload)
		if wantSize != e.size {
			if !e.isGhost {
				c.currentSize += int64(wantSize - e.size)
			}
			e.size = wantSize
		}

		result, err := cls.PreSerialize(e.payload, e.address)
		if err != nil {
			return nil, resourceErr(err, "flush: pre_serialize failed for %s", e.address)
		}

		moved := false
		if result.Moved && result.NewAddress != e.address {
			if err := c.moveEntryInternal(e, result.NewAddress); err != nil {
				return nil, err
			}
			moved = true
		}
		if result.Resized && result.NewSize != e.size {
			if !e.isGhost {
				c.currentSize += int64(result.NewSize - e.size)
			}
			e.size = result.NewSize
			moved = true
		}
		if !moved {
			image := make([]byte, e.size)
			if err := cls.Serialize(e.payload, image); err != nil {
				return nil, resourceErr(err, "flush: serialize failed for %s", e.address)
			}
			return image, nil
		}
	}
	return nil, corruptionErr("flush: pre_serialize/serialize did not converge for %s after %d retries", e.address, maxPreSerializeRetries)
}

func (c *Cache) moveEntryInternal(e *entry, newAddress common.Address) error {
	if _, exists := c.idx.get(newAddress); exists {
		return invariantErr("flush: move target %s already occupied", newAddress)
	}
	c.idx.delete(e.address)
	c.tags.remove(e)
	e.address = newAddress
	c.idx.put(e)
	c.tags.add(e)
	return nil
}

func (c *Cache) finishFlush(e *entry) {
	e.flags &^= FlagDirty
	e.flags |= FlagImageUpToDate
	if c.loggedWrite != nil {
		c.loggedWrite(e.address, e.size)
	}
	if cls, ok := c.registry.Lookup(e.class); ok {
		_ = cls.Notify(EventFlushed, e.payload)
	}
}

// Evict sweeps the LRU tail for clean, unprotected, unpinned entries
// until current size is at or below target.
func (c *Cache) Evict(target int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.evictLocked(target)
}

func (c *Cache) maybeEvict() {
	if c.currentSize > c.maxSize {
		_ = c.evictLocked(c.maxSize)
	}
}

func (c *Cache) evictLocked(target int64) error {
	if !c.resize.evictionsEnabled() {
		return nil
	}
	for _, addr := range c.idx.evictionOrder() {
		e, ok := c.idx.get(addr)
		if !ok {
			continue
		}
		if e.isEpochMarker {
			// The sweep has aged past this epoch boundary; the marker has
			// served its purpose and is discarded rather than re-walked
			// on the next eviction pass,
			// regardless of whether the size target has already been met.
			c.idx.delete(addr)
			continue
		}
		if c.currentSize <= target {
			break
		}
		if e.protectedOrPinned() || e.flags.has(FlagDirty) {
			continue
		}
		if c.hasStayResidentDirtyParent(e) {
			continue
		}
		cls, _ := c.registry.Lookup(e.class)
		if cls != nil {
			_ = cls.Notify(EventEvicted, e.payload)
			cls.FreeICR(e.payload)
		}
		c.removeLocked(e, false)
		evictMeter.Mark(1)
	}
	return nil
}

// hasStayResidentDirtyParent implements the rule that a dirty parent
// suppresses eviction of its clean children only if the class opts
// into stay-resident-with-parent semantics.
func (c *Cache) hasStayResidentDirtyParent(e *entry) bool {
	cls, ok := c.registry.Lookup(e.class)
	if !ok || !cls.Flags().Has(FlagStayResidentWithParent) {
		return false
	}
	for parent := range e.parents {
		if p, ok := c.idx.get(parent); ok && p.flags.has(FlagDirty) {
			return true
		}
	}
	return false
}

// EvictTagged evicts every clean, evictable member of tag.
func (c *Cache) EvictTagged(tag common.Address) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, addr := range c.tags.membersOfTag(tag) {
		e, ok := c.idx.get(addr)
		if !ok || e.protectedOrPinned() || e.flags.has(FlagDirty) {
			continue
		}
		c.removeLocked(e, false)
		evictMeter.Mark(1)
	}
	return nil
}

// ExpungeTagType discards every entry of class carrying tag, dirty or
// not.
func (c *Cache) ExpungeTagType(tag common.Address, class ClassID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, addr := range c.tags.membersOfTag(tag) {
		e, ok := c.idx.get(addr)
		if !ok || e.class != class {
			continue
		}
		if e.protectedOrPinned() {
			return invariantErr("expunge_tag_type: %s is pinned or protected", addr)
		}
		c.removeLocked(e, true)
	}
	return nil
}

// RetagCopied rebrands every entry under oldTag to newTag, used after
// a deep object copy.
func (c *Cache) RetagCopied(oldTag, newTag common.Address) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tags.retagAll(oldTag, newTag, c.idx.get)
}

// addrHash adapts an address to steakknife/bloomfilter's Hashable
// interface (Sum64() uint64).
type addrHash uint64

func (a addrHash) Sum64() uint64 { return uint64(a) }

func addressHashable(a common.Address) addrHash { return addrHash(a) }

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
