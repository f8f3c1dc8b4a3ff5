package cache

import (
	"github.com/coldvault/mdcache/common"
	lru "github.com/hashicorp/golang-lru/simplelru"
)

// index is component B: the hash index by address plus the replacement
// (LRU) structure. The pinned list isn't a separate container here — a
// pinned entry is simply absent from lruOrder (invariant 3: "a pinned
// entry stays resident across evictions"), the same way a protected
// entry is absent from it (invariant 2).
//
// lruOrder is backed by github.com/hashicorp/golang-lru's simplelru.LRU,
// given an effectively unbounded capacity so it never auto-evicts: it is
// used purely for its O(1) "touch" (Add/Get moves to MRU end) and its
// oldest-to-newest Keys() traversal, which the eviction sweep in
// flush.go (evictLocked) walks to find the first evictable (clean, unprotected,
// unpinned) candidate — the library's own auto-eviction-on-overflow
// policy would evict blindly, without honoring those exemptions.
type index struct {
	byAddress map[common.Address]*entry
	lruOrder  *lru.LRU

	nextMarkerID uint64 // epoch markers count down from common.NilAddress
}

const indexUnbounded = 1 << 30

func newIndex() *index {
	l, _ := lru.NewLRU(indexUnbounded, nil)
	return &index{
		byAddress: make(map[common.Address]*entry),
		lruOrder:  l,
	}
}

func (ix *index) get(addr common.Address) (*entry, bool) {
	e, ok := ix.byAddress[addr]
	return e, ok
}

func (ix *index) put(e *entry) {
	ix.byAddress[e.address] = e
	if !e.protectedOrPinned() {
		ix.lruOrder.Add(e.address, nil)
	}
}

func (ix *index) delete(addr common.Address) {
	delete(ix.byAddress, addr)
	ix.lruOrder.Remove(addr)
}

// touch moves addr to the most-recently-used end, if it's tracked for
// replacement at all.
func (ix *index) touch(addr common.Address) {
	if v, ok := ix.lruOrder.Get(addr); ok {
		ix.lruOrder.Add(addr, v)
	}
}

// markUnevictable removes an entry from the replacement list without
// forgetting it (entering protect, or gaining a pin).
func (ix *index) markUnevictable(addr common.Address) {
	ix.lruOrder.Remove(addr)
}

// markEvictable reinserts an entry into the replacement list at the MRU
// position (leaving protect, or losing its last pin).
func (ix *index) markEvictable(addr common.Address) {
	if _, ok := ix.byAddress[addr]; ok {
		ix.lruOrder.Add(addr, nil)
	}
}

// evictionOrder returns tracked addresses oldest-first: the order
// cache.Evict sweeps in, so eviction order matches LRU order.
func (ix *index) evictionOrder() []common.Address {
	keys := ix.lruOrder.Keys()
	addrs := make([]common.Address, len(keys))
	for i, k := range keys {
		addrs[i] = k.(common.Address)
	}
	return addrs
}

func (ix *index) len() int { return len(ix.byAddress) }

// insertEpochMarker adds a synthetic marker entry to the MRU end of the
// replacement list. Markers use addresses counting down from
// common.NilAddress so they never collide with a real file offset.
func (ix *index) insertEpochMarker() common.Address {
	ix.nextMarkerID++
	addr := common.NilAddress - common.Address(ix.nextMarkerID)
	e := newEntry(addr, -1, common.NilAddress, common.RingUser, 0, nil, true)
	e.isEpochMarker = true
	e.flags = 0
	ix.byAddress[addr] = e
	ix.lruOrder.Add(addr, nil)
	return addr
}
