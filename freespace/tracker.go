package freespace

import (
	"github.com/emirpasic/gods/maps/treemap"

	"github.com/coldvault/mdcache/common"
)

// AddFlags mirror the add() operation's flags.
type AddFlags struct {
	MergeWithReturnedSpace bool
	AddingWhileDeserializing bool
}

// Counters tracks total/serializable/ghost sections and total bytes for
// the whole tracker; bins and the Header keep no counters of their own.
type Counters struct {
	Total        int
	Serializable int
	Ghost        int
	TotalBytes   int64
}

func (c *Counters) add(s *Section) {
	c.Total++
	c.TotalBytes += s.Size
	if s.ghost {
		c.Ghost++
	} else {
		c.Serializable++
	}
}

func (c *Counters) remove(s *Section) {
	c.Total--
	c.TotalBytes -= s.Size
	if s.ghost {
		c.Ghost--
	} else {
		c.Serializable--
	}
}

// Tracker is the free-space tracker's in-memory section index: bins for
// best-fit lookup plus an address-ordered merge list. It operates
// on one container's free space and lives in memory only; it holds no
// reference to a Header (header.go) and is not stored through the cache.
type Tracker struct {
	bins      *binIndex
	byAddress *treemap.Map // common.Address -> *Section, every live section
	mergeList *treemap.Map // common.Address -> *Section, mergeable sections only
	counters  Counters

	policies map[ClassTag]ClassPolicy

	containerEnd common.Address
}

func NewTracker(containerEnd common.Address) *Tracker {
	return &Tracker{
		bins:         newBinIndex(),
		byAddress:    treemap.NewWith(addressComparator),
		mergeList:    treemap.NewWith(addressComparator),
		policies:     make(map[ClassTag]ClassPolicy),
		containerEnd: containerEnd,
	}
}

func (t *Tracker) RegisterClass(tag ClassTag, policy ClassPolicy) {
	t.policies[tag] = policy
}

func (t *Tracker) policy(tag ClassTag) ClassPolicy {
	if p, ok := t.policies[tag]; ok {
		return p
	}
	return noopPolicy{}
}

// Add inserts s, optionally merging with adjacent neighbors to a fixed
// point and then attempting a class-defined shrink.
func (t *Tracker) Add(s *Section, flags AddFlags, opData interface{}) error {
	pol := t.policy(s.Class)
	s.ghost = pol.IsGhost()

	if err := pol.OnAdd(s, opData); err != nil {
		return err
	}

	survivor := s
	if flags.MergeWithReturnedSpace && pol.CanMerge() {
		survivor = t.mergeToFixedPoint(s)
	}

	t.link(survivor)

	if pol.CanShrink() && survivor.end() == t.containerEnd {
		t.tryShrinkOne(survivor)
	}
	return nil
}

// mergeToFixedPoint repeatedly merges s with its left/right neighbors
// in the merge list until no further merge is possible, returning the
// final surviving section (not yet linked into bins/byAddress).
func (t *Tracker) mergeToFixedPoint(s *Section) *Section {
	cur := s
	for {
		merged := false

		if key, val := t.mergeList.Floor(cur.Address); val != nil && key.(common.Address) != cur.Address {
			left := val.(*Section)
			if left.adjoins(cur) && left.Class == cur.Class && t.policy(left.Class).CanMerge() {
				t.unlink(left)
				cur = &Section{Address: left.Address, Size: left.Size + cur.Size, Class: cur.Class, ghost: cur.ghost}
				merged = true
			}
		}
		if key, val := t.mergeList.Ceiling(cur.end()); val != nil {
			if key.(common.Address) == cur.end() {
				right := val.(*Section)
				if cur.adjoins(right) && right.Class == cur.Class && t.policy(right.Class).CanMerge() {
					t.unlink(right)
					cur = &Section{Address: cur.Address, Size: cur.Size + right.Size, Class: cur.Class, ghost: cur.ghost}
					merged = true
				}
			}
		}
		if !merged {
			return cur
		}
	}
}

func (t *Tracker) link(s *Section) {
	s.State = StateLive
	t.byAddress.Put(s.Address, s)
	t.bins.insert(s)
	t.counters.add(s)
	if t.policy(s.Class).CanMerge() {
		t.mergeList.Put(s.Address, s)
	}
}

func (t *Tracker) unlink(s *Section) {
	t.byAddress.Remove(s.Address)
	t.bins.remove(s)
	t.counters.remove(s)
	t.mergeList.Remove(s.Address)
}

// Remove is the inverse of Add.
func (t *Tracker) Remove(s *Section) {
	t.unlink(s)
}

// TryExtend consumes exactly extra bytes from the head of the section
// immediately following [addr, addr+size), splitting it via the class's
// Split hook if needed.
func (t *Tracker) TryExtend(addr common.Address, size int64, extra int64) bool {
	end := addr + common.Address(size)
	raw, ok := t.byAddress.Get(end)
	if !ok {
		return false
	}
	following := raw.(*Section)
	if following.Size < extra {
		return false
	}

	t.unlink(following)
	pol := t.policy(following.Class)
	if extra == following.Size {
		return true // fully consumed, nothing to relink
	}
	_, remainder, err := pol.Split(following, extra)
	if err != nil || remainder == nil {
		t.link(following) // undo: split failed, restore original
		return false
	}
	t.link(remainder)
	return true
}

// TryMerge attempts merge+shrink for an existing section (used on class
// changes).
func (t *Tracker) TryMerge(s *Section) *Section {
	if !t.policy(s.Class).CanMerge() {
		return s
	}
	t.unlink(s)
	survivor := t.mergeToFixedPoint(s)
	t.link(survivor)
	if t.policy(survivor.Class).CanShrink() && survivor.end() == t.containerEnd {
		t.tryShrinkOne(survivor)
	}
	return survivor
}

// TryShrinkContainer shrinks the container if its last section (by
// address) sits at container end and its class allows it.
func (t *Tracker) TryShrinkContainer() (shrunkBy int64, ok bool) {
	key, val := t.byAddress.Max()
	if val == nil {
		return 0, false
	}
	last := val.(*Section)
	if key.(common.Address)+common.Address(last.Size) != t.containerEnd {
		return 0, false
	}
	if !t.policy(last.Class).CanShrink() {
		return 0, false
	}
	return t.tryShrinkOne(last), true
}

func (t *Tracker) tryShrinkOne(s *Section) int64 {
	t.unlink(s)
	t.containerEnd -= common.Address(s.Size)
	return s.Size
}

// Find locates a best-fit section for size, applying an alignment
// split if alignment is configured and size exceeds alignThreshold.
func (t *Tracker) Find(size int64, alignment, alignThreshold int64) *Section {
	if alignment <= 0 || size <= alignThreshold {
		return t.bins.findBestFit(size)
	}

	candidate := t.bins.findBestFit(size)
	if candidate == nil {
		return nil
	}
	pad := int64(candidate.Address) % alignment
	if pad == 0 {
		return candidate
	}
	padBytes := alignment - pad
	t.unlink(candidate)
	pol := t.policy(candidate.Class)
	padSection, remainder, err := pol.Split(candidate, padBytes)
	if err != nil {
		t.link(candidate)
		return candidate
	}
	t.link(padSection)
	return remainder
}

// Iterate visits every live section in unspecified order.
func (t *Tracker) Iterate(op func(*Section) bool) {
	it := t.byAddress.Iterator()
	for it.Next() {
		if !op(it.Value().(*Section)) {
			return
		}
	}
}

// ChangeClass updates ghost/serializable counts and merge-list
// membership for s under its new class.
func (t *Tracker) ChangeClass(s *Section, newClass ClassTag) {
	t.unlink(s)
	s.Class = newClass
	s.ghost = t.policy(newClass).IsGhost()
	t.link(s)
}

func (t *Tracker) Stats() Counters { return t.counters }

type noopPolicy struct{}

func (noopPolicy) CanMerge() bool  { return false }
func (noopPolicy) CanShrink() bool { return false }
func (noopPolicy) OnAdd(*Section, interface{}) error { return nil }
func (noopPolicy) Split(s *Section, extra int64) (*Section, *Section, error) {
	return &Section{Address: s.Address, Size: extra, Class: s.Class},
		&Section{Address: s.Address + common.Address(extra), Size: s.Size - extra, Class: s.Class}, nil
}
func (noopPolicy) IsGhost() bool { return false }
