package cache

import "github.com/coldvault/mdcache/common"

// tagIndex is the tag/ring bookkeeping behind flush_tagged, evict_tagged,
// expunge_tag_type, and retag_copied. A tag groups every entry belonging
// to one logical container object
// (e.g. one dataset's header chunk plus its B-tree and chunk-index
// entries) so a whole-object operation doesn't need to scan the index.
type tagIndex struct {
	byTag  map[common.Address]map[common.Address]struct{} // tag -> member addresses
	byRing map[common.Ring]map[common.Address]struct{}     // ring -> member addresses
}

func newTagIndex() *tagIndex {
	ti := &tagIndex{
		byTag:  make(map[common.Address]map[common.Address]struct{}),
		byRing: make(map[common.Ring]map[common.Address]struct{}),
	}
	for r := common.Ring(0); r < common.Ring(common.NumRings); r++ {
		ti.byRing[r] = make(map[common.Address]struct{})
	}
	return ti
}

func (ti *tagIndex) add(e *entry) {
	if ti.byTag[e.tag] == nil {
		ti.byTag[e.tag] = make(map[common.Address]struct{})
	}
	ti.byTag[e.tag][e.address] = struct{}{}
	ti.byRing[e.ring][e.address] = struct{}{}
}

func (ti *tagIndex) remove(e *entry) {
	if members, ok := ti.byTag[e.tag]; ok {
		delete(members, e.address)
		if len(members) == 0 {
			delete(ti.byTag, e.tag)
		}
	}
	delete(ti.byRing[e.ring], e.address)
}

// retag moves addr from its old tag to newTag, leaving ring membership
// untouched: used to reassign every entry carrying one tag to a new tag,
// for the object-copy case.
func (ti *tagIndex) retag(e *entry, newTag common.Address) {
	if members, ok := ti.byTag[e.tag]; ok {
		delete(members, e.address)
		if len(members) == 0 {
			delete(ti.byTag, e.tag)
		}
	}
	e.tag = newTag
	if ti.byTag[newTag] == nil {
		ti.byTag[newTag] = make(map[common.Address]struct{})
	}
	ti.byTag[newTag][e.address] = struct{}{}
}

// retagAll reassigns every member of oldTag to newTag in one pass.
func (ti *tagIndex) retagAll(oldTag, newTag common.Address, lookup func(common.Address) (*entry, bool)) {
	members := ti.byTag[oldTag]
	for addr := range members {
		if e, ok := lookup(addr); ok {
			ti.retag(e, newTag)
		}
	}
}

func (ti *tagIndex) membersOfTag(tag common.Address) []common.Address {
	out := make([]common.Address, 0, len(ti.byTag[tag]))
	for addr := range ti.byTag[tag] {
		out = append(out, addr)
	}
	return out
}

func (ti *tagIndex) membersOfRing(ring common.Ring) []common.Address {
	out := make([]common.Address, 0, len(ti.byRing[ring]))
	for addr := range ti.byRing[ring] {
		out = append(out, addr)
	}
	return out
}

func (ti *tagIndex) changeRing(e *entry, newRing common.Ring) {
	delete(ti.byRing[e.ring], e.address)
	e.ring = newRing
	ti.byRing[newRing][e.address] = struct{}{}
}
