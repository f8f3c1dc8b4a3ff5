package freespace

import (
	"math/bits"

	"github.com/emirpasic/gods/maps/treemap"
	"github.com/emirpasic/gods/utils"

	"github.com/coldvault/mdcache/common"
)

// binIndex holds sections in size-class bins, each bin an ordered map
// keyed by size; each size-node an ordered map keyed by address, so best
// fit with lowest address is an O(log n) lookup within the bin. Both
// levels are backed by github.com/emirpasic/gods's red-black-tree-based
// treemap, which gives the Floor/Ceiling neighbor queries the find/
// try_extend algorithms need without hand-rolling a balanced tree.
type binIndex struct {
	bins map[int]*treemap.Map // bin index -> (size int64 -> *treemap.Map(address -> *Section))
}

func newBinIndex() *binIndex {
	return &binIndex{bins: make(map[int]*treemap.Map)}
}

// binOf returns floor(log2(size)), the bin a section of this size
// belongs in.
func binOf(size int64) int {
	if size <= 1 {
		return 0
	}
	return bits.Len64(uint64(size)) - 1
}

func addressComparator(a, b interface{}) int {
	x, y := a.(common.Address), b.(common.Address)
	switch {
	case x < y:
		return -1
	case x > y:
		return 1
	default:
		return 0
	}
}

func (bi *binIndex) insert(s *Section) {
	bin := binOf(s.Size)
	sizeMap, ok := bi.bins[bin]
	if !ok {
		sizeMap = treemap.NewWith(utils.Int64Comparator)
		bi.bins[bin] = sizeMap
	}
	raw, ok := sizeMap.Get(s.Size)
	var addrMap *treemap.Map
	if ok {
		addrMap = raw.(*treemap.Map)
	} else {
		addrMap = treemap.NewWith(addressComparator)
		sizeMap.Put(s.Size, addrMap)
	}
	addrMap.Put(s.Address, s)
}

func (bi *binIndex) remove(s *Section) {
	bin := binOf(s.Size)
	sizeMap, ok := bi.bins[bin]
	if !ok {
		return
	}
	raw, ok := sizeMap.Get(s.Size)
	if !ok {
		return
	}
	addrMap := raw.(*treemap.Map)
	addrMap.Remove(s.Address)
	if addrMap.Size() == 0 {
		sizeMap.Remove(s.Size)
	}
	if sizeMap.Size() == 0 {
		delete(bi.bins, bin)
	}
}

// findBestFit walks bins >= ceil(log2(size)) for the smallest section
// that still fits size, and within that size class the lowest address.
func (bi *binIndex) findBestFit(size int64) *Section {
	start := binOf(size)
	if int64(1)<<uint(start) < size {
		start++
	}
	for bin := start; bin <= 63; bin++ {
		sizeMap, ok := bi.bins[bin]
		if !ok {
			continue
		}
		_, raw := sizeMap.Ceiling(size)
		if raw == nil {
			continue
		}
		addrMap := raw.(*treemap.Map)
		_, val := addrMap.Min()
		if val == nil {
			continue
		}
		return val.(*Section)
	}
	return nil
}
