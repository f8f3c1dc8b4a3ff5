// Package freespace is the size-binned free-space-section tracker,
// component H: it maintains an in-memory index of free regions within
// one container. header.go holds the header fields and the avoid-shrink
// sizing rule for a section-info block; nothing here writes the index
// to disk or stores it through the cache.
package freespace

import "github.com/coldvault/mdcache/common"

// SectionState distinguishes a section currently tracked in memory
// from one whose only record is its serialized form on disk.
type SectionState int

const (
	StateLive SectionState = iota
	StateSerialized
)

// ClassTag is a user-defined section classification. Class behavior
// (merge, shrink, split eligibility) is supplied by a ClassPolicy, not
// carried on the section itself.
type ClassTag int

// Section is one contiguous free region.
type Section struct {
	Address common.Address
	Size    int64
	Class   ClassTag
	State   SectionState

	// ghost sections are tracked in counts but never serialized.
	ghost bool
}

func (s *Section) end() common.Address { return s.Address + common.Address(s.Size) }

// adjoins reports whether s immediately precedes other in address
// space ([s.Address, s.Address+s.Size) == other.Address).
func (s *Section) adjoins(other *Section) bool {
	return s.end() == other.Address
}

// ClassPolicy is the per-class behavior table the tracker consults for
// its optional add hook, can_shrink, can_merge, and split behavior. It
// mirrors cache.Class's role for ordinary entries, scoped to the
// free-space domain.
type ClassPolicy interface {
	// CanMerge reports whether sections of this class may be merged
	// with an adjacent section of the same class.
	CanMerge() bool
	// CanShrink reports whether a section at the end of the container
	// may be consumed by try_shrink_container.
	CanShrink() bool
	// OnAdd is the optional add hook; op_data is policy-defined.
	OnAdd(s *Section, opData interface{}) error
	// Split carves extra bytes off the head of s, returning the
	// remainder section. Used by try_extend and by the alignment path
	// in Find.
	Split(s *Section, extra int64) (consumed, remainder *Section, err error)
	// IsGhost reports whether sections of this class never contribute
	// on-disk bytes.
	IsGhost() bool
}
