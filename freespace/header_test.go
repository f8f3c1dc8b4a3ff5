package freespace

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/coldvault/mdcache/common"
)

// Scenario 5: avoid-shrink-at-close.
func TestAvoidShrinkAtClose(t *testing.T) {
	h := &Header{}
	h.CommitAlloc(common.Address(0x2000), 4096)

	needsRealloc := h.RecomputeSize(2048, true)
	assert.False(t, needsRealloc)
	assert.Equal(t, int64(4096), h.LiveSize, "on-disk block must remain at its prior allocated size across a shrink-and-close")
	assert.Equal(t, int64(4096), h.AllocSize)
}

func TestRecomputeSizeGrowsWhenNotClosing(t *testing.T) {
	h := &Header{}
	h.CommitAlloc(common.Address(0x2000), 4096)

	needsRealloc := h.RecomputeSize(8192, false)
	assert.True(t, needsRealloc)
}

func TestRecomputeSizeGrowsAtClose(t *testing.T) {
	h := &Header{}
	h.CommitAlloc(common.Address(0x2000), 4096)

	needsRealloc := h.RecomputeSize(8192, true)
	assert.True(t, needsRealloc, "a block that grew may be reallocated even at close; only shrinkage is forbidden")
}

func TestSectionInfoLockNesting(t *testing.T) {
	var l SectionInfoLock
	l.AcquireRead()
	dropped := l.AcquireWrite()
	assert.True(t, dropped)
	l.ReleaseWrite()
}
