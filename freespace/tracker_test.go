package freespace

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coldvault/mdcache/common"
)

type mergeablePolicy struct{}

func (mergeablePolicy) CanMerge() bool                               { return true }
func (mergeablePolicy) CanShrink() bool                              { return true }
func (mergeablePolicy) OnAdd(*Section, interface{}) error            { return nil }
func (mergeablePolicy) IsGhost() bool                                { return false }
func (mergeablePolicy) Split(s *Section, extra int64) (*Section, *Section, error) {
	return &Section{Address: s.Address, Size: extra, Class: s.Class},
		&Section{Address: s.Address + common.Address(extra), Size: s.Size - extra, Class: s.Class}, nil
}

// Scenario 4: free-space add-merge-shrink.
func TestAddMergeShrink(t *testing.T) {
	const containerEnd = common.Address(0x10000)
	tr := NewTracker(containerEnd)
	tr.RegisterClass(1, mergeablePolicy{})

	s1 := &Section{Address: 0xF000, Size: 0x800, Class: 1}
	s2 := &Section{Address: 0xF800, Size: 0x800, Class: 1}

	require.NoError(t, tr.Add(s1, AddFlags{MergeWithReturnedSpace: true}, nil))
	require.NoError(t, tr.Add(s2, AddFlags{MergeWithReturnedSpace: true}, nil))

	stats := tr.Stats()
	require.Equal(t, 0, stats.Total, "merge followed by shrink-at-container-end should leave zero sections")

	shrunkBy, ok := tr.TryShrinkContainer()
	assert.False(t, ok, "the merged section already auto-shrank inside Add")
	assert.Equal(t, int64(0), shrunkBy)

	assert.Equal(t, common.Address(0xF000), tr.containerEnd)
}

func TestFindBestFit(t *testing.T) {
	tr := NewTracker(0x100000)
	tr.RegisterClass(1, mergeablePolicy{})

	require.NoError(t, tr.Add(&Section{Address: 0x1000, Size: 256, Class: 1}, AddFlags{}, nil))
	require.NoError(t, tr.Add(&Section{Address: 0x2000, Size: 64, Class: 1}, AddFlags{}, nil))
	require.NoError(t, tr.Add(&Section{Address: 0x3000, Size: 128, Class: 1}, AddFlags{}, nil))

	found := tr.Find(100, 0, 0)
	require.NotNil(t, found)
	assert.Equal(t, int64(128), found.Size, "best fit for 100 bytes is the 128-byte section, not the 256-byte one")
}

func TestChangeClassUpdatesCounters(t *testing.T) {
	tr := NewTracker(0x10000)
	tr.RegisterClass(1, mergeablePolicy{})
	tr.RegisterClass(2, ghostPolicy{})

	s := &Section{Address: 0x100, Size: 32, Class: 1}
	require.NoError(t, tr.Add(s, AddFlags{}, nil))
	require.Equal(t, 1, tr.Stats().Serializable)

	tr.ChangeClass(s, 2)
	assert.Equal(t, 1, tr.Stats().Ghost)
	assert.Equal(t, 0, tr.Stats().Serializable)
}

type ghostPolicy struct{ mergeablePolicy }

func (ghostPolicy) IsGhost() bool { return true }
