package reqctx

import (
	"testing"

	"github.com/davecgh/go-spew/spew"
	fuzz "github.com/google/gofuzz"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sortedDump renders with map keys sorted and pointer addresses omitted
// so two maps with identical content always dump identically regardless
// of Go's randomized map iteration order or where their values live.
var sortedDump = spew.ConfigState{SortKeys: true, DisablePointerAddresses: true}

// Random field names and scalar values stand in for the property-list
// entries a real caller would push; gofuzz drives the push/set/pop cycle
// far wider than a handful of hand-picked cases would, since the
// cached-field bookkeeping cares only about name/value pairs, not their
// types.
func TestPushSetPopSurvivesFuzzedFields(t *testing.T) {
	f := fuzz.New().NilChance(0).NumElements(3, 8)

	for i := 0; i < 50; i++ {
		require.Equal(t, 0, Depth())
		frame := Push()

		var names []string
		f.Fuzz(&names)
		values := make(map[string]int)
		for _, n := range names {
			if n == "" {
				continue
			}
			var v int
			f.Fuzz(&v)
			frame.MarkReturned(n, v)
			values[n] = v
		}

		written := map[string]interface{}{}
		Pop(true, func(name string, value interface{}) { written[name] = value })

		for n, v := range values {
			assert.Equal(t, v, written[n], "field %q must round-trip through write-back unchanged:\n%s", n, sortedDump.Sdump(written))
		}
		require.Equal(t, 0, Depth())
	}
}

// clone() must produce a frame that spew considers structurally
// identical to its parent at the moment of the clone (push-inheritance:
// an inner frame starts as a copy of the outer frame it shadows);
// sortedDump.Sdump gives a stable, deep textual form that catches an
// unexported-field omission a field-by-field assert.Equal could miss if
// clone() is later extended.
func TestCloneMatchesParentSnapshot(t *testing.T) {
	parent := Push()
	parent.SetField("dxpl", 7)
	parent.SetExtra("vol_ctx", "handle-1")

	child := parent.clone()

	assert.Equal(t, sortedDump.Sdump(parent.fields), sortedDump.Sdump(child.fields))
	assert.Equal(t, sortedDump.Sdump(parent.extra), sortedDump.Sdump(child.extra))

	child.SetField("dxpl", 99)
	assert.NotEqual(t, sortedDump.Sdump(parent.fields), sortedDump.Sdump(child.fields), "mutating the clone must not affect the parent frame")

	Pop(false, nil)
}
