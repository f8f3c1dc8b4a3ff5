package cache

import (
	"sync"

	"github.com/coldvault/mdcache/common"
	"github.com/heimdalr/dag"
)

// depGraph is the flush-dependency graph backing CreateFlushDependency
// and DestroyFlushDependency: it records that a child entry must not be
// flushed before its parent. It is backed by github.com/heimdalr/dag,
// which rejects edges that would introduce a cycle — exactly the
// guarantee create_flush_dependency needs, since a cyclic flush
// dependency has no valid flush order.
//
// Vertices are addressed by the entry's common.Address rendered as a
// string (dag.IDInterface wants a stable string id); the graph is kept
// in lockstep with entry.parents/entry.children, which is what the rest
// of the cache package actually reads on the hot path.
type depGraph struct {
	mu sync.Mutex
	g  *dag.DAG
}

// depVertex adapts a common.Address to dag.IDInterface.
type depVertex common.Address

func (v depVertex) ID() string { return common.Address(v).String() }

func newDepGraph() *depGraph {
	return &depGraph{g: dag.NewDAG()}
}

func (d *depGraph) ensureVertex(addr common.Address) {
	id := depVertex(addr).ID()
	if _, err := d.g.GetVertex(id); err != nil {
		_ = d.g.AddVertexByID(id, depVertex(addr))
	}
}

func (d *depGraph) removeVertex(addr common.Address) {
	id := depVertex(addr).ID()
	_ = d.g.DeleteVertex(id)
}

// createEdge records that parent must flush before child: child depends
// on parent having been flushed first. Returns an *Error of Kind
// KindInvariant if the edge would close a cycle.
func (d *depGraph) createEdge(parent, child common.Address) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.ensureVertex(parent)
	d.ensureVertex(child)

	if err := d.g.AddEdge(depVertex(parent).ID(), depVertex(child).ID()); err != nil {
		return invariantErr("flush dependency %s -> %s would introduce a cycle: %v", parent, child, err)
	}
	return nil
}

func (d *depGraph) destroyEdge(parent, child common.Address) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.g.DeleteEdge(depVertex(parent).ID(), depVertex(child).ID()); err != nil {
		return invariantErr("no flush dependency %s -> %s to destroy", parent, child)
	}
	return nil
}

// children returns the direct flush-dependency children of addr (the
// entries that may flush only after addr has).
func (d *depGraph) children(addr common.Address) []common.Address {
	d.mu.Lock()
	defer d.mu.Unlock()

	vertices, err := d.g.GetChildren(depVertex(addr).ID())
	if err != nil {
		return nil
	}
	out := make([]common.Address, 0, len(vertices))
	for _, v := range vertices {
		out = append(out, common.Address(v.(depVertex)))
	}
	return out
}

// parents returns the direct flush-dependency parents of addr (the
// entries that must flush before addr may).
func (d *depGraph) parents(addr common.Address) []common.Address {
	d.mu.Lock()
	defer d.mu.Unlock()

	vertices, err := d.g.GetParents(depVertex(addr).ID())
	if err != nil {
		return nil
	}
	out := make([]common.Address, 0, len(vertices))
	for _, v := range vertices {
		out = append(out, common.Address(v.(depVertex)))
	}
	return out
}
