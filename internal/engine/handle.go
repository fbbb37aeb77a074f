package engine

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/vk/rulegrid/internal/graph"
	"github.com/vk/rulegrid/internal/nodes"
	"github.com/vk/rulegrid/internal/rulegraph"
	"github.com/vk/rulegrid/internal/selectors"
	"github.com/vk/rulegrid/internal/types"
	"github.com/zclconf/go-cty/cty"
)

// Handle is a reference-counted owner of a Core.
type Handle struct {
	core *Core
	refs atomic.Int64
}

// Share moves core behind a new Handle. The caller holds the only
// reference.
func Share(core *Core) *Handle {
	h := &Handle{core: core}
	h.refs.Store(1)
	return h
}

// Clone takes another reference to the Core. The returned release drops
// it; calling release more than once has no further effect.
func (h *Handle) Clone() (*Core, func()) {
	h.refs.Add(1)
	var once sync.Once
	return h.core, func() {
		once.Do(func() { h.refs.Add(-1) })
	}
}

// Refs returns the number of live references, including the owner's.
func (h *Handle) Refs() int64 { return h.refs.Load() }

// Core gives read access to the Core without taking a reference.
func (h *Handle) Core() *Core { return h.core }

// Exclusive returns the Core for mutation, or ErrCoreShared if any other
// reference is alive.
func (h *Handle) Exclusive() (*Core, error) {
	if h.refs.Load() != 1 {
		return nil, ErrCoreShared
	}
	return h.core, nil
}

// Create builds the context for a graph entry. The context holds a
// reference to the Core until released.
func (h *Handle) Create(entry graph.EntryID) (nodes.Context, func()) {
	core, release := h.Clone()
	return &nodeContext{core: core, handle: h, entry: entry}, release
}

// nodeContext is what a single running node sees of the engine.
type nodeContext struct {
	core   *Core
	handle *Handle
	entry  graph.EntryID
}

func (c *nodeContext) Get(ctx context.Context, node nodes.NodeKey) (types.Value, error) {
	return c.core.graph.CreateFrom(ctx, c.entry, node, c.handle).Wait()
}

func (c *nodeContext) FindEdges(subjectType types.TypeID, sel selectors.Selector) (*rulegraph.Edges, bool) {
	return c.core.rules.FindRootEdges(subjectType, sel)
}

func (c *nodeContext) Types() *types.Registry { return c.core.types }

func (c *nodeContext) RunTask(ctx context.Context, fn func(context.Context) (cty.Value, error)) (cty.Value, error) {
	return c.core.pool.Run(ctx, fn)
}

func (c *nodeContext) Intern(v types.Value) (types.Key, error) { return c.core.Intern(v) }
