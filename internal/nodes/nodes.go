// Package nodes defines the units of computation the scheduler asks the
// graph for: selecting a product for a subject, fanning a selection out over
// a subject's dependencies, and running a rule's task body.
//
// Nodes are plain values. Their ID is derived from what they compute, so two
// requests for the same (subject, selector, edges) share one graph entry.
package nodes

import (
	"context"
	"strings"
	"sync"

	"github.com/vk/rulegrid/internal/graph"
	"github.com/vk/rulegrid/internal/rulegraph"
	"github.com/vk/rulegrid/internal/selectors"
	"github.com/vk/rulegrid/internal/types"
	"github.com/zclconf/go-cty/cty"
)

// Context is what a running node sees of the engine.
type Context interface {
	// Get requests a dependency and blocks until it is terminal. A failed
	// dependency is returned as a *types.Failure error.
	Get(ctx context.Context, node NodeKey) (types.Value, error)
	// FindEdges resolves a selector for a subject type.
	FindEdges(subjectType types.TypeID, sel selectors.Selector) (*rulegraph.Edges, bool)
	// Types returns the type registry.
	Types() *types.Registry
	// RunTask runs fn on the bounded task pool.
	RunTask(ctx context.Context, fn func(context.Context) (cty.Value, error)) (cty.Value, error)
	// Intern returns the canonical key for a value.
	Intern(v types.Value) (types.Key, error)
}

// NodeKey is a node the graph can memoize.
type NodeKey = graph.Node[Context]

func nodeID(kind string, parts ...string) string {
	return kind + "(" + strings.Join(parts, "|") + ")"
}

// collect waits for every dependency in order. All of them are awaited even
// when one fails; the first failure in order is returned, wrapped with the
// description of the dependency that produced it.
func collect(ctx context.Context, c Context, deps []NodeKey, describe func(i int) string) ([]types.Value, error) {
	values := make([]types.Value, len(deps))
	errs := make([]error, len(deps))
	var wg sync.WaitGroup
	for i, dep := range deps {
		wg.Add(1)
		go func() {
			defer wg.Done()
			values[i], errs[i] = c.Get(ctx, dep)
		}()
	}
	wg.Wait()
	for i, err := range errs {
		if err != nil {
			return nil, types.AsFailure(err).Wrap(describe(i))
		}
	}
	return values, nil
}
