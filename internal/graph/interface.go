package graph

import (
	"context"

	"github.com/vk/rulegrid/internal/types"
)

// EntryID identifies an entry within one Graph. IDs are assigned in
// creation order starting at zero.
type EntryID uint64

// Node is a unit of memoized computation.
//
// # Identity
//
// ID must be a pure function of the node's inputs: two nodes with equal IDs
// are interchangeable, and only the first one requested is ever run.
//
// # Execution
//
// Run is called at most once per ID, on its own goroutine, with a context
// built for this entry by the ContextFactory passed to Create. It may block
// on dependencies requested through that context. Returning an error that
// is (or wraps) a *types.Failure records that failure verbatim; any other
// error is recorded as a Throw.
type Node[C any] interface {
	// ID returns the memoization key.
	ID() string
	// Kind names the node variant, e.g. "Select". Used for spans and
	// diagnostics.
	Kind() string
	// String renders the node for diagnostics.
	String() string
	// Run computes the node's value.
	Run(ctx context.Context, c C) (types.Value, error)
}

// ContextFactory builds the per-entry context handed to Node.Run.
//
// Create is called synchronously by the goroutine that first requests the
// entry. The returned release function is called once the node's run has ended,
// whether it succeeded, failed or panicked.
type ContextFactory[C any] interface {
	Create(entry EntryID) (C, func())
}
