// Package graph is the memoized store of computation nodes. Every product
// computed during a run, for any root, lives in one Graph.
//
// # Why Graph Package Exists
//
// Roots overlap. Two roots asking for the classes of the same target, or a
// fan-out reaching the same dependency twice, must compute it once and see
// the same result. The graph owns that sharing: callers describe what they
// want as a Node with a stable ID, and the graph decides whether it needs
// to run.
//
// # How It Works
//
//	 Create / CreateFrom(node)
//	          │
//	          ▼
//	  ┌───────────────┐  known ID   ┌──────────────┐
//	  │ entries by ID ├────────────►│ shared Future│
//	  └───────┬───────┘             └──────────────┘
//	          │ new ID
//	          ▼
//	  ┌───────────────┐  Create(id)  ┌────────────────┐
//	  │ new entry     ├─────────────►│ ContextFactory │
//	  │ (goroutine)   │◄─────────────┤  C, release    │
//	  └───────┬───────┘              └────────────────┘
//	          │ node.Run(ctx, C)
//	          ▼
//	  terminal Result, Future closed, release()
//
//  1. **Lookup:** the first request for an ID creates an entry; every later
//     request, from any root or node, gets the same Future.
//  2. **Run:** a new entry runs its node on its own goroutine with a context
//     from the ContextFactory. The graph is generic over that context type
//     C and knows nothing about it.
//  3. **Completion:** the result is stored, the Future is closed and the
//     context is released exactly once, whether the node succeeded, failed
//     or panicked. A panic becomes a Throw failure.
//
// Results are kept for the lifetime of the Graph.
//
// # Dependencies and Cycles
//
// Nodes request their dependencies through CreateFrom, which records the
// edge from requester to dependency. If the dependency can already reach
// the requester, the request completes at once with a Noop failure naming
// the cycle instead of waiting forever.
//
// # Usage Patterns
//
// **Scheduler** starts a root and waits for it:
//
//	res := g.Create(ctx, root, factory).Result()
//
// **Nodes** request inputs from inside Run, through their context:
//
//	v, err := g.CreateFrom(ctx, self, dep, factory).Wait()
//
// **Reporting** reads outcomes without starting anything:
//
//	if res, ok := g.Peek(root); ok {
//	    // res is terminal
//	}
//
// # Diagnostics
//
// Visualize writes a Graphviz rendering of everything reachable from a set
// of roots, colored by state. Trace appends a readable path to the failures
// under a failed root. Each node run is recorded as an OpenTelemetry span
// named graph.<kind>.
//
// # Thread-Safety
//
// All Graph methods are safe for concurrent use. Entries, results and the
// edge set are guarded by one mutex, which is never held while a node runs.
// A Future blocks on the entry's done channel and reads the stored result
// once it is closed.
//
// # Key Types
//
// **Node** (interface.go): a unit of memoized computation with a stable ID.
//
// **ContextFactory** (interface.go): builds the per-entry context for a run.
//
// **Graph** (graph.go): the store itself, with Create, CreateFrom, Peek and
// the diagnostics in diagnostics.go.
//
// **Future** (graph.go): the handle on an entry's eventual Result.
package graph
