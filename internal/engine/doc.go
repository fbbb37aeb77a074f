// Package engine holds the shared execution environment: the Core.
//
// # Why Engine Package Exists
//
// Every running node needs the same few things: the type registry, the
// rule graph to resolve its inputs, the bounded task pool and the memoized
// graph itself. The Core bundles them, and the Handle controls who may
// change it and when.
//
// # Ownership
//
// A Core is freely mutable while it is being set up. Once handed to a
// scheduler it lives behind a reference-counted Handle: every running node
// holds a reference for the duration of its run, and lifecycle mutations
// (Finish, TaskEnd) go through Handle.Exclusive, which refuses with
// ErrCoreShared while any other reference is alive. Nothing ever waits for
// the count to drop; a refused mutation is reported to the caller.
//
// # Lifecycle
//
//  1. **Initializing:** NewCore validates its Config and builds the graph
//     and the pool.
//  2. **Ready:** Finish validates the rule set against the expected root
//     subject types. Execution requires a Ready Core.
//  3. **Task end:** TaskEnd drops the subject keys interned during the last
//     batch. The memoized graph is kept.
//
// There is no way back to Initializing.
//
// # Task Pool
//
// Task bodies run on a bounded Pool. A task holds a worker slot only while
// its body runs; waiting for dependencies happens outside the pool, so a
// full pool cannot deadlock on its own dependencies.
//
// # Thread-Safety
//
// Intern, the accessors and every node Context method are safe for
// concurrent use. Finish and TaskEnd are not; they are reached only through
// Handle.Exclusive.
package engine
