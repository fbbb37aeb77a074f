// Package scheduler binds requested outputs to statically resolved execution
// paths and drives them through the graph.
//
// # Why Scheduler Package Exists
//
// A caller knows what it wants: this product for that subject. It does not
// know which rules can produce it or in what order they must run. The
// scheduler turns each request into a root, checks up front that the
// request can be satisfied at all, and then lets the graph compute every
// root at once.
//
// # How It Works
//
//	AddRootSelect / AddRootSelectDependencies
//	          │  rulegraph.FindRootEdges(subject type, selector)
//	          ▼
//	  ┌──────────────┐   no edges    ResolutionError, roots unchanged
//	  │ roots (order │──────────────►
//	  │  preserved)  │
//	  └──────┬───────┘
//	         │ SetRootSubjectTypes → Core.Finish (Ready)
//	         ▼
//	  Execute: one goroutine per root → graph.Create(root node)
//	         │ errgroup join
//	         ▼
//	  RootStates: graph.Peek per root, in registration order
//
//  1. **Registration:** the rule graph is asked, once per (subject type,
//     selector), how the product can be computed. If there is no way,
//     registration fails with a ResolutionError and the root list is left
//     as it was. Identical registrations resolve identically and share one
//     memoized graph entry.
//  2. **Lifecycle:** SetRootSubjectTypes fixes the subject types roots may
//     use and finishes the Core. An empty set keeps the types given to New.
//  3. **Execution:** Execute launches every root concurrently and waits for
//     all of them. A failing root never stops its siblings. Cancelling the
//     context passed to Execute has no effect.
//  4. **Introspection:** RootStates peeks at the graph without computing
//     anything, so it can be called at any time.
//  5. **Reuse:** Reset clears the roots but keeps the Core and its memoized
//     results; re-registering an identical root reuses the stored result.
//
// # Usage Patterns
//
//	s := scheduler.New(core, []types.TypeID{"target"})
//	if err := s.AddRootSelect(lib, types.Exactly("classes")); err != nil {
//	    return err // *ResolutionError or ErrUnexpectedSubjectType
//	}
//	if err := s.SetRootSubjectTypes(nil); err != nil {
//	    return err
//	}
//	if _, err := s.Execute(ctx); err != nil {
//	    return err
//	}
//	for _, st := range s.RootStates() {
//	    // st.Result is nil, a success, or a Failure
//	}
//	_ = s.TaskEnd()
//
// # Thread-Safety
//
// Scheduler methods must not be called concurrently with each other. The
// scheduler owns its Core through an engine.Handle: SetRootSubjectTypes and
// TaskEnd mutate the Core and are refused with engine.ErrCoreShared while
// anything else still holds a reference to it, such as a node that is
// still running.
//
// # Key Types
//
// **Scheduler** (scheduler.go): the root list and the Core it runs on.
//
// **Root** (interface.go): RootSelect or RootSelectDependencies, a request
// bound to its edges.
//
// **RootState** and **ExecutionStat** (interface.go): what callers read back.
//
// **ResolutionError** (interface.go): a request no rule path can satisfy.
// It matches ErrNoRootEdges.
package scheduler
