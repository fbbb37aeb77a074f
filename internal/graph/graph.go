package graph

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/vk/rulegrid/internal/ctxlog"
	"github.com/vk/rulegrid/internal/types"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/vk/rulegrid/internal/graph"

type entry[C any] struct {
	id   EntryID
	node Node[C]
	done chan struct{}

	// Guarded by Graph.mu until done is closed.
	complete bool
	result   types.Result
}

// Future is the asynchronous handle for an entry's result.
type Future struct {
	done   <-chan struct{}
	result func() types.Result
}

// Done is closed once the result is available.
func (f *Future) Done() <-chan struct{} { return f.done }

// Result blocks until the entry is terminal and returns its result.
func (f *Future) Result() types.Result {
	<-f.done
	return f.result()
}

// Wait blocks until the entry is terminal. A failed entry returns its
// *types.Failure as the error.
func (f *Future) Wait() (types.Value, error) {
	r := f.Result()
	if r.Failure != nil {
		return types.Value{}, r.Failure
	}
	return r.Value, nil
}

func completed(r types.Result) *Future {
	done := make(chan struct{})
	close(done)
	return &Future{done: done, result: func() types.Result { return r }}
}

// Option configures a Graph.
type Option func(*options)

type options struct {
	tracer trace.Tracer
}

// WithTracer sets the tracer used for node spans. By default the global
// OpenTelemetry provider is used.
func WithTracer(t trace.Tracer) Option {
	return func(o *options) { o.tracer = t }
}

// Graph is a thread-safe memoized node store.
type Graph[C any] struct {
	tracer trace.Tracer

	mu      sync.Mutex
	byID    map[string]*entry[C]
	entries []*entry[C]
	deps    map[EntryID][]EntryID

	executed atomic.Uint64
}

// New creates an empty graph.
func New[C any](opts ...Option) *Graph[C] {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.tracer == nil {
		o.tracer = otel.Tracer(tracerName)
	}
	return &Graph[C]{
		tracer: o.tracer,
		byID:   make(map[string]*entry[C]),
		deps:   make(map[EntryID][]EntryID),
	}
}

// Create returns the future for node, starting it if this is the first
// request for its ID.
func (g *Graph[C]) Create(ctx context.Context, node Node[C], factory ContextFactory[C]) *Future {
	return g.create(ctx, nil, node, factory)
}

// CreateFrom is Create on behalf of the running entry src. It records the
// dependency src -> node and fails with a Noop if that edge would close a
// cycle.
func (g *Graph[C]) CreateFrom(ctx context.Context, src EntryID, node Node[C], factory ContextFactory[C]) *Future {
	return g.create(ctx, &src, node, factory)
}

func (g *Graph[C]) create(ctx context.Context, src *EntryID, node Node[C], factory ContextFactory[C]) *Future {
	g.mu.Lock()
	e, exists := g.byID[node.ID()]
	if !exists {
		e = &entry[C]{
			id:   EntryID(len(g.entries)),
			node: node,
			done: make(chan struct{}),
		}
		g.byID[node.ID()] = e
		g.entries = append(g.entries, e)
	}
	if src != nil {
		if *src == e.id || g.reaches(e.id, *src) {
			g.mu.Unlock()
			ctxlog.FromContext(ctx).Debug("Dependency cycle detected.", "node", node.String())
			return completed(types.Failed(types.Noopf("dependency cycle detected at %s", node)))
		}
		if !slices.Contains(g.deps[*src], e.id) {
			g.deps[*src] = append(g.deps[*src], e.id)
		}
	}
	g.mu.Unlock()

	if !exists {
		c, release := factory.Create(e.id)
		go g.run(ctx, e, c, release)
	}
	return &Future{done: e.done, result: func() types.Result { return g.resultOf(e) }}
}

// reaches reports whether to is reachable from from over dependency edges.
// Callers hold g.mu.
func (g *Graph[C]) reaches(from, to EntryID) bool {
	visited := map[EntryID]bool{from: true}
	stack := []EntryID{from}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if cur == to {
			return true
		}
		for _, next := range g.deps[cur] {
			if !visited[next] {
				visited[next] = true
				stack = append(stack, next)
			}
		}
	}
	return false
}

func (g *Graph[C]) run(ctx context.Context, e *entry[C], c C, release func()) {
	ctx = context.WithoutCancel(ctx)
	ctx, span := g.tracer.Start(ctx, "graph."+e.node.Kind(), trace.WithAttributes(
		attribute.String("graph.node", e.node.String()),
		attribute.Int64("graph.entry", int64(e.id)),
	))

	g.executed.Add(1)
	result := g.invoke(ctx, e, c, release)
	if result.Failure != nil {
		span.SetStatus(codes.Error, result.Failure.Error())
		span.SetAttributes(attribute.String("graph.failure", result.Failure.Kind.String()))
	}
	span.End()

	g.mu.Lock()
	e.result = result
	e.complete = true
	g.mu.Unlock()
	close(e.done)
}

func (g *Graph[C]) invoke(ctx context.Context, e *entry[C], c C, release func()) (result types.Result) {
	defer release()
	defer func() {
		if r := recover(); r != nil {
			ctxlog.FromContext(ctx).Error("Node panicked.", "node", e.node.String(), "panic", r)
			result = types.Failed(types.Throwf("panic in %s: %v", e.node, r))
		}
	}()

	v, err := e.node.Run(ctx, c)
	if err != nil {
		return types.Failed(types.AsFailure(err))
	}
	return types.Success(v)
}

func (g *Graph[C]) resultOf(e *entry[C]) types.Result {
	g.mu.Lock()
	defer g.mu.Unlock()
	return e.result
}

// Peek returns the result for node if it has already been computed. It
// never starts a computation.
func (g *Graph[C]) Peek(node Node[C]) (types.Result, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	e, ok := g.byID[node.ID()]
	if !ok || !e.complete {
		return types.Result{}, false
	}
	return e.result, true
}

// Len returns the number of entries in the graph.
func (g *Graph[C]) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.entries)
}

// Executed returns how many node runs have been started since the graph
// was created.
func (g *Graph[C]) Executed() uint64 {
	return g.executed.Load()
}

func (g *Graph[C]) String() string {
	return fmt.Sprintf("Graph(%d entries)", g.Len())
}
