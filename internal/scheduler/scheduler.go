package scheduler

import (
	"context"
	"fmt"
	"slices"

	"github.com/vk/rulegrid/internal/ctxlog"
	"github.com/vk/rulegrid/internal/engine"
	"github.com/vk/rulegrid/internal/nodes"
	"github.com/vk/rulegrid/internal/rulegraph"
	"github.com/vk/rulegrid/internal/selectors"
	"github.com/vk/rulegrid/internal/types"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

const tracerName = "github.com/vk/rulegrid/internal/scheduler"

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithTracer sets the tracer for the Execute span. By default the global
// OpenTelemetry provider is used.
func WithTracer(t trace.Tracer) Option {
	return func(s *Scheduler) { s.tracer = t }
}

// Scheduler holds an ordered list of roots and the Core they execute on.
// Its methods must not be called concurrently with each other.
type Scheduler struct {
	handle   *engine.Handle
	expected []types.TypeID
	roots    []Root
	tracer   trace.Tracer
}

// New takes ownership of core. expected is the initial set of root subject
// types; it takes effect when SetRootSubjectTypes is called without types.
func New(core *engine.Core, expected []types.TypeID, opts ...Option) *Scheduler {
	s := &Scheduler{
		handle:   engine.Share(core),
		expected: slices.Clone(expected),
		tracer:   otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Core gives read access to the Core.
func (s *Scheduler) Core() *engine.Core { return s.handle.Core() }

// Handle returns the handle owning the Core.
func (s *Scheduler) Handle() *engine.Handle { return s.handle }

// ExpectedSubjectTypes returns the expected root subject types.
func (s *Scheduler) ExpectedSubjectTypes() []types.TypeID { return slices.Clone(s.expected) }

// AddRootSelect registers a root requesting product for subject.
func (s *Scheduler) AddRootSelect(subject types.Key, product types.TypeConstraint) error {
	sel := selectors.NewSelect(product)
	edges, err := s.resolve(subject, sel)
	if err != nil {
		return err
	}
	s.roots = append(s.roots, RootSelect{Node: nodes.Select{Subject: subject, Selector: sel, Edges: edges}})
	return nil
}

// AddRootSelectDependencies registers a root requesting product for every
// element of field on subject's depProduct.
func (s *Scheduler) AddRootSelectDependencies(subject types.Key, product, depProduct types.TypeConstraint, field types.Field, fieldTypes []types.TypeID) error {
	sel := selectors.SelectDependencies{
		Product:    product,
		DepProduct: depProduct,
		Field:      field,
		FieldTypes: slices.Clone(fieldTypes),
	}
	edges, err := s.resolve(subject, sel)
	if err != nil {
		return err
	}
	s.roots = append(s.roots, RootSelectDependencies{Node: nodes.SelectDependencies{Subject: subject, Selector: sel, Edges: edges}})
	return nil
}

func (s *Scheduler) resolve(subject types.Key, sel selectors.Selector) (*rulegraph.Edges, error) {
	core := s.handle.Core()
	if core.State() == engine.Ready && !core.ExpectsSubjectType(subject.Type()) {
		return nil, fmt.Errorf("%w: %s is not one of %v", ErrUnexpectedSubjectType, subject.Type(), core.RootSubjectTypes())
	}
	edges, ok := core.Rules().FindRootEdges(subject.Type(), sel)
	if !ok {
		return nil, &ResolutionError{SubjectType: subject.Type(), Selector: sel}
	}
	return edges, nil
}

// Reset clears all roots. The Core and its memoized graph are kept.
func (s *Scheduler) Reset() {
	s.roots = nil
}

// Roots returns the registered roots in declaration order.
func (s *Scheduler) Roots() []Root {
	return slices.Clone(s.roots)
}

// RootStates reports every root in declaration order with its result, if
// the graph has one. It never starts a computation.
func (s *Scheduler) RootStates() []RootState {
	g := s.handle.Core().Graph()
	states := make([]RootState, len(s.roots))
	for i, root := range s.roots {
		states[i] = RootState{Subject: root.Subject(), Product: root.Product()}
		if r, ok := g.Peek(root.NodeKey()); ok {
			states[i].Result = &r
		}
	}
	return states
}

// Execute runs every root to completion. Root failures are recorded in the
// graph and reported by RootStates; they never abort the run. Cancelling
// ctx has no effect.
//
// Execute panics if the join itself breaks, which is a defect rather than
// a computation failure.
func (s *Scheduler) Execute(ctx context.Context) (ExecutionStat, error) {
	core := s.handle.Core()
	if core.State() != engine.Ready {
		return ExecutionStat{}, engine.ErrNotReady
	}

	ctx = context.WithoutCancel(ctx)
	ctx, span := s.tracer.Start(ctx, "scheduler.Execute", trace.WithAttributes(
		attribute.Int("scheduler.roots", len(s.roots)),
	))
	defer span.End()

	logger := ctxlog.FromContext(ctx)
	logger.Debug(fmt.Sprintf("Launching %d roots.", len(s.roots)), "roots", len(s.roots))

	g := core.Graph()
	before := g.Executed()
	var join errgroup.Group
	for _, root := range s.roots {
		join.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("root %s: %v", root, r)
				}
			}()
			g.Create(ctx, root.NodeKey(), s.handle).Result()
			return nil
		})
	}
	if err := join.Wait(); err != nil {
		span.SetStatus(codes.Error, err.Error())
		panic(fmt.Sprintf("execution failed: %v", err))
	}

	stat := ExecutionStat{RunnableCount: g.Executed() - before}
	span.SetAttributes(attribute.Int64("scheduler.executed", int64(stat.RunnableCount)))
	logger.Debug("Roots completed.", "roots", len(s.roots), "executed", stat.RunnableCount)
	return stat, nil
}

// SetRootSubjectTypes replaces the expected root subject types and
// finishes the Core. An empty subjectTypes keeps the types given to New.
// Every registered root must use one of the resulting types.
func (s *Scheduler) SetRootSubjectTypes(subjectTypes []types.TypeID) error {
	core, err := s.handle.Exclusive()
	if err != nil {
		return err
	}
	if len(subjectTypes) == 0 {
		subjectTypes = s.expected
	}
	for _, root := range s.roots {
		if !slices.Contains(subjectTypes, root.Subject().Type()) {
			return fmt.Errorf("%w: root %s has subject type %s, expected one of %v",
				ErrUnexpectedSubjectType, root, root.Subject().Type(), subjectTypes)
		}
	}
	if err := core.Finish(subjectTypes); err != nil {
		return err
	}
	s.expected = slices.Clone(subjectTypes)
	return nil
}

// TaskEnd tells the Core that a batch of work has ended.
func (s *Scheduler) TaskEnd() error {
	core, err := s.handle.Exclusive()
	if err != nil {
		return err
	}
	core.TaskEnd()
	return nil
}

func (s *Scheduler) rootNodes() []nodes.NodeKey {
	out := make([]nodes.NodeKey, len(s.roots))
	for i, root := range s.roots {
		out[i] = root.NodeKey()
	}
	return out
}

// Visualize writes a Graphviz rendering of the current roots' graph to path.
func (s *Scheduler) Visualize(path string) error {
	return s.handle.Core().Graph().Visualize(s.rootNodes(), path)
}

// Trace appends the failure trace of every failed root to path.
func (s *Scheduler) Trace(path string) error {
	g := s.handle.Core().Graph()
	for _, n := range s.rootNodes() {
		if err := g.Trace(n, path); err != nil {
			return err
		}
	}
	return nil
}
