package engine

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/vk/rulegrid/internal/graph"
	"github.com/vk/rulegrid/internal/nodes"
	"github.com/vk/rulegrid/internal/rulegraph"
	"github.com/vk/rulegrid/internal/types"
	"go.opentelemetry.io/otel/trace"
)

// DefaultWorkers is the pool size used when Config.Workers is zero.
const DefaultWorkers = 10

var (
	// ErrCoreShared is returned by lifecycle operations attempted while
	// another reference to the Core is alive.
	ErrCoreShared = errors.New("core is shared: another reference is still alive")
	// ErrNotReady is returned when executing against a Core that has not
	// been finished.
	ErrNotReady = errors.New("core is not ready: Finish has not been called")
)

// State is the lifecycle state of a Core.
type State int

const (
	Initializing State = iota
	Ready
)

func (s State) String() string {
	switch s {
	case Initializing:
		return "initializing"
	case Ready:
		return "ready"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Config holds everything needed to build a Core.
type Config struct {
	Types   *types.Registry
	Rules   *rulegraph.RuleGraph
	Workers int
	// Tracer is used for node spans. Nil means the global provider.
	Tracer trace.Tracer
}

// Core is the execution environment shared by every node of a run.
type Core struct {
	types *types.Registry
	rules *rulegraph.RuleGraph
	graph *graph.Graph[nodes.Context]
	pool  *Pool

	// Mutated only while exclusively owned.
	state            State
	rootSubjectTypes []types.TypeID

	internMu sync.Mutex
	interned map[string]types.Key
}

// NewCore builds an Initializing Core.
func NewCore(cfg Config) (*Core, error) {
	if cfg.Types == nil {
		return nil, errors.New("core needs a type registry")
	}
	if cfg.Rules == nil {
		return nil, errors.New("core needs a rule graph")
	}
	workers := cfg.Workers
	if workers == 0 {
		workers = DefaultWorkers
	}
	if workers < 0 {
		return nil, fmt.Errorf("worker count must be positive, got %d", cfg.Workers)
	}

	var opts []graph.Option
	if cfg.Tracer != nil {
		opts = append(opts, graph.WithTracer(cfg.Tracer))
	}
	return &Core{
		types:    cfg.Types,
		rules:    cfg.Rules,
		graph:    graph.New[nodes.Context](opts...),
		pool:     NewPool(workers),
		interned: make(map[string]types.Key),
	}, nil
}

// Finish validates the rule set against the root subject types and marks
// the Core Ready. It may be called again on a Ready Core to replace the
// expected types.
func (c *Core) Finish(rootSubjectTypes []types.TypeID) error {
	if err := c.rules.Validate(rootSubjectTypes); err != nil {
		return fmt.Errorf("invalid rule set: %w", err)
	}
	c.rootSubjectTypes = slices.Clone(rootSubjectTypes)
	c.state = Ready
	return nil
}

// TaskEnd drops the subject keys interned during the last task.
func (c *Core) TaskEnd() {
	c.internMu.Lock()
	defer c.internMu.Unlock()
	clear(c.interned)
}

// State returns the lifecycle state.
func (c *Core) State() State { return c.state }

// RootSubjectTypes returns the expected root subject types set by Finish.
func (c *Core) RootSubjectTypes() []types.TypeID {
	return slices.Clone(c.rootSubjectTypes)
}

// ExpectsSubjectType reports whether t is one of the expected root subject
// types.
func (c *Core) ExpectsSubjectType(t types.TypeID) bool {
	return slices.Contains(c.rootSubjectTypes, t)
}

// Intern returns the canonical key for v. Equal values intern to the same
// key until the next TaskEnd.
func (c *Core) Intern(v types.Value) (types.Key, error) {
	key, err := types.NewKey(v)
	if err != nil {
		return types.Key{}, err
	}
	c.internMu.Lock()
	defer c.internMu.Unlock()
	if existing, ok := c.interned[key.ID()]; ok {
		return existing, nil
	}
	c.interned[key.ID()] = key
	return key, nil
}

// InternedCount returns how many keys are currently interned.
func (c *Core) InternedCount() int {
	c.internMu.Lock()
	defer c.internMu.Unlock()
	return len(c.interned)
}

// Types returns the type registry.
func (c *Core) Types() *types.Registry { return c.types }

// Rules returns the rule graph.
func (c *Core) Rules() *rulegraph.RuleGraph { return c.rules }

// Graph returns the memoized node graph.
func (c *Core) Graph() *graph.Graph[nodes.Context] { return c.graph }

// Pool returns the task pool.
func (c *Core) Pool() *Pool { return c.pool }
