package scheduler

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/rulegrid/internal/ctxlog"
	"github.com/vk/rulegrid/internal/engine"
	"github.com/vk/rulegrid/internal/rulegraph"
	"github.com/vk/rulegrid/internal/selectors"
	"github.com/vk/rulegrid/internal/testutil"
	"github.com/vk/rulegrid/internal/types"
	"github.com/zclconf/go-cty/cty"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

var depSchema = cty.Object(map[string]cty.Type{"name": cty.String})

// fixture is a small build: targets have sources, sources compile to
// classes, and every dependency of a target can be labelled.
type fixture struct {
	reg      *types.Registry
	compiles atomic.Int32
	sched    *Scheduler
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	f := &fixture{reg: types.NewRegistry()}
	require.NoError(t, f.reg.Declare("target", cty.Object(map[string]cty.Type{
		"name": cty.String,
		"deps": cty.List(depSchema),
	})))
	require.NoError(t, f.reg.Declare("dep", depSchema))
	require.NoError(t, f.reg.Declare("sources", cty.String))
	require.NoError(t, f.reg.Declare("classes", cty.String))
	require.NoError(t, f.reg.Declare("label", cty.String))

	name := func(v types.Value) string { return v.Data.GetAttr("name").AsString() }
	rules := []*rulegraph.Rule{
		{
			Name:    "sources",
			Product: "sources",
			Func: func(_ context.Context, subject types.Value, _ []types.Value) (cty.Value, error) {
				return cty.StringVal("src:" + name(subject)), nil
			},
		},
		{
			Name:    "compile",
			Product: "classes",
			Inputs:  []selectors.Selector{selectors.NewSelect(types.Exactly("sources"))},
			Func: func(_ context.Context, subject types.Value, inputs []types.Value) (cty.Value, error) {
				f.compiles.Add(1)
				if name(subject) == "broken" {
					return cty.NilVal, errors.New("syntax error")
				}
				return cty.StringVal("cls:" + inputs[0].Data.AsString()), nil
			},
		},
		{
			Name:    "label",
			Product: "label",
			Func: func(_ context.Context, subject types.Value, _ []types.Value) (cty.Value, error) {
				return cty.StringVal("L:" + name(subject)), nil
			},
		},
	}
	rg, err := rulegraph.New(rules...)
	require.NoError(t, err)
	core, err := engine.NewCore(engine.Config{Types: f.reg, Rules: rg, Workers: 4})
	require.NoError(t, err)
	f.sched = New(core, nil, opts...)
	return f
}

func (f *fixture) target(t *testing.T, name string, deps ...string) types.Key {
	t.Helper()
	elems := make([]cty.Value, len(deps))
	for i, d := range deps {
		elems[i] = cty.ObjectVal(map[string]cty.Value{"name": cty.StringVal(d)})
	}
	list := cty.ListValEmpty(depSchema)
	if len(elems) > 0 {
		list = cty.ListVal(elems)
	}
	key, err := f.reg.NewKey("target", cty.ObjectVal(map[string]cty.Value{"name": cty.StringVal(name), "deps": list}))
	require.NoError(t, err)
	return key
}

func (f *fixture) finish(t *testing.T) {
	t.Helper()
	require.NoError(t, f.sched.SetRootSubjectTypes([]types.TypeID{"target"}))
}

func (f *fixture) execute(t *testing.T) ExecutionStat {
	t.Helper()
	stat, err := f.sched.Execute(context.Background())
	require.NoError(t, err)
	return stat
}

func requireSuccess(t *testing.T, st RootState) types.Value {
	t.Helper()
	require.NotNil(t, st.Result, "root %s has no result", st.Subject)
	require.True(t, st.Result.OK(), "root %s failed: %s", st.Subject, st.Result)
	return st.Result.Value
}

func TestScenarioA_SelectRoot(t *testing.T) {
	f := newFixture(t)
	lib := f.target(t, "lib")
	require.NoError(t, f.sched.AddRootSelect(lib, types.Exactly("classes")))
	f.finish(t)

	stat := f.execute(t)
	states := f.sched.RootStates()
	require.Len(t, states, 1)
	assert.Equal(t, lib.ID(), states[0].Subject.ID())
	assert.Equal(t, types.Exactly("classes"), states[0].Product)
	v := requireSuccess(t, states[0])
	assert.Equal(t, types.TypeID("classes"), v.Type)
	assert.Equal(t, "cls:src:lib", v.Data.AsString())
	assert.Equal(t, uint64(4), stat.RunnableCount, "select and task for classes and for sources")
	assert.Zero(t, stat.SchedulingIterations)
}

func TestScenarioB_SelectDependenciesRoot(t *testing.T) {
	f := newFixture(t)
	app := f.target(t, "app", "a", "b", "c")
	require.NoError(t, f.sched.AddRootSelectDependencies(app,
		types.Exactly("label"), types.Exactly("target"), "deps", []types.TypeID{"dep"}))
	f.finish(t)
	f.execute(t)

	states := f.sched.RootStates()
	require.Len(t, states, 1)
	v := requireSuccess(t, states[0])
	assert.Equal(t, types.Collection, v.Type)
	var got []string
	for it := v.Data.ElementIterator(); it.Next(); {
		_, el := it.Element()
		got = append(got, el.AsString())
	}
	if diff := cmp.Diff([]string{"L:a", "L:b", "L:c"}, got); diff != "" {
		t.Errorf("fan-out result mismatch (-want +got):\n%s", diff)
	}
}

func TestScenarioC_UnresolvableRoot(t *testing.T) {
	f := newFixture(t)
	dep, err := f.reg.NewKey("dep", cty.ObjectVal(map[string]cty.Value{"name": cty.StringVal("a")}))
	require.NoError(t, err)

	err = f.sched.AddRootSelect(dep, types.Exactly("target"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoRootEdges)
	var resErr *ResolutionError
	require.ErrorAs(t, err, &resErr)
	assert.Equal(t, types.TypeID("dep"), resErr.SubjectType)
	assert.Contains(t, err.Error(), "Select(Exactly(target))")
	assert.Contains(t, err.Error(), "subject type dep")
	assert.Empty(t, f.sched.Roots())
}

func TestIdenticalRootsShareOneNode(t *testing.T) {
	f := newFixture(t)
	lib := f.target(t, "lib")
	require.NoError(t, f.sched.AddRootSelect(lib, types.Exactly("classes")))
	require.NoError(t, f.sched.AddRootSelect(f.target(t, "lib"), types.Exactly("classes")))
	f.finish(t)

	roots := f.sched.Roots()
	require.Len(t, roots, 2)
	assert.Equal(t, roots[0].NodeKey().ID(), roots[1].NodeKey().ID())

	stat := f.execute(t)
	assert.Equal(t, uint64(4), stat.RunnableCount)
	assert.Equal(t, int32(1), f.compiles.Load())
	states := f.sched.RootStates()
	assert.True(t, requireSuccess(t, states[0]).Equal(requireSuccess(t, states[1])))
}

func TestRootOrderSurvivesReset(t *testing.T) {
	f := newFixture(t)
	names := []string{"z", "a", "m"}
	for _, n := range names {
		require.NoError(t, f.sched.AddRootSelect(f.target(t, n), types.Exactly("sources")))
	}
	f.finish(t)
	f.execute(t)

	subjectNames := func() []string {
		var out []string
		for _, st := range f.sched.RootStates() {
			out = append(out, requireSuccess(t, st).Data.AsString())
		}
		return out
	}
	assert.Equal(t, []string{"src:z", "src:a", "src:m"}, subjectNames())

	f.sched.Reset()
	assert.Empty(t, f.sched.RootStates())
	for _, n := range []string{"m", "z"} {
		require.NoError(t, f.sched.AddRootSelect(f.target(t, n), types.Exactly("sources")))
	}
	f.execute(t)
	assert.Equal(t, []string{"src:m", "src:z"}, subjectNames())
}

func TestResetKeepsMemoizedResults(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.sched.AddRootSelect(f.target(t, "lib"), types.Exactly("classes")))
	f.finish(t)
	f.execute(t)
	executed := f.sched.Core().Graph().Executed()

	f.sched.Reset()
	require.NoError(t, f.sched.AddRootSelect(f.target(t, "lib"), types.Exactly("classes")))
	states := f.sched.RootStates()
	require.Len(t, states, 1)
	require.NotNil(t, states[0].Result, "the memoized result is visible before executing again")

	stat := f.execute(t)
	assert.Zero(t, stat.RunnableCount)
	assert.Equal(t, executed, f.sched.Core().Graph().Executed())
	assert.Equal(t, int32(1), f.compiles.Load())
}

func TestMixedOutcomes(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.sched.AddRootSelect(f.target(t, "lib"), types.Exactly("classes")))
	require.NoError(t, f.sched.AddRootSelect(f.target(t, "broken"), types.Exactly("classes")))
	require.NoError(t, f.sched.AddRootSelect(f.target(t, "bin"), types.Exactly("classes")))
	f.finish(t)

	states := f.sched.RootStates()
	for _, st := range states {
		assert.Nil(t, st.Result, "nothing has run yet")
	}

	f.execute(t)
	states = f.sched.RootStates()
	require.Len(t, states, 3)
	assert.Equal(t, "cls:src:lib", requireSuccess(t, states[0]).Data.AsString())
	assert.Equal(t, "cls:src:bin", requireSuccess(t, states[2]).Data.AsString())

	require.NotNil(t, states[1].Result)
	require.NotNil(t, states[1].Result.Failure)
	assert.Equal(t, types.Throw, states[1].Result.Failure.Kind)
	assert.Contains(t, states[1].Result.Failure.Message, "syntax error")
}

func TestLifecycle(t *testing.T) {
	t.Run("execute requires a ready core", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.sched.Execute(context.Background())
		assert.ErrorIs(t, err, engine.ErrNotReady)
	})

	t.Run("mutation is refused while a reference is held", func(t *testing.T) {
		f := newFixture(t)
		_, release := f.sched.Handle().Clone()

		err := f.sched.SetRootSubjectTypes([]types.TypeID{"target"})
		assert.ErrorIs(t, err, engine.ErrCoreShared)
		assert.Equal(t, engine.Initializing, f.sched.Core().State())
		assert.ErrorIs(t, f.sched.TaskEnd(), engine.ErrCoreShared)

		release()
		require.NoError(t, f.sched.SetRootSubjectTypes([]types.TypeID{"target"}))
		assert.Equal(t, engine.Ready, f.sched.Core().State())
		assert.NoError(t, f.sched.TaskEnd())
	})

	t.Run("references are dropped after execute", func(t *testing.T) {
		f := newFixture(t)
		require.NoError(t, f.sched.AddRootSelectDependencies(f.target(t, "app", "x", "y"),
			types.Exactly("label"), types.Exactly("target"), "deps", []types.TypeID{"dep"}))
		f.finish(t)
		f.execute(t)
		assert.Equal(t, int64(1), f.sched.Handle().Refs())
		assert.Positive(t, f.sched.Core().InternedCount())
		require.NoError(t, f.sched.TaskEnd())
		assert.Zero(t, f.sched.Core().InternedCount())
	})
}

func TestSubjectTypeMismatch(t *testing.T) {
	f := newFixture(t)
	dep, err := f.reg.NewKey("dep", cty.ObjectVal(map[string]cty.Value{"name": cty.StringVal("a")}))
	require.NoError(t, err)

	require.NoError(t, f.sched.AddRootSelect(dep, types.Exactly("label")))
	err = f.sched.SetRootSubjectTypes([]types.TypeID{"target"})
	assert.ErrorIs(t, err, ErrUnexpectedSubjectType)
	assert.Equal(t, engine.Initializing, f.sched.Core().State())

	f.sched.Reset()
	f.finish(t)
	err = f.sched.AddRootSelect(dep, types.Exactly("label"))
	assert.ErrorIs(t, err, ErrUnexpectedSubjectType)
	assert.Empty(t, f.sched.Roots())
	assert.Equal(t, []types.TypeID{"target"}, f.sched.ExpectedSubjectTypes())
}

func TestDiagnostics(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.sched.AddRootSelect(f.target(t, "lib"), types.Exactly("classes")))
	require.NoError(t, f.sched.AddRootSelect(f.target(t, "broken"), types.Exactly("classes")))
	f.finish(t)
	f.execute(t)

	dir := t.TempDir()
	dot := filepath.Join(dir, "plans.dot")
	require.NoError(t, f.sched.Visualize(dot))
	raw, err := os.ReadFile(dot)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "digraph plans {")
	assert.Contains(t, string(raw), "Task(compile, ")

	trace := filepath.Join(dir, "trace.txt")
	require.NoError(t, f.sched.Trace(trace))
	raw, err = os.ReadFile(trace)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `Select(target:{"deps":[],"name":"broken"}, Exactly(classes))`)
	assert.Contains(t, string(raw), "throw: rule compile failed")
	assert.NotContains(t, string(raw), `"name":"lib"`)
}

func TestExecuteLogsAndTraces(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	f := newFixture(t, WithTracer(tp.Tracer("test")))
	require.NoError(t, f.sched.AddRootSelect(f.target(t, "lib"), types.Exactly("sources")))
	require.NoError(t, f.sched.AddRootSelect(f.target(t, "bin"), types.Exactly("sources")))
	f.finish(t)

	buf := &testutil.SafeBuffer{}
	ctx := ctxlog.WithLogger(context.Background(), testutil.NewLogger(buf))
	_, err := f.sched.Execute(ctx)
	require.NoError(t, err)

	assert.Contains(t, buf.String(), `msg="Launching 2 roots."`)
	spans := sr.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "scheduler.Execute", spans[0].Name())
}
