package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/vk/rulegrid/internal/buildfile"
	"github.com/vk/rulegrid/internal/ctxlog"
	"github.com/vk/rulegrid/internal/selectors"
	"github.com/vk/rulegrid/internal/telemetry"
	"github.com/vk/rulegrid/internal/types"
	"github.com/zclconf/go-cty/cty"
	ctyjson "github.com/zclconf/go-cty/cty/json"
)

// ServiceName identifies rulegrid in exported traces.
const ServiceName = "rulegrid"

// Version is reported in exported traces.
var Version = "dev"

// ErrRootsFailed is returned by Run when at least one root did not produce
// its product.
var ErrRootsFailed = errors.New("roots failed")

// Run registers every declared root, executes them and writes one report
// line per root. It returns an error wrapping ErrRootsFailed if any root
// failed, after the full report has been written.
func (a *App) Run(ctx context.Context) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	a.logger.Debug("App.Run method started.")

	shutdown, err := telemetry.Setup(ctx, telemetry.Config{
		Endpoint:       a.config.OTLPEndpoint,
		ServiceName:    ServiceName,
		ServiceVersion: Version,
		SampleRate:     1,
	})
	if err != nil {
		return err
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if serr := shutdown(flushCtx); serr != nil {
			a.logger.Warn("Trace exporter shutdown failed.", "error", serr)
		}
	}()

	if a.config.HealthcheckPort > 0 {
		if _, err := a.startHealthcheckServer(a.config.HealthcheckPort); err != nil {
			return err
		}
		defer func() { _ = a.closeHealthcheckServer(ctx) }()
	}

	if err := a.registerRoots(); err != nil {
		return err
	}
	if err := a.scheduler.SetRootSubjectTypes(nil); err != nil {
		return fmt.Errorf("failed to finish the rule set: %w", err)
	}

	if len(a.build.Roots) == 0 {
		a.logger.Warn("No roots declared, execution not required.")
		return nil
	}

	a.logger.Info("Starting execution.", "roots", len(a.build.Roots))
	stat, err := a.scheduler.Execute(ctx)
	if err != nil {
		return fmt.Errorf("execution failed: %w", err)
	}
	a.logger.Info("Execution finished.", "executed", stat.RunnableCount)

	failed := a.report()

	if p := a.config.VisualizePath; p != "" {
		if err := a.scheduler.Visualize(p); err != nil {
			return fmt.Errorf("failed to write visualization: %w", err)
		}
	}
	if p := a.config.TracePath; p != "" {
		if err := a.scheduler.Trace(p); err != nil {
			return fmt.Errorf("failed to write trace: %w", err)
		}
	}
	if err := a.scheduler.TaskEnd(); err != nil {
		return err
	}

	a.logger.Debug("App.Run method finished.", "failed", failed)
	if failed > 0 {
		return fmt.Errorf("%w: %d of %d", ErrRootsFailed, failed, len(a.build.Roots))
	}
	return nil
}

// registerRoots registers every declared root. All registration errors are
// collected before failing, and on failure no root stays registered.
func (a *App) registerRoots() error {
	a.scheduler.Reset()
	var errs []error
	for _, decl := range a.build.Roots {
		if err := a.registerRoot(decl); err != nil {
			errs = append(errs, fmt.Errorf("root %s for subject %s: %w", decl.Selector, decl.Subject, err))
		}
	}
	if len(errs) > 0 {
		a.scheduler.Reset()
		a.rootCount.Store(0)
		return fmt.Errorf("failed to register roots: %w", errors.Join(errs...))
	}
	a.rootCount.Store(int64(len(a.build.Roots)))
	return nil
}

func (a *App) registerRoot(decl buildfile.RootDecl) error {
	subject := a.subjects[decl.Subject]
	switch sel := decl.Selector.(type) {
	case selectors.Select:
		return a.scheduler.AddRootSelect(subject, sel.Product)
	case selectors.SelectDependencies:
		return a.scheduler.AddRootSelectDependencies(subject, sel.Product, sel.DepProduct, sel.Field, sel.FieldTypes)
	default:
		return fmt.Errorf("unsupported selector %T", decl.Selector)
	}
}

// report writes one line per root in declaration order and returns the
// number of failed roots.
func (a *App) report() int {
	failed := 0
	for i, state := range a.scheduler.RootStates() {
		name := a.build.Roots[i].Subject
		product := productName(state.Product)
		switch {
		case state.Result == nil:
			failed++
			fmt.Fprintf(a.outW, "%s %s failed not computed\n", name, product)
		case !state.Result.OK():
			failed++
			f := state.Result.Failure
			fmt.Fprintf(a.outW, "%s %s failed %s\n", name, product, f.Error())
			a.logger.Warn("Root failed.", "subject", name, "product", product, "kind", f.Kind.String(), "cause", f.Root().Message)
		default:
			fmt.Fprintf(a.outW, "%s %s ok %s\n", name, product, renderValue(state.Result.Value))
		}
	}
	return failed
}

func productName(c types.TypeConstraint) string {
	ids := c.Types()
	names := make([]string, len(ids))
	for i, id := range ids {
		names[i] = string(id)
	}
	return strings.Join(names, "|")
}

// renderValue prints strings as-is and anything else as JSON.
func renderValue(v types.Value) string {
	data := v.Data
	if data.Type().Equals(cty.String) && data.IsKnown() && !data.IsNull() {
		return data.AsString()
	}
	b, err := ctyjson.Marshal(data, data.Type())
	if err != nil {
		return data.GoString()
	}
	return string(b)
}
