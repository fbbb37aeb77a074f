package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"sync/atomic"

	"github.com/vk/rulegrid/internal/buildfile"
	"github.com/vk/rulegrid/internal/ctxlog"
	"github.com/vk/rulegrid/internal/engine"
	"github.com/vk/rulegrid/internal/rulegraph"
	"github.com/vk/rulegrid/internal/scheduler"
	"github.com/vk/rulegrid/internal/tasks"
	"github.com/vk/rulegrid/internal/types"
)

// App encapsulates the application's dependencies, configuration, and lifecycle.
type App struct {
	outW   io.Writer
	logger *slog.Logger
	config *Config

	handlers  *tasks.Registry
	build     *buildfile.Config
	types     *types.Registry
	subjects  map[string]types.Key
	scheduler *scheduler.Scheduler

	httpServer *http.Server
	rootCount  atomic.Int64
}

// NewApp loads the build and rule files named by cfg and wires them into a
// scheduler. The report of a run is written to outW and logs to logW.
// Without modules, the handlers compiled into the binary are registered.
func NewApp(outW, logW io.Writer, cfg *Config, modules ...tasks.Module) (*App, error) {
	logger := newLogger(cfg.LogLevel, cfg.LogFormat, logW)
	ctx := ctxlog.WithLogger(context.Background(), logger)
	logger.Debug("Logger configured successfully.")

	paths := []string{cfg.BuildPath}
	if cfg.RulesPath != "" {
		if _, err := os.Stat(cfg.RulesPath); err == nil {
			paths = append([]string{cfg.RulesPath}, paths...)
		} else if errors.Is(err, os.ErrNotExist) {
			logger.Debug("Rules path not found, skipping.", "path", cfg.RulesPath)
		} else {
			return nil, fmt.Errorf("error accessing rules path %s: %w", cfg.RulesPath, err)
		}
	}

	build, err := buildfile.Load(ctx, paths...)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if len(modules) == 0 {
		modules = coreModules
	}
	handlers := tasks.New(modules...)
	logger.Debug("Task handlers registered.", "count", len(handlers.Names()), "names", handlers.Names())

	reg := types.NewRegistry()
	if err := build.DeclareTypes(reg); err != nil {
		return nil, fmt.Errorf("failed to declare types: %w", err)
	}
	rules, err := build.CompileRules(handlers)
	if err != nil {
		return nil, fmt.Errorf("failed to compile rules: %w", err)
	}
	ruleGraph, err := rulegraph.New(rules...)
	if err != nil {
		return nil, fmt.Errorf("failed to build rule graph: %w", err)
	}
	subjects, err := build.SubjectKeys(reg)
	if err != nil {
		return nil, fmt.Errorf("failed to build subjects: %w", err)
	}

	core, err := engine.NewCore(engine.Config{Types: reg, Rules: ruleGraph, Workers: cfg.Workers})
	if err != nil {
		return nil, err
	}
	logger.Debug("Core created.", "types", len(reg.Declared()), "rules", len(rules), "workers", core.Pool().Size())

	return &App{
		outW:      outW,
		logger:    logger,
		config:    cfg,
		handlers:  handlers,
		build:     build,
		types:     reg,
		subjects:  subjects,
		scheduler: scheduler.New(core, build.RootSubjectTypes()),
	}, nil
}

// Scheduler returns the application's scheduler. This is primarily for testing.
func (a *App) Scheduler() *scheduler.Scheduler {
	return a.scheduler
}

// Handlers returns the application's task handler registry.
func (a *App) Handlers() *tasks.Registry {
	return a.handlers
}
