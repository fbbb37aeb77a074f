// Package tasks maps handler names used in rule declarations to Go task
// bodies.
package tasks

import (
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/vk/rulegrid/internal/rulegraph"
)

// Module is implemented by packages that contribute task handlers.
type Module interface {
	Register(r *Registry)
}

// Registry holds the task handlers available to rules.
type Registry struct {
	mu    sync.RWMutex
	funcs map[string]rulegraph.TaskFunc
}

// New creates a registry holding the builtin handlers and those of modules.
func New(modules ...Module) *Registry {
	r := &Registry{funcs: make(map[string]rulegraph.TaskFunc)}
	registerBuiltins(r)
	for _, m := range modules {
		m.Register(r)
	}
	return r
}

// Register adds a handler. Registering a name twice is a programming error
// and panics.
func (r *Registry) Register(name string, fn rulegraph.TaskFunc) {
	if name == "" || fn == nil {
		panic("task handler needs a name and a function")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.funcs[name]; exists {
		panic(fmt.Sprintf("task handler with name '%s' already registered", name))
	}
	slog.Debug("Registering task handler.", "name", name)
	r.funcs[name] = fn
}

// Lookup returns the handler registered under name.
func (r *Registry) Lookup(name string) (rulegraph.TaskFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.funcs[name]
	return fn, ok
}

// Names returns the registered handler names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.funcs))
	for name := range r.funcs {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
