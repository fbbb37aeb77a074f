package graph

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/vk/rulegrid/internal/types"
)

// walk returns the entries reachable from roots, roots first, in a stable
// breadth-first order. Callers hold g.mu.
func (g *Graph[C]) walk(roots []*entry[C]) []*entry[C] {
	var out []*entry[C]
	seen := make(map[EntryID]bool)
	queue := append([]*entry[C](nil), roots...)
	for len(queue) > 0 {
		e := queue[0]
		queue = queue[1:]
		if seen[e.id] {
			continue
		}
		seen[e.id] = true
		out = append(out, e)
		for _, dep := range g.deps[e.id] {
			queue = append(queue, g.entries[dep])
		}
	}
	return out
}

func (g *Graph[C]) lookup(nodes []Node[C]) []*entry[C] {
	var out []*entry[C]
	for _, n := range nodes {
		if e, ok := g.byID[n.ID()]; ok {
			out = append(out, e)
		}
	}
	return out
}

func fillColor[C any](e *entry[C]) string {
	switch {
	case !e.complete:
		return "lightyellow"
	case e.result.Failure == nil:
		return "palegreen"
	case e.result.Failure.Kind == types.Noop:
		return "lightgray"
	default:
		return "tomato"
	}
}

// Visualize writes a Graphviz digraph of every entry reachable from roots
// to path, replacing any existing file. Entries are colored by state.
func (g *Graph[C]) Visualize(roots []Node[C], path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create visualization file %s: %w", path, err)
	}
	w := bufio.NewWriter(f)

	g.mu.Lock()
	entries := g.walk(g.lookup(roots))
	fmt.Fprintln(w, "digraph plans {")
	fmt.Fprintln(w, "  concentrate=true;")
	fmt.Fprintln(w, "  rankdir=TB;")
	fmt.Fprintln(w, "  node [style=filled];")
	for _, e := range entries {
		fmt.Fprintf(w, "  %q [fillcolor=%s];\n", e.node.String(), fillColor(e))
	}
	for _, e := range entries {
		for _, dep := range g.deps[e.id] {
			fmt.Fprintf(w, "  %q -> %q;\n", e.node.String(), g.entries[dep].node.String())
		}
	}
	fmt.Fprintln(w, "}")
	g.mu.Unlock()

	if err := w.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("failed to write visualization file %s: %w", path, err)
	}
	return f.Close()
}

// Trace appends, for a failed root, the tree of failed entries beneath it
// to path. Leaves carry the failure that caused them. Successful, pending
// or unknown roots write nothing.
func (g *Graph[C]) Trace(root Node[C], path string) error {
	g.mu.Lock()
	var sb strings.Builder
	if e, ok := g.byID[root.ID()]; ok && e.complete && e.result.Failure != nil {
		g.traceEntry(&sb, e, 0, make(map[EntryID]bool))
		sb.WriteString("\n")
	}
	g.mu.Unlock()

	if sb.Len() == 0 {
		return nil
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open trace file %s: %w", path, err)
	}
	if _, err := f.WriteString(sb.String()); err != nil {
		f.Close()
		return fmt.Errorf("failed to write trace file %s: %w", path, err)
	}
	return f.Close()
}

// traceEntry writes e and recurses into its failed dependencies. Callers
// hold g.mu.
func (g *Graph[C]) traceEntry(sb *strings.Builder, e *entry[C], depth int, seen map[EntryID]bool) {
	indent := strings.Repeat("  ", depth)
	sb.WriteString(indent)
	sb.WriteString(e.node.String())
	sb.WriteString("\n")
	seen[e.id] = true

	failedDeps := 0
	for _, dep := range g.deps[e.id] {
		d := g.entries[dep]
		if seen[dep] || !d.complete || d.result.Failure == nil {
			continue
		}
		failedDeps++
		g.traceEntry(sb, d, depth+1, seen)
	}
	if failedDeps == 0 {
		fmt.Fprintf(sb, "%s  %s: %s\n", indent, e.result.Failure.Kind, e.result.Failure.Message)
	}
}
