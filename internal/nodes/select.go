package nodes

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/vk/rulegrid/internal/rulegraph"
	"github.com/vk/rulegrid/internal/selectors"
	"github.com/vk/rulegrid/internal/types"
)

// Select produces Selector.Product for Subject using the candidates in
// Edges.
type Select struct {
	Subject  types.Key
	Selector selectors.Select
	Edges    *rulegraph.Edges
}

func (n Select) ID() string {
	return nodeID("Select", n.Subject.ID(), n.Selector.String(), n.Edges.Key())
}

func (n Select) Kind() string { return "Select" }

func (n Select) String() string {
	return fmt.Sprintf("Select(%s, %s)", n.Subject, n.Selector.Product)
}

// Run returns the subject itself when it already is the product. Otherwise
// every task candidate runs concurrently: a throw from any of them fails the
// node, no success is a Noop and differing successes are a conflict.
func (n Select) Run(ctx context.Context, c Context) (types.Value, error) {
	var tasks []NodeKey
	for _, cand := range n.Edges.Candidates() {
		switch e := cand.(type) {
		case rulegraph.SubjectIsProduct:
			return n.Subject.Value(), nil
		case rulegraph.TaskEntry:
			tasks = append(tasks, Task{Subject: n.Subject, Rule: e.Rule})
		}
	}

	results := make([]types.Result, len(tasks))
	var wg sync.WaitGroup
	for i, task := range tasks {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := c.Get(ctx, task)
			results[i] = types.Result{Value: v, Failure: types.AsFailure(err)}
		}()
	}
	wg.Wait()

	var values []types.Value
	var sources []string
	for i, r := range results {
		if r.Failure != nil {
			if r.Failure.Kind == types.Throw {
				return types.Value{}, r.Failure
			}
			continue
		}
		values = append(values, r.Value)
		sources = append(sources, tasks[i].(Task).Rule.Name)
	}

	switch {
	case len(values) == 0:
		return types.Value{}, types.Noopf("no source of %s for %s", n.Selector.Product, n.Subject)
	case len(values) > 1:
		for _, v := range values[1:] {
			if !v.Equal(values[0]) {
				return types.Value{}, types.Throwf("conflicting values for %s of %s from %s",
					n.Selector.Product, n.Subject, strings.Join(sources, ", "))
			}
		}
	}
	return values[0], nil
}

// ForSelector builds the node computing sel for subject.
func ForSelector(subject types.Key, sel selectors.Selector, edges *rulegraph.Edges) NodeKey {
	switch s := sel.(type) {
	case selectors.Select:
		return Select{Subject: subject, Selector: s, Edges: edges}
	case selectors.SelectDependencies:
		return SelectDependencies{Subject: subject, Selector: s, Edges: edges}
	default:
		panic(fmt.Sprintf("nodes: unknown selector %T", sel))
	}
}
