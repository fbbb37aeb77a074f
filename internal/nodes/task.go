package nodes

import (
	"context"
	"errors"
	"fmt"

	"github.com/vk/rulegrid/internal/ctxlog"
	"github.com/vk/rulegrid/internal/rulegraph"
	"github.com/vk/rulegrid/internal/selectors"
	"github.com/vk/rulegrid/internal/types"
	"github.com/zclconf/go-cty/cty"
)

// Task runs Rule for Subject once all of the rule's inputs are available.
type Task struct {
	Subject types.Key
	Rule    *rulegraph.Rule
}

func (n Task) ID() string {
	return nodeID("Task", n.Subject.ID(), n.Rule.Name)
}

func (n Task) Kind() string { return "Task" }

func (n Task) String() string {
	return fmt.Sprintf("Task(%s, %s)", n.Rule.Name, n.Subject)
}

func (n Task) Run(ctx context.Context, c Context) (types.Value, error) {
	deps := make([]NodeKey, len(n.Rule.Inputs))
	for i, in := range n.Rule.Inputs {
		edges, ok := c.FindEdges(n.Subject.Type(), in)
		if !ok {
			return types.Value{}, types.Noopf("no source of %s for %s", selectors.ProductOf(in), n.Subject)
		}
		deps[i] = ForSelector(n.Subject, in, edges)
	}

	inputs, err := collect(ctx, c, deps, func(i int) string {
		return fmt.Sprintf("rule %s input %d for %s", n.Rule.Name, i, n.Subject)
	})
	if err != nil {
		return types.Value{}, err
	}

	logger := ctxlog.FromContext(ctx)
	logger.Debug("Running task.", "rule", n.Rule.Name, "subject", n.Subject.String())
	out, err := c.RunTask(ctx, func(ctx context.Context) (cty.Value, error) {
		return n.Rule.Func(ctx, n.Subject.Value(), inputs)
	})
	if err != nil {
		var f *types.Failure
		if errors.As(err, &f) {
			return types.Value{}, f
		}
		return types.Value{}, types.Throwf("rule %s failed for %s: %v", n.Rule.Name, n.Subject, err)
	}

	v, err := c.Types().NewValue(n.Rule.Product, out)
	if err != nil {
		return types.Value{}, types.Throwf("rule %s returned a bad %s for %s: %v", n.Rule.Name, n.Rule.Product, n.Subject, err)
	}
	return v, nil
}
