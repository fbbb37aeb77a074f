package buildfile

import (
	"context"
	"fmt"
	"slices"

	"github.com/hashicorp/hcl/v2"
	"github.com/vk/rulegrid/internal/ctxlog"
	"github.com/vk/rulegrid/internal/rulegraph"
	"github.com/vk/rulegrid/internal/tasks"
	"github.com/vk/rulegrid/internal/types"
	"github.com/zclconf/go-cty/cty"
)

// DeclareTypes registers every declared type with reg.
func (c *Config) DeclareTypes(reg *types.Registry) error {
	for _, t := range c.Types {
		if err := reg.Declare(t.Name, t.Schema); err != nil {
			return err
		}
	}
	return nil
}

// CompileRules turns rule declarations into rules. Handler names are looked
// up in handlers; expression rules evaluate their expression against the
// subject and inputs of each run.
func (c *Config) CompileRules(handlers *tasks.Registry) ([]*rulegraph.Rule, error) {
	rules := make([]*rulegraph.Rule, 0, len(c.Rules))
	for _, decl := range c.Rules {
		rule := &rulegraph.Rule{
			Name:    decl.Name,
			Product: decl.Product,
			Inputs:  slices.Clone(decl.Inputs),
		}
		if decl.Handler != "" {
			fn, ok := handlers.Lookup(decl.Handler)
			if !ok {
				return nil, fmt.Errorf("%s: rule %s: unknown handler %q, known handlers are %v",
					decl.Range, decl.Name, decl.Handler, handlers.Names())
			}
			rule.Func = fn
		} else {
			rule.Func = expressionTask(decl.Expression)
		}
		rules = append(rules, rule)
	}
	return rules, nil
}

// expressionTask evaluates expr with `subject` bound to the subject's data
// and `inputs` bound to a tuple of the input data.
func expressionTask(expr hcl.Expression) rulegraph.TaskFunc {
	return func(ctx context.Context, subject types.Value, inputs []types.Value) (cty.Value, error) {
		in := cty.EmptyTupleVal
		if len(inputs) > 0 {
			vals := make([]cty.Value, len(inputs))
			for i, v := range inputs {
				vals[i] = v.Data
			}
			in = cty.TupleVal(vals)
		}
		v, diags := expr.Value(evalContext(map[string]cty.Value{
			"subject": subject.Data,
			"inputs":  in,
		}))
		if diags.HasErrors() {
			return cty.NilVal, diags
		}
		ctxlog.FromContext(ctx).Debug("Evaluated rule expression.", "subject_type", subject.Type)
		return v, nil
	}
}

// SubjectKeys converts every declared subject to a key using reg, which
// must already hold the declared types.
func (c *Config) SubjectKeys(reg *types.Registry) (map[string]types.Key, error) {
	keys := make(map[string]types.Key, len(c.Subjects))
	for _, s := range c.Subjects {
		k, err := reg.NewKey(s.Type, s.Value)
		if err != nil {
			return nil, fmt.Errorf("subject %s: %w", s.Name, err)
		}
		keys[s.Name] = k
	}
	return keys, nil
}

// RootSubjectTypes returns the distinct subject types of the roots, in
// root order.
func (c *Config) RootSubjectTypes() []types.TypeID {
	var out []types.TypeID
	for _, r := range c.Roots {
		s, ok := c.Subject(r.Subject)
		if !ok || slices.Contains(out, s.Type) {
			continue
		}
		out = append(out, s.Type)
	}
	return out
}
