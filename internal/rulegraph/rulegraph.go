package rulegraph

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/vk/rulegrid/internal/selectors"
	"github.com/vk/rulegrid/internal/types"
)

type query struct {
	subject  types.TypeID
	selector string
}

type answer struct {
	edges *Edges
	ok    bool
}

// RuleGraph resolves selectors against a fixed set of rules.
type RuleGraph struct {
	rules []*Rule

	mu    sync.Mutex
	cache map[query]answer
}

// New builds a rule graph. Rule names must be unique and every rule needs a
// product and a body.
func New(rules ...*Rule) (*RuleGraph, error) {
	seen := make(map[string]bool, len(rules))
	for _, r := range rules {
		switch {
		case r == nil:
			return nil, errors.New("nil rule")
		case r.Name == "":
			return nil, fmt.Errorf("rule producing %s has no name", r.Product)
		case seen[r.Name]:
			return nil, fmt.Errorf("duplicate rule %q", r.Name)
		case r.Product == "":
			return nil, fmt.Errorf("rule %q has no product", r.Name)
		case r.Func == nil:
			return nil, fmt.Errorf("rule %q has no body", r.Name)
		}
		seen[r.Name] = true
	}
	return &RuleGraph{
		rules: slices.Clone(rules),
		cache: make(map[query]answer),
	}, nil
}

// Rules returns the rules in declaration order.
func (g *RuleGraph) Rules() []*Rule {
	return slices.Clone(g.rules)
}

// FindRootEdges returns the edges satisfying sel for subjects of type
// subjectType, or false if no path exists. Safe for concurrent use.
func (g *RuleGraph) FindRootEdges(subjectType types.TypeID, sel selectors.Selector) (*Edges, bool) {
	q := query{subject: subjectType, selector: sel.String()}

	g.mu.Lock()
	defer g.mu.Unlock()
	if a, ok := g.cache[q]; ok {
		return a.edges, a.ok
	}
	edges, ok := g.resolve(subjectType, sel, &resolution{pending: make(map[query]pending)})
	g.cache[q] = answer{edges: edges, ok: ok}
	return edges, ok
}

// pending is a query still being resolved on the current path. fanouts is
// the number of dependency fan-outs the path had crossed when it started.
type pending struct {
	edges   *Edges
	fanouts int
}

type resolution struct {
	pending map[query]pending
	fanouts int
}

// resolve searches for a satisfying path.
//
// A query met again while it is still being resolved is a rule cycle. When
// a dependency fan-out lies between the two, the inner subject is an element
// of the outer one and the cycle is structural recursion: it is assumed
// satisfiable and gets the outer edges, which are filled in once resolution
// finishes. A cycle on the same subject can never terminate and is treated
// as unsatisfiable.
func (g *RuleGraph) resolve(subjectType types.TypeID, sel selectors.Selector, res *resolution) (*Edges, bool) {
	q := query{subject: subjectType, selector: sel.String()}
	if p, ok := res.pending[q]; ok {
		if res.fanouts > p.fanouts {
			return p.edges, true
		}
		return nil, false
	}
	placeholder := &Edges{}
	res.pending[q] = pending{edges: placeholder, fanouts: res.fanouts}
	defer delete(res.pending, q)

	edges, ok := g.resolveQuery(subjectType, sel, res)
	if !ok {
		return nil, false
	}
	*placeholder = *edges
	return placeholder, true
}

func (g *RuleGraph) resolveQuery(subjectType types.TypeID, sel selectors.Selector, res *resolution) (*Edges, bool) {
	switch s := sel.(type) {
	case selectors.Select:
		var candidates []Entry
		if s.Product.SatisfiedBy(subjectType) {
			candidates = append(candidates, SubjectIsProduct{Type: subjectType})
		}
		for _, r := range g.rules {
			if !s.Product.SatisfiedBy(r.Product) {
				continue
			}
			satisfied := true
			for _, in := range r.Inputs {
				if _, ok := g.resolve(subjectType, in, res); !ok {
					satisfied = false
					break
				}
			}
			if satisfied {
				candidates = append(candidates, TaskEntry{Rule: r})
			}
		}
		if len(candidates) == 0 {
			return nil, false
		}
		return newEdges(subjectType, s, candidates), true

	case selectors.SelectDependencies:
		if len(s.FieldTypes) == 0 {
			return nil, false
		}
		dep, ok := g.resolve(subjectType, selectors.NewSelect(s.DepProduct), res)
		if !ok {
			return nil, false
		}
		elements, ok := g.resolveElements(s, res)
		if !ok {
			return nil, false
		}
		return newDependencyEdges(subjectType, s, dep, elements), true

	default:
		panic(fmt.Sprintf("rulegraph: unknown selector %T", sel))
	}
}

func (g *RuleGraph) resolveElements(s selectors.SelectDependencies, res *resolution) (map[types.TypeID]*Edges, bool) {
	res.fanouts++
	defer func() { res.fanouts-- }()

	elements := make(map[types.TypeID]*Edges, len(s.FieldTypes))
	for _, ft := range s.FieldTypes {
		el, ok := g.resolve(ft, selectors.NewSelect(s.Product), res)
		if !ok {
			return nil, false
		}
		elements[ft] = el
	}
	return elements, true
}

// Validate checks that every product selected by a rule input can come
// from somewhere: a rule, a root subject type, or a type that appears as a
// dependency field type. All problems are reported together.
func (g *RuleGraph) Validate(rootSubjectTypes []types.TypeID) error {
	available := make(map[types.TypeID]bool)
	for _, t := range rootSubjectTypes {
		available[t] = true
	}
	for _, r := range g.rules {
		available[r.Product] = true
		for _, in := range r.Inputs {
			if sd, ok := in.(selectors.SelectDependencies); ok {
				for _, ft := range sd.FieldTypes {
					available[ft] = true
				}
			}
		}
	}

	satisfiable := func(c types.TypeConstraint) bool {
		for _, t := range c.Types() {
			if available[t] {
				return true
			}
		}
		return false
	}

	var problems []string
	for _, r := range g.rules {
		var ruleErrs []string
		for _, in := range r.Inputs {
			products := []types.TypeConstraint{selectors.ProductOf(in)}
			if sd, ok := in.(selectors.SelectDependencies); ok {
				products = append(products, sd.DepProduct)
			}
			for _, p := range products {
				if !satisfiable(p) {
					ruleErrs = append(ruleErrs, fmt.Sprintf("no rule produces %s and it is not a root or dependency subject type", p))
				}
			}
		}
		if len(ruleErrs) > 0 {
			problems = append(problems, r.String()+"\n    "+strings.Join(ruleErrs, "\n    "))
		}
	}
	if len(problems) > 0 {
		return fmt.Errorf("found %d rules with errors:\n  %s", len(problems), strings.Join(problems, "\n  "))
	}
	return nil
}
