// Package rulegraph is the static rule resolver. Given a subject type and a
// selector it answers which execution edges satisfy the request, or that
// none do. Answers depend only on (subject type, selector) and the fixed set
// of rules, so they are computed once and cached.
package rulegraph

import (
	"context"
	"fmt"
	"strings"

	"github.com/vk/rulegrid/internal/selectors"
	"github.com/vk/rulegrid/internal/types"
	"github.com/zclconf/go-cty/cty"
)

// TaskFunc is the body of a rule. It receives the subject and the values of
// the rule's inputs, in declaration order, and returns data that will be
// converted to the rule's product type.
type TaskFunc func(ctx context.Context, subject types.Value, inputs []types.Value) (cty.Value, error)

// Rule produces Product for any subject for which all Inputs can be
// satisfied.
type Rule struct {
	Name    string
	Product types.TypeID
	Inputs  []selectors.Selector
	Func    TaskFunc
}

func (r *Rule) String() string {
	inputs := make([]string, len(r.Inputs))
	for i, in := range r.Inputs {
		inputs[i] = in.String()
	}
	return fmt.Sprintf("%s(%s) -> %s", r.Name, strings.Join(inputs, ", "), r.Product)
}

// Entry is one way of satisfying a selection. It is either SubjectIsProduct
// or TaskEntry.
type Entry interface {
	fmt.Stringer
	isEntry()
}

// SubjectIsProduct is satisfied by the subject itself.
type SubjectIsProduct struct {
	Type types.TypeID
}

func (SubjectIsProduct) isEntry() {}

func (e SubjectIsProduct) String() string { return "SubjectIsProduct(" + string(e.Type) + ")" }

// TaskEntry is satisfied by running a rule.
type TaskEntry struct {
	Rule *Rule
}

func (TaskEntry) isEntry() {}

func (e TaskEntry) String() string { return "Task(" + e.Rule.Name + ")" }

// Edges is the resolver's answer for one (subject type, selector) pair. It
// is immutable once returned.
type Edges struct {
	key        string
	candidates []Entry
	// dep and elements are set for SelectDependencies: dep holds the edges
	// selecting the dependency product and elements, for each field type,
	// the edges that satisfy the element product.
	dep      *Edges
	elements map[types.TypeID]*Edges
}

// Key is a canonical identity for the edges, stable across identical
// resolutions.
func (e *Edges) Key() string { return e.key }

// Candidates returns the entries able to produce the product, in rule
// declaration order. For a fan-out these are the candidates of the
// dependency product.
func (e *Edges) Candidates() []Entry {
	src := e.candidates
	if e.dep != nil {
		src = e.dep.candidates
	}
	out := make([]Entry, len(src))
	copy(out, src)
	return out
}

// ElementEdges returns the edges for a dependency element of type t.
func (e *Edges) ElementEdges(t types.TypeID) (*Edges, bool) {
	el, ok := e.elements[t]
	return el, ok
}

func (e *Edges) String() string { return e.key }

func newEdges(subjectType types.TypeID, sel selectors.Select, candidates []Entry) *Edges {
	var sb strings.Builder
	sb.WriteString(string(subjectType))
	sb.WriteString("|")
	sb.WriteString(sel.String())
	sb.WriteString("|")
	for i, c := range candidates {
		if i > 0 {
			sb.WriteString(",")
		}
		sb.WriteString(c.String())
	}
	return &Edges{key: sb.String(), candidates: candidates}
}

// newDependencyEdges keys fan-out edges by query alone: dep may still be
// under resolution when they are built.
func newDependencyEdges(subjectType types.TypeID, sel selectors.SelectDependencies, dep *Edges, elements map[types.TypeID]*Edges) *Edges {
	return &Edges{
		key:      string(subjectType) + "|" + sel.String(),
		dep:      dep,
		elements: elements,
	}
}
