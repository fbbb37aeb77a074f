package buildfile

import (
	"fmt"
	"math/big"
	"slices"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/hashicorp/hcl/v2/hclwrite"
	"github.com/zclconf/go-cty/cty"
)

// Variables an expression rule may reference.
const (
	varSubject = "subject"
	varInputs  = "inputs"
)

// traversalKey renders a traversal as it would be written, e.g.
// subject.deps[0].name.
func traversalKey(t hcl.Traversal) string {
	return string(hclwrite.TokensForTraversal(t).Bytes())
}

// checkExpression rejects rule expressions that could never evaluate: a
// reference to anything but subject and inputs, a literal index past the
// rule's inputs, or a call to an unknown function.
func checkExpression(expr hcl.Expression, inputCount int) error {
	for _, t := range expr.Variables() {
		switch t.RootName() {
		case varSubject:
		case varInputs:
			if i, ok := literalIndex(t); ok && (i < 0 || i >= inputCount) {
				return fmt.Errorf("%s: %s is out of range for a rule with %d inputs", t.SourceRange(), traversalKey(t), inputCount)
			}
		default:
			return fmt.Errorf("%s: unknown variable %q, expressions may only use %s and %s",
				t.SourceRange(), traversalKey(t), varSubject, varInputs)
		}
	}

	syntaxExpr, ok := expr.(hclsyntax.Expression)
	if !ok {
		return nil
	}
	called := make(map[string]struct{})
	walkForFunctions(syntaxExpr, called)
	names := make([]string, 0, len(called))
	for name := range called {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		if _, ok := functions[name]; !ok {
			return fmt.Errorf("%s: call to unknown function %q", expr.Range(), name)
		}
	}
	return nil
}

// literalIndex returns the index of inputs[i] when i is a number literal.
func literalIndex(t hcl.Traversal) (int, bool) {
	if len(t) < 2 {
		return 0, false
	}
	idx, ok := t[1].(hcl.TraverseIndex)
	if !ok || idx.Key.Type() != cty.Number || !idx.Key.IsKnown() || idx.Key.IsNull() {
		return 0, false
	}
	bf := idx.Key.AsBigFloat()
	if !bf.IsInt() {
		return 0, false
	}
	i, acc := bf.Int64()
	if acc != big.Exact {
		return 0, false
	}
	return int(i), true
}

// walkForFunctions recursively walks the syntax tree collecting the names
// of called functions.
func walkForFunctions(expr hclsyntax.Expression, functions map[string]struct{}) {
	if expr == nil {
		return
	}
	switch e := expr.(type) {
	case *hclsyntax.FunctionCallExpr:
		functions[e.Name] = struct{}{}
		for _, arg := range e.Args {
			walkForFunctions(arg, functions)
		}
	case *hclsyntax.BinaryOpExpr:
		walkForFunctions(e.LHS, functions)
		walkForFunctions(e.RHS, functions)
	case *hclsyntax.ConditionalExpr:
		walkForFunctions(e.Condition, functions)
		walkForFunctions(e.TrueResult, functions)
		walkForFunctions(e.FalseResult, functions)
	case *hclsyntax.UnaryOpExpr:
		walkForFunctions(e.Val, functions)
	case *hclsyntax.TemplateExpr:
		for _, part := range e.Parts {
			walkForFunctions(part, functions)
		}
	case *hclsyntax.TemplateWrapExpr:
		walkForFunctions(e.Wrapped, functions)
	case *hclsyntax.TupleConsExpr:
		for _, item := range e.Exprs {
			walkForFunctions(item, functions)
		}
	case *hclsyntax.ObjectConsExpr:
		for _, item := range e.Items {
			walkForFunctions(item.KeyExpr, functions)
			walkForFunctions(item.ValueExpr, functions)
		}
	case *hclsyntax.ObjectConsKeyExpr:
		walkForFunctions(e.Wrapped, functions)
	case *hclsyntax.ForExpr:
		walkForFunctions(e.CollExpr, functions)
		walkForFunctions(e.KeyExpr, functions)
		walkForFunctions(e.ValExpr, functions)
		walkForFunctions(e.CondExpr, functions)
	case *hclsyntax.IndexExpr:
		walkForFunctions(e.Collection, functions)
		walkForFunctions(e.Key, functions)
	case *hclsyntax.RelativeTraversalExpr:
		walkForFunctions(e.Source, functions)
	case *hclsyntax.SplatExpr:
		walkForFunctions(e.Source, functions)
		walkForFunctions(e.Each, functions)
	case *hclsyntax.ParenthesesExpr:
		walkForFunctions(e.Expression, functions)
	}
}
