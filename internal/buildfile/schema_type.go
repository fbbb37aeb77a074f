package buildfile

import (
	"context"
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/vk/rulegrid/internal/ctxlog"
	"github.com/zclconf/go-cty/cty"
)

// typeExprToCtyType converts a type expression such as `string`,
// `list(number)` or `object({ name = string, tags = optional(list(string)) })`
// into its cty.Type. Missing optional attributes convert to null.
func typeExprToCtyType(ctx context.Context, expr hcl.Expression) (cty.Type, error) {
	switch v := expr.(type) {
	case *hclsyntax.ScopeTraversalExpr:
		if len(v.Traversal) != 1 {
			return cty.NilType, fmt.Errorf("invalid type keyword: traversal path is not a single identifier")
		}
		switch name := v.Traversal.RootName(); name {
		case "string":
			return cty.String, nil
		case "number":
			return cty.Number, nil
		case "bool":
			return cty.Bool, nil
		case "any":
			return cty.DynamicPseudoType, nil
		default:
			return cty.NilType, fmt.Errorf("unknown primitive type %q", name)
		}

	case *hclsyntax.FunctionCallExpr:
		switch v.Name {
		case "object":
			return objectTypeExpr(ctx, v)
		case "optional":
			return cty.NilType, fmt.Errorf("optional() is only allowed on object attributes")
		}
		if len(v.Args) != 1 {
			return cty.NilType, fmt.Errorf("type constructor %s() requires exactly one argument, got %d", v.Name, len(v.Args))
		}
		elem, err := typeExprToCtyType(ctx, v.Args[0])
		if err != nil {
			return cty.NilType, err
		}
		switch v.Name {
		case "list":
			return cty.List(elem), nil
		case "map":
			return cty.Map(elem), nil
		case "set":
			if elem == cty.DynamicPseudoType {
				return cty.NilType, fmt.Errorf("set types cannot contain type 'any'")
			}
			return cty.Set(elem), nil
		default:
			return cty.NilType, fmt.Errorf("unknown type constructor function %q", v.Name)
		}

	default:
		return cty.NilType, fmt.Errorf("unsupported expression for type definition: %T", expr)
	}
}

func objectTypeExpr(ctx context.Context, call *hclsyntax.FunctionCallExpr) (cty.Type, error) {
	if len(call.Args) != 1 {
		return cty.NilType, fmt.Errorf("the object() type constructor requires exactly one argument, got %d", len(call.Args))
	}
	objExpr, ok := call.Args[0].(*hclsyntax.ObjectConsExpr)
	if !ok {
		return cty.NilType, fmt.Errorf("the argument to object() must be an object literal like { key = type, ... }, got %T", call.Args[0])
	}

	attrs := make(map[string]cty.Type, len(objExpr.Items))
	var optional []string
	for _, item := range objExpr.Items {
		key := objectKey(item.KeyExpr)
		if key == "" {
			return cty.NilType, fmt.Errorf("invalid key in object type definition: keys must be simple identifiers or quoted strings")
		}
		valueExpr := item.ValueExpr
		if call, ok := valueExpr.(*hclsyntax.FunctionCallExpr); ok && call.Name == "optional" {
			if len(call.Args) != 1 {
				return cty.NilType, fmt.Errorf("in object attribute '%s': optional() requires exactly one argument, got %d", key, len(call.Args))
			}
			valueExpr = call.Args[0]
			optional = append(optional, key)
		}
		t, err := typeExprToCtyType(ctx, valueExpr)
		if err != nil {
			return cty.NilType, fmt.Errorf("in object attribute '%s': %w", key, err)
		}
		attrs[key] = t
	}
	ctxlog.FromContext(ctx).Debug("Parsed object type.", "attributes", len(attrs), "optional", len(optional))
	if len(optional) > 0 {
		return cty.ObjectWithOptionalAttrs(attrs, optional), nil
	}
	return cty.Object(attrs), nil
}

// objectKey returns the literal name of an object key, or "" when the key
// is not a plain identifier or a quoted string.
func objectKey(expr hclsyntax.Expression) string {
	wrapped, ok := expr.(*hclsyntax.ObjectConsKeyExpr)
	if !ok {
		return ""
	}
	switch k := wrapped.Wrapped.(type) {
	case *hclsyntax.ScopeTraversalExpr:
		if len(k.Traversal) == 1 {
			return k.Traversal.RootName()
		}
	case *hclsyntax.TemplateExpr:
		if len(k.Parts) == 1 {
			if lit, ok := k.Parts[0].(*hclsyntax.LiteralValueExpr); ok && lit.Val.Type() == cty.String {
				return lit.Val.AsString()
			}
		}
	}
	return ""
}
