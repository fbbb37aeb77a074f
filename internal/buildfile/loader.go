package buildfile

import (
	"context"
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/vk/rulegrid/internal/ctxlog"
	"github.com/vk/rulegrid/internal/selectors"
	"github.com/vk/rulegrid/internal/types"
	"github.com/zclconf/go-cty/cty"
)

// Config is the merged content of a set of build files. Declarations keep
// the order in which they were read; files are read in sorted path order.
type Config struct {
	Files    []string
	Types    []TypeDecl
	Rules    []RuleDecl
	Subjects []SubjectDecl
	Roots    []RootDecl
}

// TypeDecl declares a named type.
type TypeDecl struct {
	Name   types.TypeID
	Schema cty.Type
}

// RuleDecl declares a rule. Exactly one of Expression and Handler is set.
type RuleDecl struct {
	Name       string
	Product    types.TypeID
	Inputs     []selectors.Selector
	Expression hcl.Expression
	Handler    string
	Range      hcl.Range
}

// SubjectDecl declares a named subject with its data.
type SubjectDecl struct {
	Name  string
	Type  types.TypeID
	Value cty.Value
}

// RootDecl requests a product for a declared subject.
type RootDecl struct {
	Subject  string
	Selector selectors.Selector
}

// Load parses every .hcl file reachable from paths and merges their blocks
// into one Config. Names of types, rules and subjects must be unique across
// all files, and every root must name a declared subject.
func Load(ctx context.Context, paths ...string) (*Config, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Build file loader started.", "path_count", len(paths))

	files, err := findFiles(paths)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no %s files found in %v", fileExtension, paths)
	}
	logger.Debug("Discovered build files.", "count", len(files))

	cfg := &Config{Files: files}
	names := newNameSet()
	parser := hclparse.NewParser()

	for _, file := range files {
		hclFile, diags := parser.ParseHCLFile(file)
		if diags.HasErrors() {
			return nil, fmt.Errorf("failed to parse HCL file %s: %w", file, diags)
		}

		var root fileRoot
		if diags := gohcl.DecodeBody(hclFile.Body, nil, &root); diags.HasErrors() {
			return nil, fmt.Errorf("failed to decode HCL file %s: %w", file, diags)
		}

		for _, b := range root.Types {
			if err := names.claim("type", b.Name); err != nil {
				return nil, err
			}
			schema, err := typeExprToCtyType(ctx, b.Schema)
			if err != nil {
				return nil, fmt.Errorf("type %s: %w", b.Name, err)
			}
			cfg.Types = append(cfg.Types, TypeDecl{Name: types.TypeID(b.Name), Schema: schema})
		}
		for _, b := range root.Rules {
			if err := names.claim("rule", b.Name); err != nil {
				return nil, err
			}
			decl, err := translateRule(ctx, b)
			if err != nil {
				return nil, err
			}
			cfg.Rules = append(cfg.Rules, decl)
		}
		for _, b := range root.Subjects {
			if err := names.claim("subject", b.Name); err != nil {
				return nil, err
			}
			v, diags := b.Value.Value(evalContext(nil))
			if diags.HasErrors() {
				return nil, fmt.Errorf("subject %s: %w", b.Name, diags)
			}
			cfg.Subjects = append(cfg.Subjects, SubjectDecl{Name: b.Name, Type: types.TypeID(b.Type), Value: v})
		}
		for _, b := range root.Roots {
			sel, err := translateSelector(b.Product, b.DepProduct, b.Field, b.FieldTypes)
			if err != nil {
				return nil, fmt.Errorf("root for subject %s: %w", b.Subject, err)
			}
			cfg.Roots = append(cfg.Roots, RootDecl{Subject: b.Subject, Selector: sel})
		}
	}

	for _, r := range cfg.Roots {
		if _, ok := cfg.Subject(r.Subject); !ok {
			return nil, fmt.Errorf("root %s references unknown subject %q", r.Selector, r.Subject)
		}
	}

	logger.Debug("Build file loading complete.",
		"types", len(cfg.Types), "rules", len(cfg.Rules), "subjects", len(cfg.Subjects), "roots", len(cfg.Roots))
	return cfg, nil
}

// Subject looks up a subject declaration by name.
func (c *Config) Subject(name string) (SubjectDecl, bool) {
	for _, s := range c.Subjects {
		if s.Name == name {
			return s, true
		}
	}
	return SubjectDecl{}, false
}

func translateRule(ctx context.Context, b *ruleBlock) (RuleDecl, error) {
	decl := RuleDecl{Name: b.Name, Product: types.TypeID(b.Product), Range: b.DeclRange}

	hasExpr := isExprDefined(b.Expression)
	hasHandler := b.Handler != nil && *b.Handler != ""
	if hasExpr == hasHandler {
		return RuleDecl{}, fmt.Errorf("%s: rule %s must set exactly one of expression or handler", b.DeclRange, b.Name)
	}
	for i, in := range b.Inputs {
		sel, err := translateSelector(in.Product, in.DepProduct, in.Field, in.FieldTypes)
		if err != nil {
			return RuleDecl{}, fmt.Errorf("rule %s input %d: %w", b.Name, i, err)
		}
		decl.Inputs = append(decl.Inputs, sel)
	}

	if hasExpr {
		if err := checkExpression(b.Expression, len(decl.Inputs)); err != nil {
			return RuleDecl{}, fmt.Errorf("rule %s: %w", b.Name, err)
		}
		decl.Expression = b.Expression
	} else {
		decl.Handler = *b.Handler
	}
	ctxlog.FromContext(ctx).Debug("Translated rule.", "rule", b.Name, "inputs", len(decl.Inputs), "handler", decl.Handler)
	return decl, nil
}

// translateSelector builds a Select, or a SelectDependencies when
// depProduct is given.
func translateSelector(product string, depProduct, field *string, fieldTypes []string) (selectors.Selector, error) {
	if product == "" {
		return nil, fmt.Errorf("product must not be empty")
	}
	if depProduct == nil {
		if field != nil || len(fieldTypes) > 0 {
			return nil, fmt.Errorf("field and field_types require dep_product")
		}
		return selectors.NewSelect(types.Exactly(types.TypeID(product))), nil
	}
	if field == nil || *field == "" {
		return nil, fmt.Errorf("dep_product requires field")
	}
	if len(fieldTypes) == 0 {
		return nil, fmt.Errorf("dep_product requires at least one of field_types")
	}
	ids := make([]types.TypeID, len(fieldTypes))
	for i, ft := range fieldTypes {
		ids[i] = types.TypeID(ft)
	}
	return selectors.SelectDependencies{
		Product:    types.Exactly(types.TypeID(product)),
		DepProduct: types.Exactly(types.TypeID(*depProduct)),
		Field:      types.Field(*field),
		FieldTypes: ids,
	}, nil
}

// isExprDefined reports whether an optional expression was present in the
// source. Omitted attributes decode to a placeholder with a zero-width
// range.
func isExprDefined(expr hcl.Expression) bool {
	if expr == nil {
		return false
	}
	r := expr.Range()
	return r.End.Byte > r.Start.Byte
}

type nameSet map[string]struct{}

func newNameSet() nameSet { return make(nameSet) }

func (s nameSet) claim(kind, name string) error {
	key := kind + "/" + name
	if _, ok := s[key]; ok {
		return fmt.Errorf("%s %q is declared more than once", kind, name)
	}
	s[key] = struct{}{}
	return nil
}
