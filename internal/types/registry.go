package types

import (
	"fmt"
	"slices"
	"sync"

	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
)

// Registry maps declared types to their cty schemas. It is safe for
// concurrent use; in practice it is written during setup and only read
// during execution.
type Registry struct {
	mu      sync.RWMutex
	schemas map[TypeID]cty.Type
	order   []TypeID
}

// NewRegistry creates a registry with the builtin Collection type declared.
func NewRegistry() *Registry {
	r := &Registry{schemas: make(map[TypeID]cty.Type)}
	r.schemas[Collection] = cty.DynamicPseudoType
	r.order = append(r.order, Collection)
	return r
}

// Declare registers a type with its schema. Redeclaring a type with a
// different schema is an error.
func (r *Registry) Declare(id TypeID, schema cty.Type) error {
	if id == "" {
		return fmt.Errorf("type name must not be empty")
	}
	if schema == cty.NilType {
		return fmt.Errorf("type %s has no schema", id)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.schemas[id]; ok {
		if existing.Equals(schema) {
			return nil
		}
		return fmt.Errorf("type %s already declared with schema %s", id, existing.FriendlyName())
	}
	r.schemas[id] = schema
	r.order = append(r.order, id)
	return nil
}

// Schema returns the schema of a declared type.
func (r *Registry) Schema(id TypeID) (cty.Type, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.schemas[id]
	return s, ok
}

// Declared returns all declared types in declaration order.
func (r *Registry) Declared() []TypeID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.order)
}

// NewValue converts data to the schema of type id and wraps it.
func (r *Registry) NewValue(id TypeID, data cty.Value) (Value, error) {
	schema, ok := r.Schema(id)
	if !ok {
		return Value{}, fmt.Errorf("unknown type %s", id)
	}
	converted, err := convert.Convert(data, schema)
	if err != nil {
		return Value{}, fmt.Errorf("value does not conform to type %s (%s): %w", id, schema.FriendlyName(), err)
	}
	return Value{Type: id, Data: converted}, nil
}

// NewKey converts data to type id and returns the subject key for it.
func (r *Registry) NewKey(id TypeID, data cty.Value) (Key, error) {
	v, err := r.NewValue(id, data)
	if err != nil {
		return Key{}, err
	}
	return NewKey(v)
}

// TypeOf returns the first candidate whose schema the data conforms to
// exactly. When none does, it returns the first candidate the data converts
// to, so an element missing optional attributes still finds its type.
func (r *Registry) TypeOf(data cty.Value, candidates []TypeID) (TypeID, bool) {
	schemas := make([]cty.Type, len(candidates))
	for i, id := range candidates {
		schemas[i], _ = r.Schema(id)
	}
	for i, schema := range schemas {
		if schema == cty.NilType {
			continue
		}
		if errs := data.Type().TestConformance(schema); len(errs) == 0 {
			return candidates[i], true
		}
	}
	for i, schema := range schemas {
		if schema == cty.NilType {
			continue
		}
		if _, err := convert.Convert(data, schema); err == nil {
			return candidates[i], true
		}
	}
	return "", false
}
