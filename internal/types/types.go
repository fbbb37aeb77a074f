// Package types holds the leaf data shared by every layer of the engine:
// type identifiers, product constraints, field names, cty-backed values and
// the subject keys built from them.
//
// Nothing in this package computes anything on its own. Values are created
// through a Registry, which knows the cty schema of every declared type.
package types

import (
	"slices"
	"strings"
)

// TypeID names a declared type, e.g. "target" or "classes".
type TypeID string

// Collection is the type of the aggregated value produced by a dependency
// fan-out selection. It is always registered with a dynamic schema.
const Collection TypeID = "collection"

// Field names an attribute on an object-typed value.
type Field string

// TypeConstraint matches values whose type is one of a fixed set of TypeIDs.
// The zero value matches nothing. TypeConstraint is comparable, so it can
// be used as a map key.
type TypeConstraint struct {
	// key is the sorted, "|"-joined set of member types.
	key string
}

// Exactly returns a constraint satisfied by any of the given types.
func Exactly(ids ...TypeID) TypeConstraint {
	names := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || slices.Contains(names, string(id)) {
			continue
		}
		names = append(names, string(id))
	}
	slices.Sort(names)
	return TypeConstraint{key: strings.Join(names, "|")}
}

// Types returns the member types in sorted order.
func (c TypeConstraint) Types() []TypeID {
	if c.key == "" {
		return nil
	}
	parts := strings.Split(c.key, "|")
	ids := make([]TypeID, len(parts))
	for i, p := range parts {
		ids[i] = TypeID(p)
	}
	return ids
}

// SatisfiedBy reports whether a value of type id satisfies the constraint.
func (c TypeConstraint) SatisfiedBy(id TypeID) bool {
	return slices.Contains(c.Types(), id)
}

// IsZero reports whether the constraint has no member types.
func (c TypeConstraint) IsZero() bool {
	return c.key == ""
}

func (c TypeConstraint) String() string {
	return "Exactly(" + strings.ReplaceAll(c.key, "|", ", ") + ")"
}
