// Package selectors describes what a computation wants, without saying how
// to get it. A Selector is pure data: resolving it to execution edges is the
// rule graph's job.
package selectors

import (
	"fmt"
	"strings"

	"github.com/vk/rulegrid/internal/types"
)

// Selector is a closed set of selection kinds: Select and
// SelectDependencies. Code dispatching on a Selector should use a type
// switch covering both.
type Selector interface {
	fmt.Stringer
	isSelector()
}

// Select requests a product directly for the subject at hand.
type Select struct {
	Product types.TypeConstraint
}

// NewSelect returns a Select for the given product.
func NewSelect(product types.TypeConstraint) Select {
	return Select{Product: product}
}

func (Select) isSelector() {}

func (s Select) String() string {
	return fmt.Sprintf("Select(%s)", s.Product)
}

// SelectDependencies requests DepProduct for the subject, reads Field from
// it and requests Product for every element of that field. Each element is
// typed by the first of FieldTypes it conforms to.
type SelectDependencies struct {
	Product    types.TypeConstraint
	DepProduct types.TypeConstraint
	Field      types.Field
	FieldTypes []types.TypeID
}

func (SelectDependencies) isSelector() {}

func (s SelectDependencies) String() string {
	names := make([]string, len(s.FieldTypes))
	for i, ft := range s.FieldTypes {
		names[i] = string(ft)
	}
	return fmt.Sprintf("SelectDependencies(%s, %s, field=%s, field_types=[%s])",
		s.Product, s.DepProduct, s.Field, strings.Join(names, ", "))
}

// ProductOf returns the product a selector ultimately yields.
func ProductOf(s Selector) types.TypeConstraint {
	switch sel := s.(type) {
	case Select:
		return sel.Product
	case SelectDependencies:
		return sel.Product
	default:
		panic(fmt.Sprintf("selectors: unknown selector %T", s))
	}
}
