package nodes

import (
	"context"
	"fmt"

	"github.com/vk/rulegrid/internal/rulegraph"
	"github.com/vk/rulegrid/internal/selectors"
	"github.com/vk/rulegrid/internal/types"
	"github.com/zclconf/go-cty/cty"
)

// SelectDependencies selects DepProduct for Subject, reads the collection
// in Field and selects Product for every element of it. The result is a
// types.Collection tuple in field order.
type SelectDependencies struct {
	Subject  types.Key
	Selector selectors.SelectDependencies
	Edges    *rulegraph.Edges
}

func (n SelectDependencies) ID() string {
	return nodeID("SelectDependencies", n.Subject.ID(), n.Selector.String(), n.Edges.Key())
}

func (n SelectDependencies) Kind() string { return "SelectDependencies" }

func (n SelectDependencies) String() string {
	return fmt.Sprintf("SelectDependencies(%s, %s, %s.%s)",
		n.Subject, n.Selector.Product, n.Selector.DepProduct, n.Selector.Field)
}

func (n SelectDependencies) Run(ctx context.Context, c Context) (types.Value, error) {
	sel := n.Selector
	depSel := selectors.NewSelect(sel.DepProduct)
	depEdges, ok := c.FindEdges(n.Subject.Type(), depSel)
	if !ok {
		return types.Value{}, types.Noopf("no source of %s for %s", sel.DepProduct, n.Subject)
	}
	dep, err := c.Get(ctx, Select{Subject: n.Subject, Selector: depSel, Edges: depEdges})
	if err != nil {
		return types.Value{}, types.AsFailure(err).Wrap(fmt.Sprintf("%s of %s", sel.DepProduct, n.Subject))
	}

	elements, err := fieldElements(dep, sel.Field)
	if err != nil {
		return types.Value{}, err
	}

	product := selectors.NewSelect(sel.Product)
	deps := make([]NodeKey, len(elements))
	for i, elem := range elements {
		t, ok := c.Types().TypeOf(elem, sel.FieldTypes)
		if !ok {
			return types.Value{}, types.Throwf("element %d of %s.%s matches none of the field types %v",
				i, dep.Type, sel.Field, sel.FieldTypes)
		}
		v, err := c.Types().NewValue(t, elem)
		if err != nil {
			return types.Value{}, types.Throwf("element %d of %s.%s: %v", i, dep.Type, sel.Field, err)
		}
		key, err := c.Intern(v)
		if err != nil {
			return types.Value{}, types.Throwf("element %d of %s.%s: %v", i, dep.Type, sel.Field, err)
		}
		edges, ok := n.Edges.ElementEdges(t)
		if !ok {
			return types.Value{}, types.Noopf("no source of %s for %s", sel.Product, key)
		}
		deps[i] = Select{Subject: key, Selector: product, Edges: edges}
	}

	values, err := collect(ctx, c, deps, func(i int) string {
		return fmt.Sprintf("element %d of %s.%s", i, dep.Type, sel.Field)
	})
	if err != nil {
		return types.Value{}, err
	}
	if len(values) == 0 {
		return types.Value{Type: types.Collection, Data: cty.EmptyTupleVal}, nil
	}
	data := make([]cty.Value, len(values))
	for i, v := range values {
		data[i] = v.Data
	}
	return types.Value{Type: types.Collection, Data: cty.TupleVal(data)}, nil
}

// fieldElements returns the elements of the list, tuple or set held in
// field of v. A null field has no elements.
func fieldElements(v types.Value, field types.Field) ([]cty.Value, error) {
	ty := v.Data.Type()
	if !ty.IsObjectType() || !ty.HasAttribute(string(field)) {
		return nil, types.Throwf("%s has no field %s", v.Type, field)
	}
	coll := v.Data.GetAttr(string(field))
	if coll.IsNull() {
		return nil, nil
	}
	ct := coll.Type()
	if !ct.IsListType() && !ct.IsTupleType() && !ct.IsSetType() {
		return nil, types.Throwf("field %s of %s is %s, not a collection", field, v.Type, ct.FriendlyName())
	}
	if !coll.IsKnown() {
		return nil, types.Throwf("field %s of %s is not known", field, v.Type)
	}
	out := make([]cty.Value, 0, coll.LengthInt())
	for it := coll.ElementIterator(); it.Next(); {
		_, elem := it.Element()
		out = append(out, elem)
	}
	return out, nil
}
