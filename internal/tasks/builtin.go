package tasks

import (
	"context"
	"errors"

	"github.com/vk/rulegrid/internal/types"
	"github.com/zclconf/go-cty/cty"
)

func registerBuiltins(r *Registry) {
	r.Register("identity", Identity)
	r.Register("first", First)
	r.Register("collect", Collect)
}

// Identity returns the subject's data.
func Identity(_ context.Context, subject types.Value, _ []types.Value) (cty.Value, error) {
	return subject.Data, nil
}

// First returns the data of the first input.
func First(_ context.Context, _ types.Value, inputs []types.Value) (cty.Value, error) {
	if len(inputs) == 0 {
		return cty.NilVal, errors.New("first needs at least one input")
	}
	return inputs[0].Data, nil
}

// Collect returns the data of all inputs as a tuple, in input order.
func Collect(_ context.Context, _ types.Value, inputs []types.Value) (cty.Value, error) {
	if len(inputs) == 0 {
		return cty.EmptyTupleVal, nil
	}
	vals := make([]cty.Value, len(inputs))
	for i, in := range inputs {
		vals[i] = in.Data
	}
	return cty.TupleVal(vals), nil
}
