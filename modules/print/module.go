package print

import (
	"context"

	"github.com/vk/rulegrid/internal/ctxlog"
	"github.com/vk/rulegrid/internal/tasks"
	"github.com/vk/rulegrid/internal/types"
	"github.com/zclconf/go-cty/cty"
)

// Module implements the tasks.Module interface for this package.
type Module struct{}

// Print logs the subject and its inputs, then passes the first input
// through. With no inputs the subject itself is passed through.
func Print(ctx context.Context, subject types.Value, inputs []types.Value) (cty.Value, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Info("Printing subject.", "subject", subject.GoString())
	for i, in := range inputs {
		logger.Info("Printing input.", "index", i, "value", in.GoString())
	}
	if len(inputs) == 0 {
		return subject.Data, nil
	}
	return inputs[0].Data, nil
}

// Register registers the handler with the engine.
func (m *Module) Register(r *tasks.Registry) {
	r.Register("print", Print)
}
