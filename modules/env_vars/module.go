package env_vars

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/vk/rulegrid/internal/tasks"
	"github.com/vk/rulegrid/internal/types"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/gocty"
)

// Module implements the tasks.Module interface for this package.
type Module struct{}

// Output defines the data structure returned by the handler.
type Output struct {
	All map[string]string `cty:"all"`
}

var outputType = cty.Object(map[string]cty.Type{"all": cty.Map(cty.String)})

// EnvVars returns the process environment. If the subject carries a string
// "prefix" attribute, only variables starting with it are returned.
func EnvVars(_ context.Context, subject types.Value, _ []types.Value) (cty.Value, error) {
	prefix := ""
	if ty := subject.Data.Type(); ty.IsObjectType() && ty.HasAttribute("prefix") {
		p := subject.Data.GetAttr("prefix")
		if !p.IsNull() && p.Type() == cty.String {
			prefix = p.AsString()
		}
	}

	out := Output{All: make(map[string]string)}
	for _, e := range os.Environ() {
		pair := strings.SplitN(e, "=", 2)
		if len(pair) == 2 && strings.HasPrefix(pair[0], prefix) {
			out.All[pair[0]] = pair[1]
		}
	}

	v, err := gocty.ToCtyValue(out, outputType)
	if err != nil {
		return cty.NilVal, fmt.Errorf("failed to encode environment: %w", err)
	}
	return v, nil
}

// Register registers the handler with the engine.
func (m *Module) Register(r *tasks.Registry) {
	r.Register("env_vars", EnvVars)
}
