package http_request

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/vk/rulegrid/internal/ctxlog"
	"github.com/vk/rulegrid/internal/tasks"
	"github.com/vk/rulegrid/internal/types"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/gocty"
)

// Module implements the tasks.Module interface for this package. Client is
// used for every request; nil means a client with a 30s timeout.
type Module struct {
	Client *http.Client
}

// Input defines the subject attributes the handler reads.
type Input struct {
	URL    string `cty:"url"`
	Method string `cty:"method"`
}

// decodeInput reads url and the optional method from an object subject.
func decodeInput(v cty.Value) (Input, error) {
	ty := v.Type()
	if !ty.IsObjectType() || !ty.HasAttribute("url") {
		return Input{}, fmt.Errorf("subject must be an object with a url attribute, got %s", ty.FriendlyName())
	}
	method := cty.StringVal(http.MethodGet)
	if ty.HasAttribute("method") && !v.GetAttr("method").IsNull() {
		method = v.GetAttr("method")
	}
	obj := cty.ObjectVal(map[string]cty.Value{"url": v.GetAttr("url"), "method": method})
	var in Input
	if err := gocty.FromCtyValue(obj, &in); err != nil {
		return Input{}, fmt.Errorf("invalid request subject: %w", err)
	}
	return in, nil
}

// Handler performs the HTTP request described by the subject and returns
// its status code and body.
func (m *Module) Handler(ctx context.Context, subject types.Value, _ []types.Value) (cty.Value, error) {
	in, err := decodeInput(subject.Data)
	if err != nil {
		return cty.NilVal, err
	}
	logger := ctxlog.FromContext(ctx)
	logger.Info("Making HTTP request.", "method", in.Method, "url", in.URL)

	req, err := http.NewRequestWithContext(ctx, in.Method, in.URL, nil)
	if err != nil {
		return cty.NilVal, fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := m.client().Do(req)
	if err != nil {
		return cty.NilVal, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	logger.Info("Received HTTP response.", "status", resp.Status)
	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return cty.NilVal, fmt.Errorf("failed to read response body: %w", err)
	}

	return cty.ObjectVal(map[string]cty.Value{
		"status_code": cty.NumberIntVal(int64(resp.StatusCode)),
		"body":        cty.StringVal(string(bodyBytes)),
	}), nil
}

func (m *Module) client() *http.Client {
	if m.Client != nil {
		return m.Client
	}
	return &http.Client{Timeout: 30 * time.Second}
}

// Register registers the handler with the engine.
func (m *Module) Register(r *tasks.Registry) {
	r.Register("http_request", m.Handler)
}
