package http_request

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/rulegrid/internal/types"
	"github.com/zclconf/go-cty/cty"
)

func TestHandler(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
		fmt.Fprintf(w, "%s %s", r.Method, r.URL.Path)
	}))
	t.Cleanup(srv.Close)

	m := &Module{Client: srv.Client()}
	subject := types.Value{Type: "endpoint", Data: cty.ObjectVal(map[string]cty.Value{
		"url":    cty.StringVal(srv.URL + "/health"),
		"method": cty.StringVal(http.MethodPost),
	})}
	v, err := m.Handler(context.Background(), subject, nil)
	require.NoError(t, err)
	assert.True(t, v.GetAttr("status_code").RawEquals(cty.NumberIntVal(http.StatusAccepted)))
	assert.Equal(t, "POST /health", v.GetAttr("body").AsString())

	subject.Data = cty.ObjectVal(map[string]cty.Value{"url": cty.StringVal(srv.URL + "/x")})
	v, err = m.Handler(context.Background(), subject, nil)
	require.NoError(t, err)
	assert.Equal(t, "GET /x", v.GetAttr("body").AsString(), "method defaults to GET")
}

func TestHandler_BadSubject(t *testing.T) {
	m := &Module{}
	_, err := m.Handler(context.Background(), types.Value{Type: "x", Data: cty.StringVal("nope")}, nil)
	assert.ErrorContains(t, err, "must be an object with a url attribute")
}
