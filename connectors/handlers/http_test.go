package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lyzr/flowcore/internal/engine/executor"
)

func TestHTTPHandler_SuccessfulGETReturnsParsedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	h := NewHTTPHandler(nil)
	res := h.Handle(context.Background(), map[string]interface{}{"url": srv.URL}, nil, executor.Metadata{NodeID: "n1"})

	require.NoError(t, res.Err)
	out, ok := res.Output.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, 200, out["status"])
}

func TestHTTPHandler_MissingURLErrors(t *testing.T) {
	h := NewHTTPHandler(nil)
	res := h.Handle(context.Background(), map[string]interface{}{}, nil, executor.Metadata{NodeID: "n1"})
	assert.Error(t, res.Err)
}

func TestHTTPHandler_ServerErrorBecomesRetryableHandlerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("unavailable"))
	}))
	defer srv.Close()

	h := NewHTTPHandler(nil)
	res := h.Handle(context.Background(), map[string]interface{}{"url": srv.URL}, nil, executor.Metadata{NodeID: "n1"})

	require.Error(t, res.Err)
	he, ok := res.Err.(*executor.HandlerError)
	require.True(t, ok)
	assert.Equal(t, 503, he.StatusCode)
	assert.True(t, executor.IsRetryable(res.Err))
}

func TestHTTPHandler_PostsJSONBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"received":true}`))
	}))
	defer srv.Close()

	h := NewHTTPHandler(nil)
	res := h.Handle(context.Background(), map[string]interface{}{
		"url":    srv.URL,
		"method": "POST",
		"body":   map[string]interface{}{"a": 1},
	}, nil, executor.Metadata{NodeID: "n1"})

	require.NoError(t, res.Err)
}
