package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/lyzr/flowcore/internal/engine/executor"
)

// HTTPHandler executes an http node: a config-described outbound HTTP
// request whose response body is returned as the node's output. The
// engine's retry classifier, not this handler, decides whether a failed
// call is retried — this handler only needs to surface status/category
// information an executor.HandlerError can carry.
type HTTPHandler struct {
	client *http.Client
}

// NewHTTPHandler returns an HTTPHandler using a client with a sane default
// timeout; pass a pre-configured client for custom TLS/proxy needs.
func NewHTTPHandler(client *http.Client) *HTTPHandler {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &HTTPHandler{client: client}
}

// Handle implements executor.Handler. Config fields: url (string, required),
// method (string, default GET), headers (map[string]interface{}), body
// (any, JSON-encoded if present).
func (h *HTTPHandler) Handle(ctx context.Context, nodeConfig map[string]interface{}, execView map[string]interface{}, meta executor.Metadata) executor.Result {
	url, _ := nodeConfig["url"].(string)
	if url == "" {
		return executor.Result{Err: fmt.Errorf("http node %s: missing url", meta.NodeID)}
	}
	method, _ := nodeConfig["method"].(string)
	if method == "" {
		method = http.MethodGet
	}

	var bodyReader io.Reader
	if body, ok := nodeConfig["body"]; ok {
		payload, err := json.Marshal(body)
		if err != nil {
			return executor.Result{Err: fmt.Errorf("http node %s: encode body: %w", meta.NodeID, err)}
		}
		bodyReader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return executor.Result{Err: fmt.Errorf("http node %s: build request: %w", meta.NodeID, err)}
	}
	if bodyReader != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if headers, ok := nodeConfig["headers"].(map[string]interface{}); ok {
		for k, v := range headers {
			if s, ok := v.(string); ok {
				req.Header.Set(k, s)
			}
		}
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return executor.Result{Err: &executor.HandlerError{Category: "timeout", Message: err.Error(), Cause: err}}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return executor.Result{Err: fmt.Errorf("http node %s: read body: %w", meta.NodeID, err)}
	}

	if resp.StatusCode >= 400 {
		return executor.Result{Err: &executor.HandlerError{
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("http node %s: status %d: %s", meta.NodeID, resp.StatusCode, string(raw)),
		}}
	}

	var parsed interface{}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		parsed = string(raw)
	}

	return executor.Result{Output: map[string]interface{}{
		"status": resp.StatusCode,
		"body":   parsed,
	}}
}
