// Package handlers wires the engine.Engine into Echo HTTP handlers: submit
// a workflow definition plus inputs, subscribe to its event stream, deliver
// a signal to a waiting node, and a health check — grounded on the
// teacher's cmd/orchestrator/handlers/workflow.go request/response shape
// and cmd/fanout/server.go's HandleApproval/HandleWebSocket pair, adapted
// from WebSocket+username to SSE+executionId.
package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/lyzr/flowcore/internal/engine"
	"github.com/lyzr/flowcore/internal/engine/eventbus"
	"github.com/lyzr/flowcore/internal/engine/graph"
)

// Handlers holds the engine and per-request-derived dependencies Echo
// routes need.
type Handlers struct {
	Engine *engine.Engine
}

// New returns a Handlers bound to eng.
func New(eng *engine.Engine) *Handlers {
	return &Handlers{Engine: eng}
}

// TriggerRequest is the POST /executions request body.
type TriggerRequest struct {
	Workflow graph.Definition       `json:"workflow"`
	Inputs   map[string]interface{} `json:"inputs"`
	Stream   bool                   `json:"stream"`
}

// TriggerResponse is returned once the run finishes, carrying its outputs;
// when Stream was requested it is returned as soon as the run starts, and
// the caller should open GET /executions/:id/events before the run
// completes.
type TriggerResponse struct {
	ExecutionID string                 `json:"executionId"`
	Outputs     map[string]interface{} `json:"outputs,omitempty"`
	Error       string                 `json:"error,omitempty"`
}

// Trigger handles POST /executions: compiles the submitted workflow and
// runs it, streaming lifecycle events if requested.
func (h *Handlers) Trigger(c echo.Context) error {
	var req TriggerRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, TriggerResponse{Error: err.Error()})
	}

	built, err := h.Engine.Compile(&req.Workflow)
	if err != nil {
		return c.JSON(http.StatusUnprocessableEntity, TriggerResponse{Error: err.Error()})
	}

	executionID := uuid.NewString()

	if req.Stream {
		go func() {
			ctx := context.Background()
			h.Engine.RunExecutionStreaming(ctx, executionID, built, req.Inputs, engine.RunOptions{})
		}()
		return c.JSON(http.StatusAccepted, TriggerResponse{ExecutionID: executionID})
	}

	outputs, err := h.Engine.RunExecution(c.Request().Context(), built, req.Inputs, engine.RunOptions{})
	if err != nil {
		return c.JSON(http.StatusOK, TriggerResponse{ExecutionID: executionID, Error: err.Error()})
	}
	return c.JSON(http.StatusOK, TriggerResponse{ExecutionID: executionID, Outputs: outputs})
}

// Events handles GET /executions/:id/events, streaming Server-Sent Events
// for the named execution until it completes or the client disconnects.
func (h *Handlers) Events(c echo.Context) error {
	executionID := c.Param("id")

	w := c.Response()
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	sub := h.Engine.Bus.Subscribe(executionID)
	defer h.Engine.Bus.Unsubscribe(sub)

	return eventbus.StreamSSE(c.Request().Context(), w, w.Flush, h.Engine.Bus, sub)
}

// SignalRequest is the POST /executions/:id/nodes/:nodeId/signal body.
type SignalRequest struct {
	Payload interface{} `json:"payload"`
}

// Signal handles delivering a wait-node signal.
func (h *Handlers) Signal(c echo.Context) error {
	executionID := c.Param("id")
	nodeID := c.Param("nodeId")

	var req SignalRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}

	delivered, reason := h.Engine.Wait.DeliverSignal(executionID, nodeID, req.Payload)
	if !delivered {
		return c.JSON(http.StatusNotFound, map[string]string{"error": reason})
	}
	return c.JSON(http.StatusOK, map[string]bool{"delivered": true})
}

// Health handles GET /health.
func (h *Handlers) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "ok",
		"service": "flowengine",
		"time":    time.Now().UTC().Format(time.RFC3339),
	})
}
