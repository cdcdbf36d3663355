// Package registry binds the concrete connectors/handlers implementations
// onto an executor.Registry at process startup — the one place cmd/
// flowengine decides which external collaborators a running engine has,
// keeping internal/engine itself free of any concrete handler import.
package registry

import (
	"context"

	"github.com/lyzr/flowcore/common/config"
	"github.com/lyzr/flowcore/connectors/handlers"
	"github.com/lyzr/flowcore/internal/engine/executor"
	"github.com/lyzr/flowcore/internal/engine/graph"
)

// RegisterDefaults registers the engine's built-in handler set: transform,
// code, http, and (when an API key is configured) llm. input/output nodes
// are pass-through and registered with a no-op handler.
func RegisterDefaults(reg *executor.Registry, cfg *config.Config) {
	reg.Register(graph.NodeTransform, handlers.NewTransformHandler())
	reg.Register(graph.NodeCode, handlers.NewCodeHandler())
	reg.Register(graph.NodeHTTP, handlers.NewHTTPHandler(nil))
	reg.Register(graph.NodeInput, passthroughHandler{})
	reg.Register(graph.NodeOutput, passthroughHandler{})
	reg.Register(graph.NodeIntegration, passthroughHandler{})

	if cfg.Engine.OpenAIAPIKey != "" {
		reg.Register(graph.NodeLLM, handlers.NewLLMHandler(cfg.Engine.OpenAIAPIKey))
	}
}

// passthroughHandler copies its resolved config straight through as the
// node's output — the trivial handler input/output/integration nodes use
// until a process wires a real integration in their place.
type passthroughHandler struct{}

func (passthroughHandler) Handle(ctx context.Context, nodeConfig map[string]interface{}, execView map[string]interface{}, meta executor.Metadata) executor.Result {
	return executor.Result{Output: nodeConfig}
}
