// Package handlers provides concrete node handler implementations for the
// node types spec.md's non-goals name as external collaborators: http,
// llm, transform, and code. Each satisfies executor.Handler and is
// registered onto an executor.Registry by the hosting process (cmd/
// flowengine), never imported by internal/engine itself.
package handlers

import (
	"context"
	"fmt"

	"github.com/expr-lang/expr"

	"github.com/lyzr/flowcore/internal/engine/executor"
)

// TransformHandler computes a node's output object by evaluating an
// expr-lang expression against the execution context view — the engine's
// one built-in data-shaping node type, distinct from the CEL condition
// language used for branch/loop decisions.
type TransformHandler struct{}

// NewTransformHandler returns a TransformHandler.
func NewTransformHandler() *TransformHandler { return &TransformHandler{} }

// Handle implements executor.Handler. Config must carry an "expression"
// string; it's compiled fresh per call since transform nodes are typically
// invoked once per execution (loop bodies aside) and expr's Compile cost is
// small relative to a node boundary.
func (h *TransformHandler) Handle(ctx context.Context, nodeConfig map[string]interface{}, execView map[string]interface{}, meta executor.Metadata) executor.Result {
	exprStr, _ := nodeConfig["expression"].(string)
	if exprStr == "" {
		return executor.Result{Err: fmt.Errorf("transform node %s: missing expression", meta.NodeID)}
	}

	env := map[string]interface{}{
		"ctx":    execView,
		"config": nodeConfig,
	}

	program, err := expr.Compile(exprStr, expr.Env(env))
	if err != nil {
		return executor.Result{Err: fmt.Errorf("transform node %s: compile: %w", meta.NodeID, err)}
	}

	out, err := expr.Run(program, env)
	if err != nil {
		return executor.Result{Err: fmt.Errorf("transform node %s: eval: %w", meta.NodeID, err)}
	}

	return executor.Result{Output: out}
}

// CodeHandler runs the same expr-lang evaluation as TransformHandler but
// under the "code" node type name, for workflows that want to distinguish
// "shape this data" (transform) from "run this logic" (code) nodes even
// though both reduce to the same expression-evaluation mechanism here.
type CodeHandler struct {
	transform *TransformHandler
}

// NewCodeHandler returns a CodeHandler.
func NewCodeHandler() *CodeHandler { return &CodeHandler{transform: NewTransformHandler()} }

// Handle implements executor.Handler.
func (h *CodeHandler) Handle(ctx context.Context, nodeConfig map[string]interface{}, execView map[string]interface{}, meta executor.Metadata) executor.Result {
	return h.transform.Handle(ctx, nodeConfig, execView, meta)
}
