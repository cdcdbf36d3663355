package handlers

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/lyzr/flowcore/internal/engine/executor"
)

func TestTransformHandler_EvaluatesExpression(t *testing.T) {
	h := NewTransformHandler()
	res := h.Handle(context.Background(), map[string]interface{}{
		"expression": "ctx.value + 1",
	}, map[string]interface{}{"value": 41}, executor.Metadata{NodeID: "n1"})

	assert.NoError(t, res.Err)
	assert.Equal(t, 42, res.Output)
}

func TestTransformHandler_MissingExpressionErrors(t *testing.T) {
	h := NewTransformHandler()
	res := h.Handle(context.Background(), map[string]interface{}{}, nil, executor.Metadata{NodeID: "n1"})
	assert.Error(t, res.Err)
}

func TestTransformHandler_CompileErrorSurfaced(t *testing.T) {
	h := NewTransformHandler()
	res := h.Handle(context.Background(), map[string]interface{}{
		"expression": "ctx. ===",
	}, map[string]interface{}{}, executor.Metadata{NodeID: "n1"})
	assert.Error(t, res.Err)
}

func TestCodeHandler_DelegatesToTransform(t *testing.T) {
	h := NewCodeHandler()
	res := h.Handle(context.Background(), map[string]interface{}{
		"expression": `"hello " + ctx.name`,
	}, map[string]interface{}{"name": "world"}, executor.Metadata{NodeID: "n1"})

	assert.NoError(t, res.Err)
	assert.Equal(t, "hello world", res.Output)
}
