package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lyzr/flowcore/internal/engine/executor"
	"github.com/lyzr/flowcore/internal/engine/graph"
)

type nopLogger struct{}

func (nopLogger) Info(msg string, args ...interface{})  {}
func (nopLogger) Warn(msg string, args ...interface{})  {}
func (nopLogger) Error(msg string, args ...interface{}) {}
func (nopLogger) Debug(msg string, args ...interface{}) {}

func TestEngine_CompileAndRunExecution(t *testing.T) {
	e := New(nopLogger{})
	e.Registry.Register(graph.NodeInput, executor.HandlerFunc(func(ctx context.Context, cfg, view map[string]interface{}, meta executor.Metadata) executor.Result {
		return executor.Result{Output: map[string]interface{}{}}
	}))
	e.Registry.Register(graph.NodeOutput, executor.HandlerFunc(func(ctx context.Context, cfg, view map[string]interface{}, meta executor.Metadata) executor.Result {
		return executor.Result{Output: map[string]interface{}{"done": true}}
	}))

	w, err := e.Compile(&graph.Definition{
		EntryPoint:    "start",
		OutputNodeIDs: []string{"end"},
		Nodes: []graph.NodeDef{
			{ID: "start", Type: graph.NodeInput},
			{ID: "end", Type: graph.NodeOutput},
		},
		Edges: []graph.EdgeDef{
			{ID: "e1", Source: "start", Target: "end", HandleType: graph.HandleDefault},
		},
	})
	require.NoError(t, err)

	out, err := e.RunExecution(context.Background(), w, nil, RunOptions{MaxConcurrentNodes: 1})
	require.NoError(t, err)
	assert.Equal(t, true, out["done"])
}

func TestEngine_RunExecutionStreamingPublishesEvents(t *testing.T) {
	e := New(nopLogger{})
	e.Registry.Register(graph.NodeInput, executor.HandlerFunc(func(ctx context.Context, cfg, view map[string]interface{}, meta executor.Metadata) executor.Result {
		return executor.Result{Output: map[string]interface{}{}}
	}))

	w, err := e.Compile(&graph.Definition{
		EntryPoint:    "start",
		OutputNodeIDs: []string{"start"},
		Nodes: []graph.NodeDef{
			{ID: "start", Type: graph.NodeInput},
		},
	})
	require.NoError(t, err)

	sub := e.Bus.Subscribe("exec-stream-1")
	<-sub.Send()

	_, err = e.RunExecutionStreaming(context.Background(), "exec-stream-1", w, nil, RunOptions{MaxConcurrentNodes: 1})
	require.NoError(t, err)

	select {
	case <-sub.Send():
	default:
		t.Fatal("expected at least one event to have been published")
	}
}
