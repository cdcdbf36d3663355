package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lyzr/flowcore/internal/engine/condition"
	"github.com/lyzr/flowcore/internal/engine/executor"
	"github.com/lyzr/flowcore/internal/engine/graph"
	"github.com/lyzr/flowcore/internal/engine/wait"
)

type testLogger struct{ t *testing.T }

func (l testLogger) Info(msg string, args ...interface{})  {}
func (l testLogger) Warn(msg string, args ...interface{})  {}
func (l testLogger) Error(msg string, args ...interface{}) {}
func (l testLogger) Debug(msg string, args ...interface{}) {}

func newScheduler(reg *executor.Registry) *Scheduler {
	return New(reg, condition.NewEvaluator(), wait.NewCoordinator(), testLogger{})
}

func passthroughRegistry() *executor.Registry {
	reg := executor.NewRegistry()
	reg.Register(graph.NodeInput, executor.HandlerFunc(func(ctx context.Context, cfg, view map[string]interface{}, meta executor.Metadata) executor.Result {
		return executor.Result{Output: map[string]interface{}{}}
	}))
	reg.Register(graph.NodeOutput, executor.HandlerFunc(func(ctx context.Context, cfg, view map[string]interface{}, meta executor.Metadata) executor.Result {
		return executor.Result{Output: map[string]interface{}{}}
	}))
	return reg
}

func TestScheduler_LinearWorkflowCompletes(t *testing.T) {
	def := &graph.Definition{
		EntryPoint:    "start",
		OutputNodeIDs: []string{"end"},
		Nodes: []graph.NodeDef{
			{ID: "start", Type: graph.NodeInput},
			{ID: "double", Type: graph.NodeTransform},
			{ID: "end", Type: graph.NodeOutput},
		},
		Edges: []graph.EdgeDef{
			{ID: "e1", Source: "start", Target: "double", HandleType: graph.HandleDefault},
			{ID: "e2", Source: "double", Target: "end", HandleType: graph.HandleDefault},
		},
	}
	w, err := graph.NewBuilder().Build(def)
	require.NoError(t, err)

	reg := passthroughRegistry()
	reg.Register(graph.NodeTransform, executor.HandlerFunc(func(ctx context.Context, cfg, view map[string]interface{}, meta executor.Metadata) executor.Result {
		return executor.Result{Output: map[string]interface{}{"value": 84}}
	}))
	reg.Register(graph.NodeOutput, executor.HandlerFunc(func(ctx context.Context, cfg, view map[string]interface{}, meta executor.Metadata) executor.Result {
		return executor.Result{Output: view["double"]}
	}))

	s := newScheduler(reg)
	out, err := s.Run(context.Background(), w, map[string]interface{}{"value": 42}, Options{MaxConcurrentNodes: 2})
	require.NoError(t, err)
	assert.Equal(t, 84, out["value"])
}

func TestScheduler_ConditionalRoutesTrueBranch(t *testing.T) {
	def := &graph.Definition{
		EntryPoint:    "start",
		OutputNodeIDs: []string{"yes", "no"},
		Nodes: []graph.NodeDef{
			{ID: "start", Type: graph.NodeInput},
			{ID: "check", Type: graph.NodeConditional, Config: map[string]interface{}{
				"condition": map[string]interface{}{"expression": "output.ok == true"},
			}},
			{ID: "yes", Type: graph.NodeOutput},
			{ID: "no", Type: graph.NodeOutput},
		},
		Edges: []graph.EdgeDef{
			{ID: "e1", Source: "start", Target: "check", HandleType: graph.HandleDefault},
			{ID: "e2", Source: "check", Target: "yes", HandleType: graph.HandleTrue},
			{ID: "e3", Source: "check", Target: "no", HandleType: graph.HandleFalse},
		},
	}
	w, err := graph.NewBuilder().Build(def)
	require.NoError(t, err)

	reg := passthroughRegistry()
	s := newScheduler(reg)
	out, err := s.Run(context.Background(), w, map[string]interface{}{"ok": true}, Options{MaxConcurrentNodes: 2})
	require.NoError(t, err)
	assert.NotNil(t, out)
}

func TestScheduler_LoopRunsUntilMaxIterations(t *testing.T) {
	def := &graph.Definition{
		EntryPoint:    "start",
		OutputNodeIDs: []string{"done"},
		Nodes: []graph.NodeDef{
			{ID: "start", Type: graph.NodeInput},
			{
				ID: "loop1", Type: graph.NodeLoop,
				LoopMaxIterations:   3,
				LoopStartSentinelID: "ls",
				LoopEndSentinelID:   "le",
				LoopBodyNodes:       []string{"ls", "body", "le"},
			},
			{ID: "ls", Type: graph.NodeLoopStart},
			{ID: "body", Type: graph.NodeTransform},
			{ID: "le", Type: graph.NodeLoopEnd},
			{ID: "done", Type: graph.NodeOutput},
		},
		Edges: []graph.EdgeDef{
			{ID: "e1", Source: "start", Target: "loop1", HandleType: graph.HandleDefault},
			{ID: "e2", Source: "loop1", Target: "ls", HandleType: graph.HandleLoopBody},
			{ID: "e3", Source: "ls", Target: "body", HandleType: graph.HandleDefault},
			{ID: "e4", Source: "body", Target: "le", HandleType: graph.HandleDefault},
			{ID: "e5", Source: "le", Target: "loop1", HandleType: graph.HandleLoopBack},
			{ID: "e6", Source: "loop1", Target: "done", HandleType: graph.HandleLoopExit},
		},
	}
	w, err := graph.NewBuilder().Build(def)
	require.NoError(t, err)

	reg := passthroughRegistry()
	iterations := 0
	reg.Register(graph.NodeTransform, executor.HandlerFunc(func(ctx context.Context, cfg, view map[string]interface{}, meta executor.Metadata) executor.Result {
		iterations++
		return executor.Result{Output: map[string]interface{}{}}
	}))

	s := newScheduler(reg)
	_, err = s.Run(context.Background(), w, nil, Options{MaxConcurrentNodes: 1})
	require.NoError(t, err)
	assert.Equal(t, 3, iterations)
}

func TestScheduler_LoopIteratesOverCollection(t *testing.T) {
	def := &graph.Definition{
		EntryPoint:    "start",
		OutputNodeIDs: []string{"done"},
		Nodes: []graph.NodeDef{
			{ID: "start", Type: graph.NodeInput, Config: map[string]interface{}{}},
			{
				ID: "loop1", Type: graph.NodeLoop,
				LoopMaxIterations:   10,
				LoopIterateOver:     "inputs.items",
				LoopStartSentinelID: "ls",
				LoopEndSentinelID:   "le",
				LoopBodyNodes:       []string{"ls", "body", "le"},
			},
			{ID: "ls", Type: graph.NodeLoopStart},
			{ID: "body", Type: graph.NodeTransform},
			{ID: "le", Type: graph.NodeLoopEnd},
			{ID: "done", Type: graph.NodeOutput},
		},
		Edges: []graph.EdgeDef{
			{ID: "e1", Source: "start", Target: "loop1", HandleType: graph.HandleDefault},
			{ID: "e2", Source: "loop1", Target: "ls", HandleType: graph.HandleLoopBody},
			{ID: "e3", Source: "ls", Target: "body", HandleType: graph.HandleDefault},
			{ID: "e4", Source: "body", Target: "le", HandleType: graph.HandleDefault},
			{ID: "e5", Source: "le", Target: "loop1", HandleType: graph.HandleLoopBack},
			{ID: "e6", Source: "loop1", Target: "done", HandleType: graph.HandleLoopExit},
		},
	}
	w, err := graph.NewBuilder().Build(def)
	require.NoError(t, err)

	reg := passthroughRegistry()
	var seen []string
	reg.Register(graph.NodeTransform, executor.HandlerFunc(func(ctx context.Context, cfg, view map[string]interface{}, meta executor.Metadata) executor.Result {
		item, _ := view["loop1_item"].(string)
		seen = append(seen, item)
		return executor.Result{Output: map[string]interface{}{"processedItem": "processed-" + item}}
	}))

	s := newScheduler(reg)
	_, err = s.Run(context.Background(), w, map[string]interface{}{"items": []interface{}{"apple", "banana", "cherry"}}, Options{MaxConcurrentNodes: 1})
	require.NoError(t, err)
	assert.Equal(t, []string{"apple", "banana", "cherry"}, seen)
}

func TestScheduler_HandlerFailureCascadesToOutput(t *testing.T) {
	def := &graph.Definition{
		EntryPoint:    "start",
		OutputNodeIDs: []string{"end"},
		Nodes: []graph.NodeDef{
			{ID: "start", Type: graph.NodeInput},
			{ID: "step", Type: graph.NodeTransform},
			{ID: "end", Type: graph.NodeOutput},
		},
		Edges: []graph.EdgeDef{
			{ID: "e1", Source: "start", Target: "step", HandleType: graph.HandleDefault},
			{ID: "e2", Source: "step", Target: "end", HandleType: graph.HandleDefault},
		},
	}
	w, err := graph.NewBuilder().Build(def)
	require.NoError(t, err)

	reg := passthroughRegistry()
	reg.Register(graph.NodeTransform, executor.HandlerFunc(func(ctx context.Context, cfg, view map[string]interface{}, meta executor.Metadata) executor.Result {
		return executor.Result{Err: errors.New("boom")}
	}))

	s := newScheduler(reg)
	out, err := s.Run(context.Background(), w, nil, Options{MaxConcurrentNodes: 1, MaxAttempts: 1})
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestScheduler_ErrorPolicyContinueAbsorbsFailure(t *testing.T) {
	def := &graph.Definition{
		EntryPoint:    "start",
		OutputNodeIDs: []string{"step"},
		Nodes: []graph.NodeDef{
			{ID: "start", Type: graph.NodeInput},
			{ID: "step", Type: graph.NodeTransform, ErrorPolicy: graph.ErrorPolicyContinue},
		},
		Edges: []graph.EdgeDef{
			{ID: "e1", Source: "start", Target: "step", HandleType: graph.HandleDefault},
		},
	}
	w, err := graph.NewBuilder().Build(def)
	require.NoError(t, err)

	reg := passthroughRegistry()
	reg.Register(graph.NodeTransform, executor.HandlerFunc(func(ctx context.Context, cfg, view map[string]interface{}, meta executor.Metadata) executor.Result {
		return executor.Result{Err: errors.New("boom")}
	}))

	s := newScheduler(reg)
	out, err := s.Run(context.Background(), w, nil, Options{MaxConcurrentNodes: 1, MaxAttempts: 1})
	require.NoError(t, err)
	assert.Equal(t, "boom", out["error"])
}

func TestScheduler_WaitNodeResolvesOnSignal(t *testing.T) {
	def := &graph.Definition{
		EntryPoint:    "start",
		OutputNodeIDs: []string{"end"},
		Nodes: []graph.NodeDef{
			{ID: "start", Type: graph.NodeInput},
			{ID: "pause", Type: graph.NodeWait, Config: map[string]interface{}{"waitType": "signal"}},
			{ID: "end", Type: graph.NodeOutput},
		},
		Edges: []graph.EdgeDef{
			{ID: "e1", Source: "start", Target: "pause", HandleType: graph.HandleDefault},
			{ID: "e2", Source: "pause", Target: "end", HandleType: graph.HandleDefault},
		},
	}
	w, err := graph.NewBuilder().Build(def)
	require.NoError(t, err)

	reg := passthroughRegistry()
	waitCoord := wait.NewCoordinator()
	s := New(reg, condition.NewEvaluator(), waitCoord, testLogger{})

	go func() {
		for waitCoord.PendingCount() == 0 {
			time.Sleep(5 * time.Millisecond)
		}
		waitCoord.DeliverSignal("exec-1", "pause", map[string]interface{}{"approved": true})
	}()

	out, err := s.RunExecution(context.Background(), "exec-1", w, nil, Options{MaxConcurrentNodes: 1})
	require.NoError(t, err)
	assert.NotNil(t, out)
}

func TestScheduler_WorkflowTimeoutReturnsErrTimeout(t *testing.T) {
	def := &graph.Definition{
		EntryPoint:    "start",
		OutputNodeIDs: []string{"end"},
		Nodes: []graph.NodeDef{
			{ID: "start", Type: graph.NodeInput},
			{ID: "pause", Type: graph.NodeWait, Config: map[string]interface{}{"waitType": "signal"}},
			{ID: "end", Type: graph.NodeOutput},
		},
		Edges: []graph.EdgeDef{
			{ID: "e1", Source: "start", Target: "pause", HandleType: graph.HandleDefault},
			{ID: "e2", Source: "pause", Target: "end", HandleType: graph.HandleDefault},
		},
	}
	w, err := graph.NewBuilder().Build(def)
	require.NoError(t, err)

	reg := passthroughRegistry()
	s := newScheduler(reg)
	_, err = s.Run(context.Background(), w, nil, Options{MaxConcurrentNodes: 1, WorkflowTimeout: 20 * time.Millisecond})
	require.Error(t, err)
}
