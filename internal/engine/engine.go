// Package engine wires the graph builder, handler registry, condition
// evaluator, wait coordinator, event bus, and scheduler into the single
// entry point spec.md §6 describes: runExecution / runExecutionStreaming.
package engine

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/lyzr/flowcore/internal/engine/condition"
	"github.com/lyzr/flowcore/internal/engine/eventbus"
	"github.com/lyzr/flowcore/internal/engine/executor"
	"github.com/lyzr/flowcore/internal/engine/graph"
	"github.com/lyzr/flowcore/internal/engine/scheduler"
	"github.com/lyzr/flowcore/internal/engine/wait"
)

// Engine bundles the engine-core singletons a process needs to run
// workflows: one Registry of node handlers, one condition evaluator, one
// wait coordinator, one event bus. All four are safe for concurrent use
// across many simultaneous executions.
type Engine struct {
	Registry  *executor.Registry
	Condition *condition.Evaluator
	Wait      *wait.Coordinator
	Bus       *eventbus.Bus

	scheduler *scheduler.Scheduler
}

// New returns an Engine with fresh registry/evaluator/coordinator/bus
// instances. Callers register node handlers on Registry before running any
// workflow.
func New(logger scheduler.Logger) *Engine {
	e := &Engine{
		Registry:  executor.NewRegistry(),
		Condition: condition.NewEvaluator(),
		Wait:      wait.NewCoordinator(),
		Bus:       eventbus.NewBus(),
	}
	e.scheduler = scheduler.New(e.Registry, e.Condition, e.Wait, logger)
	return e
}

// RunOptions configures one execution. Zero values fall back to the
// engine's defaults (maxConcurrentNodes from the workflow definition, no
// workflow timeout, no checkpoint sink). Keepalive and terminal-flush
// timings are set on the engine's Bus, not per run.
type RunOptions struct {
	MaxConcurrentNodes int
	WorkflowTimeout    time.Duration
	Checkpoint         scheduler.CheckpointSink
}

// Compile validates a raw Definition into a BuiltWorkflow ready to execute.
func (e *Engine) Compile(def *graph.Definition) (*graph.BuiltWorkflow, error) {
	return graph.NewBuilder().Build(def)
}

// RunExecution runs w to completion and returns its merged final outputs.
// It does not publish to the event bus — use RunExecutionStreaming for
// callers that want live progress.
func (e *Engine) RunExecution(ctx context.Context, w *graph.BuiltWorkflow, inputs map[string]interface{}, opts RunOptions) (map[string]interface{}, error) {
	return e.run(ctx, uuid.NewString(), w, inputs, opts, false)
}

// RunExecutionStreaming runs w to completion while publishing lifecycle
// events to the engine's Bus under the given executionID, so a caller
// can eventbus.Bus.Subscribe(executionID) before or immediately after
// calling this.
func (e *Engine) RunExecutionStreaming(ctx context.Context, executionID string, w *graph.BuiltWorkflow, inputs map[string]interface{}, opts RunOptions) (map[string]interface{}, error) {
	return e.run(ctx, executionID, w, inputs, opts, true)
}

func (e *Engine) run(ctx context.Context, executionID string, w *graph.BuiltWorkflow, inputs map[string]interface{}, opts RunOptions, streaming bool) (map[string]interface{}, error) {
	schedOpts := scheduler.Options{
		MaxConcurrentNodes: opts.MaxConcurrentNodes,
		WorkflowTimeout:    opts.WorkflowTimeout,
		Checkpoint:         opts.Checkpoint,
	}
	if streaming {
		schedOpts.Bus = e.Bus
	}
	return e.scheduler.RunExecution(ctx, executionID, w, inputs, schedOpts)
}
