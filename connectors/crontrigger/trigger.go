// Package crontrigger adds a scheduled trigger on top of the engine's
// single manual entry point (spec.md §6's runExecution): a cron-driven
// caller that starts a new execution of a fixed workflow on a schedule,
// using robfig/cron/v3 (pulled from the pack's patali-yantra go.mod), the
// idiomatic Go cron library rather than a hand-rolled ticker loop.
package crontrigger

import (
	"context"

	"github.com/robfig/cron/v3"

	"github.com/lyzr/flowcore/internal/engine/graph"
)

// Logger is the small logging interface this package logs through.
type Logger interface {
	Info(msg string, args ...interface{})
	Error(msg string, args ...interface{})
}

// RunFunc matches engine.Engine.RunExecution's shape, narrowed so this
// package doesn't need to import the engine package directly.
type RunFunc func(ctx context.Context, w *graph.BuiltWorkflow, inputs map[string]interface{}) (map[string]interface{}, error)

// Trigger runs a fixed workflow on a cron schedule.
type Trigger struct {
	cron     *cron.Cron
	run      RunFunc
	workflow *graph.BuiltWorkflow
	inputs   map[string]interface{}
	logger   Logger
}

// New returns a Trigger that calls run(workflow, inputs) on every firing of
// schedule (standard 5-field cron syntax). Start the returned Trigger to
// begin firing.
func New(schedule string, workflow *graph.BuiltWorkflow, inputs map[string]interface{}, run RunFunc, logger Logger) (*Trigger, error) {
	c := cron.New()
	t := &Trigger{cron: c, run: run, workflow: workflow, inputs: inputs, logger: logger}

	_, err := c.AddFunc(schedule, t.fire)
	if err != nil {
		return nil, err
	}
	return t, nil
}

func (t *Trigger) fire() {
	ctx := context.Background()
	outputs, err := t.run(ctx, t.workflow, t.inputs)
	if err != nil {
		t.logger.Error("crontrigger: scheduled run failed", "error", err)
		return
	}
	t.logger.Info("crontrigger: scheduled run completed", "outputs", outputs)
}

// Start begins firing the schedule in a background goroutine managed by
// the underlying cron.Cron.
func (t *Trigger) Start() {
	t.cron.Start()
}

// Stop halts future firings and returns a context that is done once any
// in-flight fire has finished; Stop itself does not wait.
func (t *Trigger) Stop() context.Context {
	return t.cron.Stop()
}
