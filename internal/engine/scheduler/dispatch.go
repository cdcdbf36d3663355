package scheduler

import (
	"context"
	"strings"
	"time"

	"github.com/lyzr/flowcore/internal/engine/condition"
	"github.com/lyzr/flowcore/internal/engine/contextstore"
	"github.com/lyzr/flowcore/internal/engine/executor"
	"github.com/lyzr/flowcore/internal/engine/graph"
	"github.com/lyzr/flowcore/internal/engine/wait"
)

// execNode runs one node to completion (including handler retries) and
// returns the outcome to fold back into queue state and the context
// snapshot. Structural node types (conditional, loop, loop-start, loop-end,
// wait) are handled inline by the scheduler rather than dispatched through
// the handler registry, since their behavior is part of the engine's core
// control-flow semantics, not an external collaborator.
func (s *Scheduler) execNode(ctx context.Context, executionID string, w *graph.BuiltWorkflow, node *graph.Node, snap *contextstore.Snapshot, opts Options) nodeOutcome {
	switch node.Type {
	case graph.NodeConditional:
		return s.execConditional(node, snap)
	case graph.NodeLoop:
		return s.execLoopController(node, snap)
	case graph.NodeLoopStart:
		return nodeOutcome{nodeID: node.ID, output: map[string]interface{}{}}
	case graph.NodeLoopEnd:
		return s.execLoopEnd(node)
	case graph.NodeWait:
		return s.execWait(ctx, executionID, node, snap)
	default:
		return s.execHandler(ctx, executionID, node, snap, opts)
	}
}

func (s *Scheduler) execConditional(node *graph.Node, snap *contextstore.Snapshot) nodeOutcome {
	cond := parseCondition(node.Config["condition"])
	result, err := s.condEval.Evaluate(cond, nil, snap.View())
	if err != nil {
		return nodeOutcome{nodeID: node.ID, err: err}
	}

	handles := map[graph.HandleType]bool{graph.HandleFalse: true}
	if result {
		handles = map[graph.HandleType]bool{graph.HandleTrue: true}
	}
	return nodeOutcome{
		nodeID:      node.ID,
		output:      map[string]interface{}{"result": result},
		liveHandles: handles,
	}
}

func parseCondition(raw interface{}) condition.Condition {
	m, _ := raw.(map[string]interface{})
	cond := condition.Condition{Type: "cel"}
	if m == nil {
		return cond
	}
	if t, ok := m["type"].(string); ok && t != "" {
		cond.Type = t
	}
	if e, ok := m["expression"].(string); ok {
		cond.Expression = e
	}
	return cond
}

// execLoopController decides, for a ready loop node, whether to enter the
// loop body for another iteration or take the exit edge, grounded on the
// teacher's LoopOperator.HandleLoop iteration-counter-plus-condition
// decision. The incremented counter (and, for a foreach loop, the bound
// current item) is returned as variables so applyOutcome persists it into
// the snapshot before the body re-enters — without that, every pass would
// re-read an unset variable and recompute iteration 1, and MaxIterations
// would never trip.
func (s *Scheduler) execLoopController(node *graph.Node, snap *contextstore.Snapshot) nodeOutcome {
	lc := node.LoopContext
	if lc == nil {
		return nodeOutcome{nodeID: node.ID, err: errUnconfiguredLoop(node.ID)}
	}

	iteration := 0
	if v, ok := snap.Variable(lc.IterationVariable); ok {
		if n, ok := v.(int); ok {
			iteration = n
		} else if f, ok := v.(float64); ok {
			iteration = int(f)
		}
	}
	iteration++

	var collection []interface{}
	foreach := lc.IterateOver != ""
	if foreach {
		if raw, ok := snap.ResolvePath(lc.IterateOver); ok {
			collection, _ = raw.([]interface{})
		}
	}

	exit := iteration > lc.MaxIterations
	if foreach && iteration > len(collection) {
		exit = true
	}
	if !exit {
		if raw, ok := node.Config["exitCondition"]; ok {
			cond := parseCondition(raw)
			if cond.Expression != "" {
				result, err := s.condEval.Evaluate(cond, nil, snap.View())
				if err == nil && result {
					exit = true
				}
			}
		}
	}

	handles := map[graph.HandleType]bool{graph.HandleLoopBody: true}
	if exit {
		handles = map[graph.HandleType]bool{graph.HandleLoopExit: true}
	}

	variables := map[string]interface{}{lc.IterationVariable: iteration}
	if foreach && !exit {
		variables[itemVariableName(lc)] = collection[iteration-1]
	}

	return nodeOutcome{
		nodeID: node.ID,
		output: map[string]interface{}{
			"iteration": iteration,
			"exit":      exit,
		},
		liveHandles: handles,
		variables:   variables,
	}
}

// itemVariableName derives a foreach loop's per-iteration item-binding
// variable from its iteration-counter variable, mirroring the "_iteration"
// default suffix the builder assigns (builder.go) with a parallel "_item".
func itemVariableName(lc *graph.LoopContext) string {
	if strings.HasSuffix(lc.IterationVariable, "_iteration") {
		return strings.TrimSuffix(lc.IterationVariable, "_iteration") + "_item"
	}
	return lc.IterationVariable + "_item"
}

// execLoopEnd always signals loop-back: the loop controller node is the
// only place that decides to exit, so by the time execution reaches the
// end sentinel the body is meant to run again.
func (s *Scheduler) execLoopEnd(node *graph.Node) nodeOutcome {
	return nodeOutcome{
		nodeID:   node.ID,
		output:   map[string]interface{}{},
		loopBack: node.LoopContext,
	}
}

func (s *Scheduler) execWait(ctx context.Context, executionID string, node *graph.Node, snap *contextstore.Snapshot) nodeOutcome {
	cfg := snap.InterpolateConfig(node.Config)

	spec := wait.Spec{WaitType: "signal"}
	if t, ok := cfg["waitType"].(string); ok && t != "" {
		spec.WaitType = t
	}
	if ms, ok := cfg["timeoutMs"].(float64); ok {
		spec.TimeoutMs = int64(ms)
	}

	outcome := s.waitCoord.Await(ctx, executionID, node.ID, spec)

	output := map[string]interface{}{
		"delivered": outcome.Delivered,
		"timedOut":  outcome.TimedOut,
		"cancelled": outcome.Cancelled,
		"payload":   outcome.Payload,
	}
	if outcome.Cancelled {
		return nodeOutcome{nodeID: node.ID, output: output, err: errWaitCancelled(node.ID)}
	}
	return nodeOutcome{nodeID: node.ID, output: output}
}

func (s *Scheduler) execHandler(ctx context.Context, executionID string, node *graph.Node, snap *contextstore.Snapshot, opts Options) nodeOutcome {
	handler, err := s.registry.Lookup(node.Type)
	if err != nil {
		return nodeOutcome{nodeID: node.ID, err: err}
	}

	cfg := snap.InterpolateConfig(node.Config)
	view := snap.View()

	var lastErr error
	for attempt := 1; attempt <= opts.MaxAttempts; attempt++ {
		result := handler.Handle(ctx, cfg, view, executor.Metadata{
			ExecutionID: executionID,
			NodeID:      node.ID,
			Attempt:     attempt,
		})
		if result.Err == nil {
			return nodeOutcome{nodeID: node.ID, output: result.Output}
		}
		lastErr = result.Err
		if attempt == opts.MaxAttempts || !executor.IsRetryable(result.Err) {
			break
		}
		backoff := opts.RetryBaseDelay * time.Duration(1<<uint(attempt-1))
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return nodeOutcome{nodeID: node.ID, err: ctx.Err()}
		}
	}
	return nodeOutcome{nodeID: node.ID, err: lastErr}
}
