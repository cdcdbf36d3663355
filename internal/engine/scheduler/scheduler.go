// Package scheduler drains an execution's ready set under a bounded worker
// pool, dispatches to node handlers, resolves conditional/loop branch
// decisions, detects deadlock, and owns cancellation — the single logical
// scheduler per execution spec.md §5 calls for. Dispatch concurrency is
// grounded on the quarry pack's fan-out Operator (semaphore channel +
// WaitGroup); branch/loop determination is grounded on the teacher's
// operators/control_flow.go ControlFlowRouter.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/lyzr/flowcore/common/errs"
	"github.com/lyzr/flowcore/internal/engine/condition"
	"github.com/lyzr/flowcore/internal/engine/contextstore"
	"github.com/lyzr/flowcore/internal/engine/eventbus"
	"github.com/lyzr/flowcore/internal/engine/execqueue"
	"github.com/lyzr/flowcore/internal/engine/executor"
	"github.com/lyzr/flowcore/internal/engine/graph"
	"github.com/lyzr/flowcore/internal/engine/wait"
)

// Logger is the small interface engine components log through, so tests
// can inject a *testing.T-backed logger the way the teacher's coordinator
// accepts an sdk.Logger.
type Logger interface {
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
	Debug(msg string, args ...interface{})
}

// CheckpointSink is invoked after every terminal node transition, the one
// named persistence hook spec.md §6 carves out for external durability.
type CheckpointSink interface {
	Checkpoint(executionID string, snapshot *contextstore.Snapshot, summary execqueue.Summary)
}

// Options configures one Run call.
type Options struct {
	MaxConcurrentNodes int
	WorkflowTimeout    time.Duration
	RetryBaseDelay     time.Duration
	MaxAttempts        int
	Checkpoint         CheckpointSink
	Bus                *eventbus.Bus
}

// Scheduler executes BuiltWorkflow runs. Stateless across runs —
// all per-execution state lives in a run invocation's local variables — so
// one Scheduler instance safely serves concurrent executions of different
// (or the same) workflow.
type Scheduler struct {
	registry  *executor.Registry
	condEval  *condition.Evaluator
	waitCoord *wait.Coordinator
	logger    Logger
}

// New returns a Scheduler wired to the given handler registry, condition
// evaluator, and wait coordinator.
func New(registry *executor.Registry, condEval *condition.Evaluator, waitCoord *wait.Coordinator, logger Logger) *Scheduler {
	return &Scheduler{registry: registry, condEval: condEval, waitCoord: waitCoord, logger: logger}
}

type nodeOutcome struct {
	nodeID      string
	output      interface{}
	err         error
	liveHandles map[graph.HandleType]bool
	// variables are workflow-variable writes folded into the snapshot
	// alongside this node's output — the loop controller uses this to
	// persist its iteration counter and current-item binding so the next
	// pass reads the incremented value instead of recomputing iteration 1.
	variables map[string]interface{}
	// loopBack signals that this node was a loop end-sentinel whose
	// completion should reset its loop body for another iteration.
	loopBack *graph.LoopContext
}

// Run executes workflow from its trigger node against inputs, returning the
// merged output document of every declared output node, or an error
// wrapping one of common/errs's sentinel kinds.
func (s *Scheduler) Run(ctx context.Context, w *graph.BuiltWorkflow, inputs map[string]interface{}, opts Options) (map[string]interface{}, error) {
	executionID := uuid.NewString()
	return s.RunExecution(ctx, executionID, w, inputs, opts)
}

// RunExecution is Run with a caller-supplied execution ID, used when the ID
// must be known before the run starts (e.g. returned to an HTTP caller
// before the workflow completes so it can subscribe to the event stream).
func (s *Scheduler) RunExecution(ctx context.Context, executionID string, w *graph.BuiltWorkflow, inputs map[string]interface{}, opts Options) (map[string]interface{}, error) {
	if opts.MaxConcurrentNodes <= 0 {
		opts.MaxConcurrentNodes = w.MaxConcurrentNodes
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if opts.RetryBaseDelay <= 0 {
		opts.RetryBaseDelay = 250 * time.Millisecond
	}

	if opts.WorkflowTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.WorkflowTimeout)
		defer cancel()
	}

	qs := execqueue.NewState(w)
	snap := contextstore.New(inputs)

	sem := make(chan struct{}, opts.MaxConcurrentNodes)
	results := make(chan nodeOutcome, opts.MaxConcurrentNodes*2+4)
	executing := 0

	emit := func(ev eventbus.Event) {
		if opts.Bus == nil {
			return
		}
		ev.ExecutionID = executionID
		ev.Timestamp = time.Now().UnixMilli()
		opts.Bus.Publish(ev)
	}

	dispatchReady := func() {
		for _, nodeID := range qs.ReadyNodes() {
			if executing >= opts.MaxConcurrentNodes {
				break
			}
			node := w.Nodes[nodeID]
			qs.MarkExecuting(nodeID)
			executing++
			emit(eventbus.Event{Type: eventbus.EventNodeStarted, NodeID: nodeID})

			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
			}
			go func(n *graph.Node, dispatchSnap *contextstore.Snapshot) {
				defer func() { <-sem }()
				results <- s.execNode(ctx, executionID, w, n, dispatchSnap, opts)
			}(node, snap)
		}
	}

	checkpoint := func() {
		if opts.Checkpoint != nil {
			opts.Checkpoint.Checkpoint(executionID, snap, qs.ExecutionSummary())
		}
	}

	dispatchReady()

	for !qs.IsComplete() {
		if executing == 0 {
			if qs.IsDeadlocked() {
				emit(eventbus.Event{Type: eventbus.EventExecutionFailed, Data: "deadlock"})
				return nil, fmt.Errorf("%w: execution %s", errs.ErrDeadlock, executionID)
			}
			if len(qs.ReadyNodes()) == 0 {
				break
			}
		}

		select {
		case <-ctx.Done():
			s.waitCoord.CancelAll(executionID)
			emit(eventbus.Event{Type: eventbus.EventExecutionFailed, Data: ctx.Err().Error()})
			if ctx.Err() == context.DeadlineExceeded {
				return nil, fmt.Errorf("%w: execution %s", errs.ErrTimeout, executionID)
			}
			return nil, fmt.Errorf("%w: execution %s", errs.ErrCancelled, executionID)

		case out := <-results:
			executing--
			snap = s.applyOutcome(w, qs, snap, out, emit)
			checkpoint()
			dispatchReady()
		}
	}

	final := snap.BuildFinalOutputs(w.OutputNodeIDs)
	emit(eventbus.Event{Type: eventbus.EventExecutionDone, Data: final})
	return final, nil
}

// applyOutcome folds one node's result into the queue state and context
// snapshot, handling the conditional/loop branch bookkeeping in addition to
// the plain completed/failed/skipped transitions.
func (s *Scheduler) applyOutcome(w *graph.BuiltWorkflow, qs *execqueue.State, snap *contextstore.Snapshot, out nodeOutcome, emit func(eventbus.Event)) *contextstore.Snapshot {
	if out.err != nil {
		node := w.Nodes[out.nodeID]
		if node != nil && node.ErrorPolicy == graph.ErrorPolicyContinue {
			// Absorb the failure: the node completes carrying an error
			// payload instead of cascading failure to its dependents, per
			// DESIGN.md's resolution of errorPolicy:continue.
			errOutput := map[string]interface{}{"error": out.err.Error()}
			next := snap.WithNodeOutput(out.nodeID, errOutput)
			qs.MarkCompleted(out.nodeID, nil)
			emit(eventbus.Event{Type: eventbus.EventNodeCompleted, NodeID: out.nodeID, Data: errOutput})
			return next
		}
		qs.MarkFailed(out.nodeID)
		emit(eventbus.Event{Type: eventbus.EventNodeFailed, NodeID: out.nodeID, Data: out.err.Error()})
		return snap
	}

	next := snap.WithNodeOutput(out.nodeID, out.output)
	for name, value := range out.variables {
		next = next.WithVariable(name, value)
	}
	qs.MarkCompleted(out.nodeID, out.liveHandles)
	emit(eventbus.Event{Type: eventbus.EventNodeCompleted, NodeID: out.nodeID, Data: out.output})

	if out.loopBack != nil {
		qs.ResetForIteration(out.loopBack)
	}
	return next
}
