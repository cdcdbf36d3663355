// Package errs defines the design-level error kinds from spec.md §7 as
// sentinel values so callers can classify failures with errors.Is, the same
// way the teacher wraps and classifies errors with fmt.Errorf("...: %w").
package errs

import "errors"

var (
	// ErrInvalidGraph marks a graph that failed builder validation. Fatal to
	// the execution — never raised once a BuiltWorkflow exists.
	ErrInvalidGraph = errors.New("invalid graph")

	// ErrHandlerFailed marks a node handler that returned failure. The
	// scheduler cascades this downstream unless the node's ErrorPolicy is
	// "continue".
	ErrHandlerFailed = errors.New("handler failed")

	// ErrDeadlock marks executing=∅ ∧ ready=∅ ∧ pending≠∅.
	ErrDeadlock = errors.New("execution deadlocked")

	// ErrTimeout marks a workflow-level timeout; transitions to the
	// cancellation path.
	ErrTimeout = errors.New("workflow timed out")

	// ErrCancelled marks an externally requested cancellation. Not reported
	// as a per-handler failure.
	ErrCancelled = errors.New("execution cancelled")

	// ErrSubscriberLost marks a write failure on an event subscriber.
	// Isolated to that subscriber; never propagates to the execution.
	ErrSubscriberLost = errors.New("subscriber lost")
)
