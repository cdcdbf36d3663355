// Package wait implements the human-input/timer/event wait coordinator for
// "wait" nodes: it registers a pending wait, resolves it exactly once on
// whichever of {signal delivery, timeout, cancellation} happens first, and
// hands the result back to whoever is blocked on it. Grounded on the
// teacher's HITL approval flow (cmd/fanout/server.go HandleApproval), but
// collapsed from Redis-backed cross-process state into an in-process
// registry since the engine is a single logical scheduler per execution.
package wait

import (
	"context"
	"sync"
	"time"
)

// Spec describes one wait node's configuration.
type Spec struct {
	WaitType  string // "signal", "timer", "event"
	TimeoutMs int64
	Notify    func(executionID, nodeID string) // optional out-of-band notify hook
}

// Outcome is the resolved result of a wait, handed back to the scheduler to
// fold into the node's output.
type Outcome struct {
	Delivered bool
	Payload   interface{}
	TimedOut  bool
	Cancelled bool
	Reason    string
}

type pendingWait struct {
	resultCh chan Outcome
	once     sync.Once
}

func (p *pendingWait) resolve(o Outcome) bool {
	resolved := false
	p.once.Do(func() {
		resolved = true
		p.resultCh <- o
	})
	return resolved
}

// Coordinator tracks every in-flight wait, keyed by (executionID, nodeID).
type Coordinator struct {
	mu      sync.Mutex
	pending map[string]*pendingWait
}

// NewCoordinator returns an empty Coordinator.
func NewCoordinator() *Coordinator {
	return &Coordinator{pending: make(map[string]*pendingWait)}
}

func waitKey(executionID, nodeID string) string {
	return executionID + "/" + nodeID
}

// Await registers a wait and blocks until it's delivered, times out, or ctx
// is cancelled — whichever comes first resolves it exactly once; the
// others become no-ops.
func (c *Coordinator) Await(ctx context.Context, executionID, nodeID string, spec Spec) Outcome {
	key := waitKey(executionID, nodeID)
	pw := &pendingWait{resultCh: make(chan Outcome, 1)}

	c.mu.Lock()
	c.pending[key] = pw
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, key)
		c.mu.Unlock()
	}()

	if spec.Notify != nil {
		spec.Notify(executionID, nodeID)
	}

	var timeoutCh <-chan time.Time
	if spec.TimeoutMs > 0 {
		timer := time.NewTimer(time.Duration(spec.TimeoutMs) * time.Millisecond)
		defer timer.Stop()
		timeoutCh = timer.C
	}

	select {
	case outcome := <-pw.resultCh:
		return outcome
	case <-timeoutCh:
		pw.resolve(Outcome{TimedOut: true, Reason: "wait timed out"})
		return <-pw.resultCh
	case <-ctx.Done():
		pw.resolve(Outcome{Cancelled: true, Reason: ctx.Err().Error()})
		return <-pw.resultCh
	}
}

// DeliverSignal resolves a pending wait with a payload. Returns delivered
// false with a reason if no wait is pending (already resolved, unknown
// node, or arrived after timeout/cancellation) — the same "not found or
// already settled" outcome the teacher's HandleApproval surfaces as a 404.
func (c *Coordinator) DeliverSignal(executionID, nodeID string, payload interface{}) (delivered bool, reason string) {
	c.mu.Lock()
	pw, ok := c.pending[key(executionID, nodeID)]
	c.mu.Unlock()
	if !ok {
		return false, "no pending wait for this node"
	}

	resolved := pw.resolve(Outcome{Delivered: true, Payload: payload})
	if !resolved {
		return false, "wait already resolved"
	}
	return true, ""
}

func key(executionID, nodeID string) string { return waitKey(executionID, nodeID) }

// CancelAll resolves every wait belonging to executionID as cancelled —
// invoked when the scheduler cancels a whole execution.
func (c *Coordinator) CancelAll(executionID string) {
	c.mu.Lock()
	var toCancel []*pendingWait
	for key, pw := range c.pending {
		if hasPrefix(key, executionID+"/") {
			toCancel = append(toCancel, pw)
		}
	}
	c.mu.Unlock()

	for _, pw := range toCancel {
		pw.resolve(Outcome{Cancelled: true, Reason: "execution cancelled"})
	}
}

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}

// PendingCount reports how many waits are currently in flight, for
// diagnostics and deadlock-avoidance checks (a wait node counts as
// "executing", not stuck, while it has an in-flight entry here).
func (c *Coordinator) PendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}
