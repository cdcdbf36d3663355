// Package execqueue tracks one execution's per-node state machine:
// pending -> ready -> executing -> {completed, failed, skipped}. It owns no
// concurrency primitives of its own — the scheduler serializes access — and
// exposes the readiness/cascade/loop-reset bookkeeping the teacher's
// coordinator spreads across handleCompletion/handleFailedNode/
// handleSkippedNode.
package execqueue

import (
	"sort"

	"github.com/lyzr/flowcore/internal/engine/graph"
)

// Status is a node's position in the execution state machine.
type Status string

const (
	StatusPending   Status = "pending"
	StatusReady     Status = "ready"
	StatusExecuting Status = "executing"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusSkipped   Status = "skipped"
)

// State is the mutable per-execution queue. Not safe for concurrent use;
// the scheduler owns a single State per execution and serializes mutation.
type State struct {
	workflow *graph.BuiltWorkflow
	status   map[string]Status

	// firedIncoming and deadIncoming count, per node, how many incoming
	// edges have resolved live or dead; totalIncoming is the number of
	// non-loop-back incoming edges. A node becomes ready only once every
	// incoming edge has resolved — either fired or been pruned — and at
	// least one fired, or the node has no incoming edges at all (the
	// trigger).
	firedIncoming map[string]int
	deadIncoming  map[string]int
	totalIncoming map[string]int
}

// NewState initializes queue state for a freshly built workflow: every node
// starts pending except the trigger, which starts ready.
func NewState(w *graph.BuiltWorkflow) *State {
	s := &State{
		workflow:      w,
		status:        make(map[string]Status, len(w.Nodes)),
		firedIncoming: make(map[string]int, len(w.Nodes)),
		deadIncoming:  make(map[string]int, len(w.Nodes)),
		totalIncoming: make(map[string]int, len(w.Nodes)),
	}
	for id := range w.Nodes {
		s.status[id] = StatusPending
		total := 0
		for _, e := range w.InEdges(id) {
			if e.HandleType == graph.HandleLoopBack {
				continue
			}
			total++
		}
		s.totalIncoming[id] = total
	}
	s.status[w.TriggerNodeID] = StatusReady
	return s
}

// Status returns nodeID's current status.
func (s *State) Status(nodeID string) Status {
	return s.status[nodeID]
}

// ReadyNodes returns every node currently ready to dispatch, ordered by
// depth ascending then ID ascending — the deterministic dispatch order
// spec.md §4.C requires.
func (s *State) ReadyNodes() []string {
	var ready []string
	for id, st := range s.status {
		if st == StatusReady {
			ready = append(ready, id)
		}
	}
	sort.Slice(ready, func(i, j int) bool {
		ni, nj := s.workflow.Nodes[ready[i]], s.workflow.Nodes[ready[j]]
		if ni.Depth != nj.Depth {
			return ni.Depth < nj.Depth
		}
		return ready[i] < ready[j]
	})
	return ready
}

// MarkExecuting transitions a ready node into the executing state.
func (s *State) MarkExecuting(nodeID string) {
	s.status[nodeID] = StatusExecuting
}

// noLiveEdges marks every outgoing edge dead — the shape MarkFailed and
// MarkSkipped resolve with, as opposed to nil (every edge live), which is
// reserved for a normal MarkCompleted with no branch decision.
var noLiveEdges = map[graph.HandleType]bool{}

// MarkCompleted transitions an executing node to completed, resolves the
// live edges it fires (all edges by default, or only those matching
// liveHandles for conditional/loop nodes), and promotes any dependent whose
// incoming edges have all now resolved. A dependent left with no live
// incoming path is skipped — the source node completed fine, it just didn't
// select that edge.
func (s *State) MarkCompleted(nodeID string, liveHandles map[graph.HandleType]bool) []string {
	s.status[nodeID] = StatusCompleted
	return s.resolveOutgoing(nodeID, liveHandles, StatusSkipped)
}

// MarkFailed transitions an executing node to failed and cascades failure
// to every dependent that has no other live incoming path — those
// dependents are themselves marked failed (not skipped), the same
// "absorb or cascade" decision the teacher's handleFailedNode makes by
// checking ErrorPolicy.
func (s *State) MarkFailed(nodeID string) []string {
	s.status[nodeID] = StatusFailed
	return s.resolveOutgoing(nodeID, noLiveEdges, StatusFailed)
}

// MarkSkipped transitions a node to skipped without ever executing it
// (the non-taken branch of a conditional, or a loop-exited body node), and
// cascades skip to dependents with no other live path.
func (s *State) MarkSkipped(nodeID string) []string {
	s.status[nodeID] = StatusSkipped
	return s.resolveOutgoing(nodeID, noLiveEdges, StatusSkipped)
}

// resolveOutgoing marks the given node's outgoing edges as resolved — live
// if liveHandles is nil (plain completion: every edge fires) or matches the
// handle type (branch decision: only the selected edges are live; everything
// else, including a fail/skip's noLiveEdges, is dead) — then promotes any
// dependent whose every incoming edge has now resolved. Loop-back edges are
// control re-arm signals handled by ResetForIteration, not data
// dependencies, so they're excluded here the same way they're excluded from
// totalIncoming. A loop-exit edge that a completing loop controller did not
// select is left unresolved rather than dead, so the loop's downstream node
// stays pending until the pass that exits.
//
// A node is promoted to ready once totalIncoming == firedIncoming+deadIncoming
// and firedIncoming > 0 (at least one live predecessor actually fired), or
// it has zero incoming edges (handled by caller-side initialization). A
// dependent left with zero fired incoming is assigned deadStatus and the
// cascade continues through its own dependents with the same deadStatus, so
// a failure cascades as failed and a skip cascades as skipped.
func (s *State) resolveOutgoing(nodeID string, liveHandles map[graph.HandleType]bool, deadStatus Status) []string {
	var newlyReady []string
	promoted := make(map[string]bool)

	for _, e := range s.workflow.OutEdges(nodeID) {
		if e.HandleType == graph.HandleLoopBack {
			continue
		}
		target := e.Target
		live := liveHandles == nil || liveHandles[e.HandleType]
		if !live && e.HandleType == graph.HandleLoopExit && len(liveHandles) > 0 {
			continue
		}
		if live {
			s.firedIncoming[target]++
		} else {
			s.deadIncoming[target]++
		}
		promoted[target] = true
	}

	targets := make([]string, 0, len(promoted))
	for t := range promoted {
		targets = append(targets, t)
	}
	sort.Strings(targets)

	for _, target := range targets {
		if s.status[target] != StatusPending {
			continue
		}
		resolved := s.firedIncoming[target] + s.deadIncoming[target]
		if resolved < s.totalIncoming[target] {
			continue
		}
		if s.firedIncoming[target] == 0 {
			// every incoming edge resolved dead: no live path in, cascade
			// the originating status and continue through its dependents.
			s.status[target] = deadStatus
			newlyReady = append(newlyReady, s.resolveOutgoing(target, noLiveEdges, deadStatus)...)
			continue
		}
		s.status[target] = StatusReady
		newlyReady = append(newlyReady, target)
	}
	return newlyReady
}

// ResetForIteration resets every node in bodyNodes back to pending so a
// loop body can run again for its next iteration; the start sentinel is
// promoted again only when the loop controller fires its loop-body edge.
// Incoming-edge counters are cleared so a later MarkCompleted re-promotes
// the same dependents.
func (s *State) ResetForIteration(lc *graph.LoopContext) {
	for _, id := range lc.BodyNodes {
		s.status[id] = StatusPending
		s.firedIncoming[id] = 0
		s.deadIncoming[id] = 0
	}
	// The loop controller node re-enters ready so it can decide whether
	// to run another iteration or take the loop-exit edge.
	s.status[lc.LoopNodeID] = StatusReady
	s.firedIncoming[lc.LoopNodeID] = 0
	s.deadIncoming[lc.LoopNodeID] = 0
}

// IsComplete reports whether every node has reached a terminal state
// (completed, failed, or skipped).
func (s *State) IsComplete() bool {
	for _, st := range s.status {
		if st != StatusCompleted && st != StatusFailed && st != StatusSkipped {
			return false
		}
	}
	return true
}

// IsDeadlocked reports executing=∅ ∧ ready=∅ ∧ pending≠∅ — the scheduler's
// stuck-state detection, spec.md §7.
func (s *State) IsDeadlocked() bool {
	hasPending := false
	for _, st := range s.status {
		switch st {
		case StatusExecuting, StatusReady:
			return false
		case StatusPending:
			hasPending = true
		}
	}
	return hasPending
}

// Summary reports the count of nodes in each terminal/non-terminal state,
// for execution-level diagnostics.
type Summary struct {
	Pending, Ready, Executing, Completed, Failed, Skipped int
}

// ExecutionSummary tallies node counts by status.
func (s *State) ExecutionSummary() Summary {
	var sm Summary
	for _, st := range s.status {
		switch st {
		case StatusPending:
			sm.Pending++
		case StatusReady:
			sm.Ready++
		case StatusExecuting:
			sm.Executing++
		case StatusCompleted:
			sm.Completed++
		case StatusFailed:
			sm.Failed++
		case StatusSkipped:
			sm.Skipped++
		}
	}
	return sm
}
