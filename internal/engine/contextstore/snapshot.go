// Package contextstore implements the immutable execution-context snapshot:
// node outputs, workflow variables, and the original inputs, plus
// {{path.to.value}} interpolation over that view. Every mutation produces a
// new Snapshot; callers never see a partially-updated context, the same
// guarantee the teacher's resolver gives by resolving against a
// point-in-time load of node outputs.
package contextstore

import (
	"encoding/json"
	"fmt"
)

// Snapshot is an immutable view of an execution's accumulated state. Reads
// never block writers and writers never mutate a Snapshot in place — a new
// Snapshot is always returned, so a reference handed to a running node
// handler stays stable for that handler's whole lifetime even while
// sibling nodes complete concurrently.
type Snapshot struct {
	inputs    map[string]interface{}
	outputs   map[string]interface{} // nodeID -> output
	variables map[string]interface{}
	byteSize  int64
}

// New returns the initial snapshot for an execution, seeded with its
// trigger inputs.
func New(inputs map[string]interface{}) *Snapshot {
	s := &Snapshot{
		inputs:    cloneMap(inputs),
		outputs:   map[string]interface{}{},
		variables: map[string]interface{}{},
	}
	s.byteSize = jsonSize(s.inputs)
	return s
}

// WithNodeOutput returns a new Snapshot with nodeID's output recorded.
// Re-recording a nodeID (loop re-entry) overwrites the prior value — callers
// wanting per-iteration history should route through variables instead.
func (s *Snapshot) WithNodeOutput(nodeID string, output interface{}) *Snapshot {
	next := s.shallowCopy()
	next.outputs = cloneMapWith(s.outputs, nodeID, output)
	next.byteSize = s.byteSize + jsonSize(output)
	return next
}

// WithVariable returns a new Snapshot with a workflow variable set. Used by
// the loop machinery for iteration counters and accumulators, and by node
// handlers that explicitly publish a named variable.
func (s *Snapshot) WithVariable(name string, value interface{}) *Snapshot {
	next := s.shallowCopy()
	next.variables = cloneMapWith(s.variables, name, value)
	next.byteSize = s.byteSize + jsonSize(value)
	return next
}

func (s *Snapshot) shallowCopy() *Snapshot {
	return &Snapshot{
		inputs:    s.inputs,
		outputs:   s.outputs,
		variables: s.variables,
		byteSize:  s.byteSize,
	}
}

// NodeOutput returns the recorded output for nodeID, if any.
func (s *Snapshot) NodeOutput(nodeID string) (interface{}, bool) {
	v, ok := s.outputs[nodeID]
	return v, ok
}

// Variable returns a workflow variable by name, if set.
func (s *Snapshot) Variable(name string) (interface{}, bool) {
	v, ok := s.variables[name]
	return v, ok
}

// Inputs returns the original trigger inputs.
func (s *Snapshot) Inputs() map[string]interface{} {
	return s.inputs
}

// ByteSize is the cumulative monotonic size meter of every value ever
// recorded into this snapshot's lineage, in bytes of its JSON encoding. It
// never decreases across a Snapshot chain. It is advisory: no engine
// component enforces a limit based on it.
func (s *Snapshot) ByteSize() int64 {
	return s.byteSize
}

// View returns the flattened execution-context document: variables shadow
// inputs, which shadow outputs, reflecting that the most specific/most-
// recently-set value should win on key collision. Handlers and the
// condition evaluator receive this instead of the Snapshot itself so they
// stay free of a dependency on this package's internals.
func (s *Snapshot) View() map[string]interface{} {
	return s.view()
}

func (s *Snapshot) view() map[string]interface{} {
	merged := make(map[string]interface{}, len(s.outputs)+len(s.inputs)+len(s.variables)+2)
	merged["outputs"] = s.outputs
	merged["inputs"] = s.inputs
	merged["variables"] = s.variables
	for k, v := range s.outputs {
		merged[k] = v
	}
	for k, v := range s.inputs {
		merged[k] = v
	}
	for k, v := range s.variables {
		merged[k] = v
	}
	return merged
}

func cloneMap(m map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func cloneMapWith(m map[string]interface{}, key string, value interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(m)+1)
	for k, v := range m {
		out[k] = v
	}
	out[key] = value
	return out
}

func jsonSize(v interface{}) int64 {
	b, err := json.Marshal(v)
	if err != nil {
		return int64(len(fmt.Sprintf("%v", v)))
	}
	return int64(len(b))
}
