// Package executor holds the node-type-keyed handler registry and the
// retryable-error classifier. Concrete handler implementations (http, llm,
// transform, code) are external collaborators per spec.md's non-goals and
// live under connectors/handlers; this package only defines the interface
// they satisfy and the registry that dispatches to them, grounded on the
// teacher's node_router.go type-switch dispatch but generalized into a
// registration table instead of a hardcoded switch.
package executor

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/lyzr/flowcore/internal/engine/graph"
)

// Metadata carries per-invocation identifiers a handler may want to log or
// attach to outbound calls, without exposing the whole execution state.
type Metadata struct {
	ExecutionID string
	NodeID      string
	Attempt     int
}

// Result is a handler's outcome: either a success carrying an output
// document, or a failure carrying an error the scheduler classifies for
// retry/cascade purposes.
type Result struct {
	Output interface{}
	Err    error
}

// Handler executes one node's logic given its resolved config and the
// current context snapshot view the scheduler passes in as a plain map
// (already interpolated) — handlers never see the contextstore.Snapshot
// type directly, keeping them free of an engine-internal dependency.
type Handler interface {
	Handle(ctx context.Context, nodeConfig map[string]interface{}, execView map[string]interface{}, meta Metadata) Result
}

// HandlerFunc adapts a plain function to the Handler interface.
type HandlerFunc func(ctx context.Context, nodeConfig map[string]interface{}, execView map[string]interface{}, meta Metadata) Result

// Handle implements Handler.
func (f HandlerFunc) Handle(ctx context.Context, nodeConfig map[string]interface{}, execView map[string]interface{}, meta Metadata) Result {
	return f(ctx, nodeConfig, execView, meta)
}

// Registry maps a node type to the handler that executes it. Safe for
// concurrent reads once Register calls are done; workflows register every
// handler they need at startup before any execution runs.
type Registry struct {
	mu       sync.RWMutex
	handlers map[graph.NodeType]Handler
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[graph.NodeType]Handler)}
}

// Register binds nodeType to handler, overwriting any prior binding.
func (r *Registry) Register(nodeType graph.NodeType, handler Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[nodeType] = handler
}

// Lookup returns the handler registered for nodeType, or an error if none
// is registered — an unregistered type is a configuration bug, not a retry
// candidate.
func (r *Registry) Lookup(nodeType graph.NodeType) (Handler, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[nodeType]
	if !ok {
		return nil, fmt.Errorf("no handler registered for node type %q", nodeType)
	}
	return h, nil
}

// RegisteredTypes returns every node type with a bound handler, sorted, for
// diagnostics (e.g. a startup log line listing what the engine can run).
func (r *Registry) RegisteredTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]string, 0, len(r.handlers))
	for t := range r.handlers {
		types = append(types, string(t))
	}
	sort.Strings(types)
	return types
}
