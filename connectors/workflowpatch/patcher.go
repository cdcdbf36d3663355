package workflowpatch

import (
	"encoding/json"
	"fmt"

	jsonpatch "github.com/evanphx/json-patch/v5"

	"github.com/lyzr/flowcore/internal/engine/execqueue"
	"github.com/lyzr/flowcore/internal/engine/graph"
)

// Patcher applies validated RFC 6902 patches to a workflow definition and
// recompiles the result, mirroring the teacher's "materialize patched
// workflow, recompile" flow (cmd/orchestrator/service/run_patch.go) without
// the Redis-stream reload step that flow needed for its distributed
// coordinator.
type Patcher struct {
	validator *Validator
	builder   *graph.Builder
}

// NewPatcher returns a Patcher.
func NewPatcher() *Patcher {
	return &Patcher{validator: NewValidator(), builder: graph.NewBuilder()}
}

// Apply validates rawPatchOps, rejects any operation that touches a node
// already completed or currently executing (qs may be nil for a patch
// applied before the first Run), applies the patch to def, and recompiles
// the patched definition into a fresh BuiltWorkflow.
func (p *Patcher) Apply(def *graph.Definition, rawPatchOps []map[string]interface{}, qs *execqueue.State) (*graph.BuiltWorkflow, error) {
	if err := p.validator.ValidateOperations(rawPatchOps); err != nil {
		return nil, fmt.Errorf("workflowpatch: %w", err)
	}
	if qs != nil {
		if err := p.rejectLockedNodes(def, rawPatchOps, qs); err != nil {
			return nil, err
		}
	}

	opsJSON, err := json.Marshal(rawPatchOps)
	if err != nil {
		return nil, fmt.Errorf("workflowpatch: marshal ops: %w", err)
	}
	patch, err := jsonpatch.DecodePatch(opsJSON)
	if err != nil {
		return nil, fmt.Errorf("workflowpatch: decode patch: %w", err)
	}

	defJSON, err := json.Marshal(def)
	if err != nil {
		return nil, fmt.Errorf("workflowpatch: marshal definition: %w", err)
	}

	patchedJSON, err := patch.Apply(defJSON)
	if err != nil {
		return nil, fmt.Errorf("workflowpatch: apply patch: %w", err)
	}

	var patched graph.Definition
	if err := json.Unmarshal(patchedJSON, &patched); err != nil {
		return nil, fmt.Errorf("workflowpatch: unmarshal patched definition: %w", err)
	}

	return p.builder.Build(&patched)
}

// rejectLockedNodes refuses a patch that replaces/removes a node already
// completed or executing — only nodes still pending or ready may be
// rewritten mid-run.
func (p *Patcher) rejectLockedNodes(def *graph.Definition, ops []map[string]interface{}, qs *execqueue.State) error {
	indexToID := make(map[int]string, len(def.Nodes))
	for i, n := range def.Nodes {
		indexToID[i] = n.ID
	}

	for _, op := range ops {
		path, _ := op["path"].(string)
		idx, nodeID, ok := nodeIndexFromPath(path, indexToID)
		if !ok {
			continue
		}
		_ = idx
		switch qs.Status(nodeID) {
		case execqueue.StatusCompleted, execqueue.StatusExecuting:
			return fmt.Errorf("workflowpatch: node %q is already %s, cannot be patched", nodeID, qs.Status(nodeID))
		}
	}
	return nil
}

// nodeIndexFromPath extracts a /nodes/<n>/... patch path's node index and
// resolves it to a node ID via the pre-patch definition.
func nodeIndexFromPath(path string, indexToID map[int]string) (int, string, bool) {
	const prefix = "/nodes/"
	if len(path) <= len(prefix) || path[:len(prefix)] != prefix {
		return 0, "", false
	}
	rest := path[len(prefix):]
	var idx int
	if _, err := fmt.Sscanf(rest, "%d", &idx); err != nil {
		return 0, "", false
	}
	id, ok := indexToID[idx]
	return idx, id, ok
}
