// Package workflowpatch applies RFC 6902 JSON patches to a workflow
// definition and recompiles it, gated so only nodes not yet
// completed/executing are affected — the mid-run graph patching feature
// spec.md's distillation dropped but the teacher's run_patch/patch_loader
// subsystem (cmd/orchestrator/service/run_patch.go,
// common/validation/patch_validator.go) shows in full.
package workflowpatch

import "fmt"

// maxAgentNodesPerPatch caps how many agent-type nodes a single patch may
// add, the same ceiling the teacher's validator enforces to stop a runaway
// agent from unbounded self-expansion mid-run.
const maxAgentNodesPerPatch = 5

// Validator checks raw JSON Patch operations before they're applied to a
// workflow definition.
type Validator struct{}

// NewValidator returns a Validator.
func NewValidator() *Validator {
	return &Validator{}
}

// ValidateOperations validates the structural shape of every operation and
// enforces the agent-node-count ceiling across the whole patch.
func (v *Validator) ValidateOperations(operations []map[string]interface{}) error {
	agentCount := 0

	for i, op := range operations {
		if err := v.validateOperation(op, i); err != nil {
			return err
		}
		if op["op"] == "add" && op["path"] == "/nodes/-" {
			if value, ok := op["value"].(map[string]interface{}); ok {
				if nodeType, ok := value["type"].(string); ok && nodeType == "agent" {
					agentCount++
				}
			}
		}
	}

	if agentCount > maxAgentNodesPerPatch {
		return fmt.Errorf("patch validation failed: cannot add more than %d agent nodes per patch (attempted: %d)", maxAgentNodesPerPatch, agentCount)
	}
	return nil
}

func (v *Validator) validateOperation(op map[string]interface{}, index int) error {
	opType, ok := op["op"].(string)
	if !ok {
		return fmt.Errorf("operation %d: missing or invalid 'op' field", index)
	}

	if _, ok := op["path"].(string); !ok {
		return fmt.Errorf("operation %d: missing or invalid 'path' field", index)
	}
	path, _ := op["path"].(string)

	switch opType {
	case "add", "replace":
		if _, ok := op["value"]; !ok {
			return fmt.Errorf("operation %d: 'value' required for %s operation", index, opType)
		}
		if path == "/nodes/-" {
			if err := v.validateNodeValue(op["value"], index); err != nil {
				return err
			}
		}
	case "remove":
		return nil
	default:
		return fmt.Errorf("operation %d: unsupported operation type: %s", index, opType)
	}
	return nil
}

func (v *Validator) validateNodeValue(value interface{}, opIndex int) error {
	nodeValue, ok := value.(map[string]interface{})
	if !ok {
		return fmt.Errorf("operation %d: node value must be an object, got %T", opIndex, value)
	}
	if _, ok := nodeValue["id"].(string); !ok {
		return fmt.Errorf("operation %d: node must have 'id' field (string)", opIndex)
	}
	if _, ok := nodeValue["type"].(string); !ok {
		return fmt.Errorf("operation %d: node must have 'type' field (string)", opIndex)
	}
	if config, exists := nodeValue["config"]; exists {
		if _, ok := config.(map[string]interface{}); !ok {
			return fmt.Errorf("operation %d: node 'config' must be an object, got %T", opIndex, config)
		}
	}
	return nil
}
