package contextstore

import "sort"

// BuildFinalOutputs merges the recorded outputs of the given output node
// IDs, in order, into a single result document. Later node IDs in the list
// win on key collision — a left-to-right merge, matching the order an
// author lists output nodes in the workflow definition.
func (s *Snapshot) BuildFinalOutputs(outputNodeIDs []string) map[string]interface{} {
	final := make(map[string]interface{})
	for _, id := range outputNodeIDs {
		output, ok := s.outputs[id]
		if !ok {
			continue
		}
		asMap, ok := output.(map[string]interface{})
		if !ok {
			final[id] = output
			continue
		}
		for k, v := range asMap {
			final[k] = v
		}
	}
	return final
}

// CompletedNodeIDs returns the IDs of every node with a recorded output, in
// sorted order, for diagnostics and execution summaries.
func (s *Snapshot) CompletedNodeIDs() []string {
	ids := make([]string, 0, len(s.outputs))
	for id := range s.outputs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
