package scheduler

import "fmt"

func errUnconfiguredLoop(nodeID string) error {
	return fmt.Errorf("loop node %q has no loop context", nodeID)
}

func errWaitCancelled(nodeID string) error {
	return fmt.Errorf("wait on node %q was cancelled", nodeID)
}
