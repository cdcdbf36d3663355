// Package redisbridge wires the engine's two Redis-facing edge concerns: a
// CheckpointSink that persists execution snapshots, and a cluster-wide
// event relay that re-publishes lifecycle events across process
// boundaries. Grounded on the teacher's common/redis client wrapper and
// cmd/fanout/redis_subscriber.go. Neither lives inside the scheduler or
// queue — both are optional collaborators a process wires in at startup.
package redisbridge

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/lyzr/flowcore/internal/engine/contextstore"
	"github.com/lyzr/flowcore/internal/engine/execqueue"
)

// Logger is the small logging interface this package logs through.
type Logger interface {
	Info(msg string, args ...interface{})
	Error(msg string, args ...interface{})
	Debug(msg string, args ...interface{})
}

// CheckpointSink persists (executionID, the snapshot's node outputs, queue
// summary) to Redis after every queue transition — the one named persistence hook spec.md §6
// carves out for external durability.
type CheckpointSink struct {
	client *redis.Client
	logger Logger
	ttl    time.Duration
}

// NewCheckpointSink returns a CheckpointSink writing to client with the
// given key TTL (0 disables expiry).
func NewCheckpointSink(client *redis.Client, logger Logger, ttl time.Duration) *CheckpointSink {
	return &CheckpointSink{client: client, logger: logger, ttl: ttl}
}

type checkpointRecord struct {
	ExecutionID  string                 `json:"executionId"`
	Outputs      map[string]interface{} `json:"outputs"`
	Variables    map[string]interface{} `json:"variables"`
	Summary      execqueue.Summary      `json:"summary"`
	CheckpointAt int64                  `json:"checkpointAt"`
}

// Checkpoint implements scheduler.CheckpointSink.
func (c *CheckpointSink) Checkpoint(executionID string, snap *contextstore.Snapshot, summary execqueue.Summary) {
	record := checkpointRecord{
		ExecutionID:  executionID,
		Outputs:      extractOutputs(snap),
		Summary:      summary,
		CheckpointAt: time.Now().UnixMilli(),
	}

	payload, err := json.Marshal(record)
	if err != nil {
		c.logger.Error("redisbridge: failed to marshal checkpoint", "execution_id", executionID, "error", err)
		return
	}

	key := fmt.Sprintf("flowcore:checkpoint:%s", executionID)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := c.client.Set(ctx, key, payload, c.ttl).Err(); err != nil {
		c.logger.Error("redisbridge: checkpoint write failed", "execution_id", executionID, "error", err)
		return
	}
	c.logger.Debug("redisbridge: checkpoint written", "execution_id", executionID, "key", key)
}

func extractOutputs(snap *contextstore.Snapshot) map[string]interface{} {
	out := make(map[string]interface{})
	for _, id := range snap.CompletedNodeIDs() {
		v, _ := snap.NodeOutput(id)
		out[id] = v
	}
	return out
}
