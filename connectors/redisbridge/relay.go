package redisbridge

import (
	"context"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/lyzr/flowcore/internal/engine/eventbus"
)

// Relay subscribes to workflow:events:* across a Redis cluster and
// re-publishes every message onto a local Bus, so a process that didn't
// run an execution itself can still serve its SSE subscribers — the
// cluster-wide fanout the teacher's RedisSubscriber provides, re-keyed
// from username to executionId.
type Relay struct {
	client *redis.Client
	bus    *eventbus.Bus
	logger Logger
}

// NewRelay returns a Relay forwarding onto bus.
func NewRelay(client *redis.Client, bus *eventbus.Bus, logger Logger) *Relay {
	return &Relay{client: client, bus: bus, logger: logger}
}

const channelPrefix = "workflow:events:"

// PublishChannel is the channel a process running an execution should
// publish raw event JSON to, so every relay in the cluster forwards it.
func PublishChannel(executionID string) string {
	return channelPrefix + executionID
}

// Publish forwards a locally-produced event onto Redis for other processes'
// relays to pick up.
func (r *Relay) Publish(ctx context.Context, executionID string, payload []byte) error {
	return r.client.Publish(ctx, PublishChannel(executionID), payload).Err()
}

// Run subscribes to workflow:events:* and feeds every received message into
// the local Bus until ctx is cancelled.
func (r *Relay) Run(ctx context.Context) error {
	pubsub := r.client.PSubscribe(ctx, channelPrefix+"*")
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return err
	}
	r.logger.Info("redisbridge: relay subscribed", "pattern", channelPrefix+"*")

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg := <-ch:
			if msg == nil {
				continue
			}
			executionID := extractExecutionID(msg.Channel)
			if executionID == "" {
				r.logger.Error("redisbridge: malformed channel", "channel", msg.Channel)
				continue
			}
			r.bus.PublishRaw(executionID, []byte(msg.Payload))
		}
	}
}

func extractExecutionID(channel string) string {
	if !strings.HasPrefix(channel, channelPrefix) {
		return ""
	}
	return strings.TrimPrefix(channel, channelPrefix)
}
