// Package eventbus implements per-execution pub/sub for workflow lifecycle
// events, adapted from the teacher's WebSocket Hub/Client fanout
// (cmd/fanout/hub.go) but re-keyed by executionId instead of username and
// re-wired for SSE delivery instead of a persistent socket.
package eventbus

import (
	"encoding/json"
	"log"
	"sync"
	"time"
)

// EventType tags a lifecycle event's kind.
type EventType string

const (
	EventConnected       EventType = "connected"
	EventNodeStarted     EventType = "node_started"
	EventNodeCompleted   EventType = "node_completed"
	EventNodeFailed      EventType = "node_failed"
	EventNodeSkipped     EventType = "node_skipped"
	EventExecutionDone   EventType = "execution_completed"
	EventExecutionFailed EventType = "execution_failed"
)

// Event is one published lifecycle event.
type Event struct {
	Type        EventType   `json:"type"`
	ExecutionID string      `json:"executionId"`
	NodeID      string      `json:"nodeId,omitempty"`
	Data        interface{} `json:"data,omitempty"`
	Timestamp   int64       `json:"timestamp"`
}

// isTerminal reports whether this event ends the stream for its execution.
func (e Event) isTerminal() bool {
	return e.Type == EventExecutionDone || e.Type == EventExecutionFailed
}

// Subscriber receives events for one execution. Send must not block the
// bus — a slow consumer gets dropped, the same buffered-channel-with-
// default-fallback discipline the teacher's broadcastToUsername applies.
type Subscriber struct {
	executionID string
	send        chan []byte
	closeOnce   sync.Once
	closed      chan struct{}
}

// Send returns the channel of encoded frames queued for this subscriber.
// The bus enqueues without blocking; when the buffer is full the frame is
// dropped and the subscriber is unsubscribed.
func (s *Subscriber) Send() <-chan []byte {
	return s.send
}

// Closed signals when this subscriber has been torn down.
func (s *Subscriber) Closed() <-chan struct{} {
	return s.closed
}

func (s *Subscriber) close() {
	s.closeOnce.Do(func() {
		close(s.closed)
	})
}

// Bus fans out events to subscribers, isolated per execution ID.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[string][]*Subscriber

	keepAliveInterval time.Duration
	terminalFlushWait time.Duration
}

// Option configures optional Bus timing behavior.
type Option func(*Bus)

// WithKeepAliveInterval overrides the default 30s keepalive tick.
func WithKeepAliveInterval(d time.Duration) Option {
	return func(b *Bus) { b.keepAliveInterval = d }
}

// WithTerminalFlushWait overrides the default 500ms grace period given to
// subscribers to drain a terminal event before the bus closes them.
func WithTerminalFlushWait(d time.Duration) Option {
	return func(b *Bus) { b.terminalFlushWait = d }
}

// NewBus returns a Bus with the engine's default keepalive/flush timings.
func NewBus(opts ...Option) *Bus {
	b := &Bus{
		subscribers:       make(map[string][]*Subscriber),
		keepAliveInterval: 30 * time.Second,
		terminalFlushWait: 500 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscribe registers a new subscriber for executionID and immediately
// enqueues a "connected" event, the same eager-ack the teacher's client
// registration implies by accepting the socket upgrade.
func (b *Bus) Subscribe(executionID string) *Subscriber {
	sub := &Subscriber{
		executionID: executionID,
		send:        make(chan []byte, 256),
		closed:      make(chan struct{}),
	}

	b.mu.Lock()
	b.subscribers[executionID] = append(b.subscribers[executionID], sub)
	b.mu.Unlock()

	b.deliver(sub, Event{
		Type:        EventConnected,
		ExecutionID: executionID,
		Timestamp:   nowUnixMilli(),
	})

	return sub
}

// Unsubscribe removes sub from the bus and releases its resources.
func (b *Bus) Unsubscribe(sub *Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.subscribers[sub.executionID]
	for i, s := range subs {
		if s == sub {
			b.subscribers[sub.executionID] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	if len(b.subscribers[sub.executionID]) == 0 {
		delete(b.subscribers, sub.executionID)
	}
	sub.close()
}

// Publish fans event out to every subscriber of event.ExecutionID. Terminal
// events (execution_completed/execution_failed) are given
// terminalFlushWait to drain before the bus force-closes those
// subscribers, so a client reading the stream reliably sees the terminal
// frame before the connection drops.
func (b *Bus) Publish(event Event) {
	b.mu.RLock()
	subs := append([]*Subscriber(nil), b.subscribers[event.ExecutionID]...)
	b.mu.RUnlock()

	for _, sub := range subs {
		b.deliver(sub, event)
	}

	if event.isTerminal() {
		go func() {
			time.Sleep(b.terminalFlushWait)
			b.mu.Lock()
			toClose := b.subscribers[event.ExecutionID]
			delete(b.subscribers, event.ExecutionID)
			b.mu.Unlock()
			for _, sub := range toClose {
				sub.close()
			}
		}()
	}
}

// PublishRaw fans a pre-encoded frame out to every subscriber of
// executionID, bypassing Event marshaling — used by connectors/redisbridge
// to forward a frame that already arrived JSON-encoded from another
// process.
func (b *Bus) PublishRaw(executionID string, frame []byte) {
	b.mu.RLock()
	subs := append([]*Subscriber(nil), b.subscribers[executionID]...)
	b.mu.RUnlock()

	for _, sub := range subs {
		select {
		case sub.send <- frame:
		default:
			b.Unsubscribe(sub)
		}
	}
}

func (b *Bus) deliver(sub *Subscriber, event Event) {
	frame, err := json.Marshal(event)
	if err != nil {
		log.Printf("eventbus: failed to marshal event: %v", err)
		return
	}
	select {
	case sub.send <- frame:
	default:
		log.Printf("eventbus: subscriber buffer full, dropping: execution=%s", sub.executionID)
		b.Unsubscribe(sub)
	}
}

// KeepAliveInterval reports the configured keepalive tick period.
func (b *Bus) KeepAliveInterval() time.Duration {
	return b.keepAliveInterval
}

// SubscriberCount returns how many subscribers are registered for
// executionID, for diagnostics and tests.
func (b *Bus) SubscriberCount(executionID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers[executionID])
}

var nowUnixMilli = func() int64 { return time.Now().UnixMilli() }
