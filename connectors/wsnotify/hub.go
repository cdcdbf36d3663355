// Package wsnotify pushes a live "pending approval" message to connected
// websocket clients when a wait node starts waiting, giving the wait
// coordinator's notify? hook (spec.md §4.G) a concrete implementation.
// Adapted from the teacher's fan-out Hub/Client pump pattern
// (cmd/fanout/hub.go, client.go) but keyed by executionId instead of
// username.
package wsnotify

import (
	"encoding/json"
	"log"
	"sync"
	"time"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 30 * time.Second
	pingPeriod     = 25 * time.Second
	maxMessageSize = 512
)

// Hub maintains active websocket connections keyed by executionID and
// broadcasts wait notifications to them.
type Hub struct {
	mu          sync.RWMutex
	connections map[string][]*Client

	register   chan *Client
	unregister chan *Client
	broadcast  chan *Message
}

// Message is one notification to deliver to every client watching an
// execution.
type Message struct {
	ExecutionID string
	Data        []byte
}

// NewHub returns a Hub with its channels initialized; call Run in a
// goroutine to start its dispatch loop.
func NewHub() *Hub {
	return &Hub{
		connections: make(map[string][]*Client),
		register:    make(chan *Client),
		unregister:  make(chan *Client),
		broadcast:   make(chan *Message, 256),
	}
}

// Run is the hub's single-threaded dispatch loop; it owns all mutation of
// the connections map.
func (h *Hub) Run() {
	for {
		select {
		case c := <-h.register:
			h.registerClient(c)
		case c := <-h.unregister:
			h.unregisterClient(c)
		case m := <-h.broadcast:
			h.broadcastToExecution(m)
		}
	}
}

func (h *Hub) registerClient(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.connections[c.executionID] = append(h.connections[c.executionID], c)
}

func (h *Hub) unregisterClient(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	clients := h.connections[c.executionID]
	for i, cl := range clients {
		if cl == c {
			h.connections[c.executionID] = append(clients[:i], clients[i+1:]...)
			close(c.send)
			if len(h.connections[c.executionID]) == 0 {
				delete(h.connections, c.executionID)
			}
			break
		}
	}
}

func (h *Hub) broadcastToExecution(m *Message) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	clients := h.connections[m.ExecutionID]
	for _, c := range clients {
		select {
		case c.send <- m.Data:
		default:
			log.Printf("wsnotify: client send buffer full, closing: execution=%s", m.ExecutionID)
			close(c.send)
		}
	}
}

// NotifyWaitPending implements the wait.Spec.Notify signature: it
// broadcasts a "wait pending" message to every client watching
// executionID. Bind as `wait.Spec{Notify: hub.NotifyWaitPending}`.
func (h *Hub) NotifyWaitPending(executionID, nodeID string) {
	payload, err := json.Marshal(map[string]interface{}{
		"type":        "wait_pending",
		"executionId": executionID,
		"nodeId":      nodeID,
		"timestamp":   time.Now().UnixMilli(),
	})
	if err != nil {
		log.Printf("wsnotify: failed to marshal notification: %v", err)
		return
	}
	h.broadcast <- &Message{ExecutionID: executionID, Data: payload}
}

// Register queues a client for registration with the hub.
func (h *Hub) Register(c *Client) { h.register <- c }

// Unregister queues a client for removal from the hub.
func (h *Hub) Unregister(c *Client) { h.unregister <- c }

// ConnectionCount returns the total number of active connections.
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	count := 0
	for _, clients := range h.connections {
		count += len(clients)
	}
	return count
}
