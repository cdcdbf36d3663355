package wsnotify

import (
	"log"
	"time"

	"github.com/gorilla/websocket"
)

// Client represents one websocket connection watching a single execution
// for wait notifications.
type Client struct {
	hub         *Hub
	conn        *websocket.Conn
	executionID string
	send        chan []byte
}

// NewClient returns a Client bound to hub, watching executionID over conn.
func NewClient(hub *Hub, conn *websocket.Conn, executionID string) *Client {
	return &Client{
		hub:         hub,
		conn:        conn,
		executionID: executionID,
		send:        make(chan []byte, 64),
	}
}

// ReadPump drains the connection for pong/close frames — clients never
// send application data, only acknowledge pings — and unregisters on
// disconnect. Run in its own goroutine.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("wsnotify: read error: %v", err)
			}
			return
		}
	}
}

// WritePump delivers queued notifications and periodic pings to the
// connection. Run in its own goroutine; returns when the connection closes.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
