package relay

import (
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
)

const (
	sendQueueSize  = 32
	writeWait      = 10 * time.Second
	maxMessageSize = 4096
)

// client is one live socket bound to a session token. token and lastSeen are
// owned by the hub loop and never touched from the pumps.
type client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan Envelope

	token    string
	lastSeen time.Time
}

type frame struct {
	c   *client
	env Envelope
}

// readPump forwards inbound frames to the hub loop. Malformed JSON is dropped
// without closing the connection; a transport error unregisters the client.
func (c *client) readPump() {
	defer func() {
		c.hub.unregister <- c
	}()

	c.conn.SetReadLimit(maxMessageSize)
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		var env Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			continue
		}

		c.hub.inbound <- frame{c: c, env: env}
	}
}

// writePump drains the send queue onto the socket. The hub closing the queue
// is the signal to send a close frame and tear down the transport.
func (c *client) writePump() {
	defer c.conn.Close()

	for env := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteJSON(env); err != nil {
			// Keep draining so the hub's enqueues keep landing in a live
			// channel until it notices the dead connection.
			continue
		}
	}

	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

// enqueue hands a frame to the write pump without ever blocking the hub loop.
// A full queue means a consumer too slow to matter; the frame is dropped.
func (c *client) enqueue(env Envelope) bool {
	select {
	case c.send <- env:
		return true
	default:
		return false
	}
}
