package hub

import (
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/google/uuid"
)

const (
	// writeWait is how long to wait for a write to complete
	writeWait = 10 * time.Second

	// pongWait is how long to wait for a pong response
	pongWait = 60 * time.Second

	// pingPeriod must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	// maxMessageSize bounds inbound viewer messages (requests, pings)
	maxMessageSize = 64 * 1024

	// sendBuffer is the per-client queue depth before it counts as slow
	sendBuffer = 64
)

// Client represents a single websocket connection
type Client struct {
	id   string
	hub  *Hub
	conn *websocket.Conn
	send chan Message

	// Closed when writePump returns
	done chan struct{}

	connectedAt time.Time
}

// newClient creates a new client and registers it with the hub.
// Returns false if the hub has stopped.
func newClient(hub *Hub, conn *websocket.Conn) (*Client, bool) {
	client := &Client{
		id:          uuid.NewString(),
		hub:         hub,
		conn:        conn,
		send:        make(chan Message, sendBuffer),
		done:        make(chan struct{}),
		connectedAt: time.Now(),
	}

	select {
	case hub.register <- client:
		return client, true
	case <-hub.done:
		return nil, false
	}
}

// ID returns the client's unique id
func (c *Client) ID() string {
	return c.id
}

// RemoteAddr returns the peer address, or "" if unknown
func (c *Client) RemoteAddr() string {
	if c.conn == nil || c.conn.Conn == nil {
		return ""
	}
	if addr := c.conn.RemoteAddr(); addr != nil {
		return addr.String()
	}
	return ""
}

// run starts the client's write pump and blocks in the read pump
// until the connection closes and the write pump has exited.
// The conn is pooled by the websocket handler once run returns.
func (c *Client) run() {
	go c.writePump()
	c.readPump()
}

// readPump reads messages from the websocket connection.
// It detects disconnection, handles pongs and forwards viewer requests.
func (c *Client) readPump() {
	defer func() {
		// leave makes the hub close c.send, which stops writePump
		c.hub.leave(c)
		c.conn.Close()
		<-c.done
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		msgType, data, err := c.conn.ReadMessage()
		if err != nil {
			break
		}
		if msgType == websocket.TextMessage {
			c.hub.dispatch(c, data)
		}
	}
}

// writePump writes messages to the websocket connection
// Only this goroutine writes to the connection - no race conditions!
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
		close(c.done)
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub closed the channel - send close frame
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message.Data); err != nil {
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
