package hub

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/teslashibe/go-edgedetector/internal/log"
	"github.com/teslashibe/go-edgedetector/pkg/metrics"
)

// Hub maintains the set of active clients and broadcasts messages to them
type Hub struct {
	// Name for logging and metrics
	name string

	// Registered clients, owned by Run
	clients map[*Client]bool

	// Inbound messages to broadcast
	broadcast chan Message

	// Messages for a single client
	direct chan directMessage

	// Register requests from clients
	register chan *Client

	// Unregister requests from clients
	unregister chan *Client

	// Closed when Run returns
	done     chan struct{}
	doneOnce sync.Once

	// Client count mirror for readers outside Run
	count atomic.Int64

	// Running state
	running atomic.Bool

	handlersMu sync.RWMutex
	onConnect  func(*Client)
	onMessage  func(*Client, []byte)

	logger *slog.Logger
}

// New creates a new Hub
func New(name string) *Hub {
	return &Hub{
		name:       name,
		clients:    make(map[*Client]bool),
		broadcast:  make(chan Message, 256),
		direct:     make(chan directMessage, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		logger:     log.Component("hub").With("hub", name),
	}
}

// Name returns the hub name
func (h *Hub) Name() string {
	return h.name
}

// OnConnect sets a callback run after a client registers.
// Use SendTo from it to greet the client.
func (h *Hub) OnConnect(fn func(*Client)) {
	h.handlersMu.Lock()
	h.onConnect = fn
	h.handlersMu.Unlock()
}

// OnMessage sets the callback for text messages received from clients.
// It runs on the client's read goroutine.
func (h *Hub) OnMessage(fn func(*Client, []byte)) {
	h.handlersMu.Lock()
	h.onMessage = fn
	h.handlersMu.Unlock()
}

// Run starts the hub's main loop and blocks until ctx is done.
// On return every client's send channel is closed, which closes its socket.
func (h *Hub) Run(ctx context.Context) {
	h.running.Store(true)
	defer func() {
		h.running.Store(false)
		for client := range h.clients {
			close(client.send)
			delete(h.clients, client)
		}
		h.setCount()
		h.doneOnce.Do(func() { close(h.done) })
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case client := <-h.register:
			h.clients[client] = true
			h.setCount()
			h.logger.Info("client connected", "client", client.id, "remote", client.RemoteAddr(), "total", len(h.clients))

		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			h.setCount()
			h.logger.Info("client disconnected",
				"client", client.id,
				"connected_for", time.Since(client.connectedAt).Round(time.Second),
				"remaining", len(h.clients))

		case message := <-h.broadcast:
			for client := range h.clients {
				h.deliver(client, message)
			}

		case dm := <-h.direct:
			if _, ok := h.clients[dm.client]; ok {
				h.deliver(dm.client, dm.msg)
			}
		}
	}
}

// deliver queues a message for one client, dropping the client if its
// buffer is full. Only called from Run.
func (h *Hub) deliver(client *Client, msg Message) {
	select {
	case client.send <- msg:
	default:
		// Client's buffer is full - they're too slow
		close(client.send)
		delete(h.clients, client)
		h.setCount()
		metrics.MessagesDroppedTotal.WithLabelValues(h.name).Inc()
		h.logger.Warn("dropped slow client", "client", client.id)
	}
}

func (h *Hub) setCount() {
	n := len(h.clients)
	h.count.Store(int64(n))
	metrics.Viewers.WithLabelValues(h.name).Set(float64(n))
}

// leave unregisters a client unless the hub has already stopped
func (h *Hub) leave(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// dispatch hands an inbound client message to the OnMessage callback
func (h *Hub) dispatch(c *Client, data []byte) {
	h.handlersMu.RLock()
	fn := h.onMessage
	h.handlersMu.RUnlock()
	if fn != nil {
		fn(c, data)
	}
}

// Broadcast sends a message to all connected clients
func (h *Hub) Broadcast(msg Message) {
	select {
	case h.broadcast <- msg:
	default:
		// Broadcast channel full - drop message
		metrics.MessagesDroppedTotal.WithLabelValues(h.name).Inc()
		h.logger.Warn("broadcast channel full, dropping message")
	}
}

// BroadcastJSON encodes and broadcasts a JSON message
func (h *Hub) BroadcastJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	h.Broadcast(NewJSONMessage(data))
	return nil
}

// SendTo queues a message for a single client
func (h *Hub) SendTo(c *Client, msg Message) {
	select {
	case h.direct <- directMessage{client: c, msg: msg}:
	default:
		metrics.MessagesDroppedTotal.WithLabelValues(h.name).Inc()
		h.logger.Warn("direct channel full, dropping message", "client", c.id)
	}
}

// SendJSONTo encodes v and queues it for a single client
func (h *Hub) SendJSONTo(c *Client, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	h.SendTo(c, NewJSONMessage(data))
	return nil
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	return int(h.count.Load())
}

// IsRunning returns whether the hub is running
func (h *Hub) IsRunning() bool {
	return h.running.Load()
}

// Serve registers conn and blocks until it disconnects.
// Use it as the body of a websocket handler.
func (h *Hub) Serve(conn *websocket.Conn) {
	client, ok := newClient(h, conn)
	if !ok {
		conn.Close()
		return
	}

	h.handlersMu.RLock()
	fn := h.onConnect
	h.handlersMu.RUnlock()
	if fn != nil {
		fn(client)
	}

	client.run()
}

// Handler returns a fiber handler that upgrades and serves websocket clients.
// Mount it behind a route that checks websocket.IsWebSocketUpgrade.
func (h *Hub) Handler() fiber.Handler {
	return websocket.New(h.Serve)
}
