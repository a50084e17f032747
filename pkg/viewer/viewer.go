// Package viewer is a headless client for the edge frame stream.
// It mirrors the browser viewer: request the latest frame on connect,
// render frames and stats as they arrive, reconnect with linear backoff.
package viewer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/teslashibe/go-edgedetector/internal/log"
	"github.com/teslashibe/go-edgedetector/pkg/protocol"
)

// ErrMaxReconnects is returned by Run once every reconnect attempt failed.
var ErrMaxReconnects = errors.New("max reconnect attempts reached")

const (
	DefaultReconnectInterval    = 5 * time.Second
	DefaultMaxReconnectAttempts = 10
	MaxReconnectDelay           = 30 * time.Second
	handshakeTimeout            = 10 * time.Second
)

// Handler receives decoded server messages. Methods run on the read
// goroutine and should return quickly.
type Handler interface {
	OnFrame(png []byte, stats *protocol.StatsData)
	OnStats(stats protocol.StatsData)
	OnStatus(status protocol.StatusData)
}

// Funcs adapts plain functions to Handler. Nil fields are ignored.
type Funcs struct {
	Frame  func(png []byte, stats *protocol.StatsData)
	Stats  func(stats protocol.StatsData)
	Status func(status protocol.StatusData)
}

func (f Funcs) OnFrame(png []byte, stats *protocol.StatsData) {
	if f.Frame != nil {
		f.Frame(png, stats)
	}
}

func (f Funcs) OnStats(stats protocol.StatsData) {
	if f.Stats != nil {
		f.Stats(stats)
	}
}

func (f Funcs) OnStatus(status protocol.StatusData) {
	if f.Status != nil {
		f.Status(status)
	}
}

// Option configures a Client.
type Option func(*Client)

// WithReconnect sets the backoff step and the attempt limit.
func WithReconnect(interval time.Duration, maxAttempts int) Option {
	return func(c *Client) {
		c.interval = interval
		c.maxAttempts = maxAttempts
	}
}

// Client connects to a frame server and keeps the connection alive.
type Client struct {
	url         string
	dialer      websocket.Dialer
	interval    time.Duration
	maxAttempts int

	connected atomic.Bool
	frames    atomic.Uint64
	logger    *slog.Logger
}

// New creates a client for url, e.g. "ws://192.168.1.20:8765".
func New(url string, opts ...Option) *Client {
	c := &Client{
		url:         url,
		dialer:      websocket.Dialer{HandshakeTimeout: handshakeTimeout},
		interval:    DefaultReconnectInterval,
		maxAttempts: DefaultMaxReconnectAttempts,
		logger:      log.Component("viewer").With("url", url),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Connected reports whether a session is open.
func (c *Client) Connected() bool {
	return c.connected.Load()
}

// Frames returns the number of frames received across all sessions.
func (c *Client) Frames() uint64 {
	return c.frames.Load()
}

// Backoff returns the delay before reconnect attempt n (1-based).
func Backoff(interval time.Duration, attempt int) time.Duration {
	d := interval * time.Duration(attempt)
	if d > MaxReconnectDelay {
		return MaxReconnectDelay
	}
	return d
}

// Run connects and delivers messages to h until ctx is done. A session that
// got connected resets the attempt counter. Run returns nil on cancellation
// and ErrMaxReconnects when the server stays unreachable.
func (c *Client) Run(ctx context.Context, h Handler) error {
	attempts := 0
	for {
		connected, err := c.session(ctx, h)
		if ctx.Err() != nil {
			return nil
		}
		if connected {
			attempts = 0
		}

		if attempts >= c.maxAttempts {
			return fmt.Errorf("%w (%d): %v", ErrMaxReconnects, c.maxAttempts, err)
		}
		attempts++

		delay := Backoff(c.interval, attempts)
		c.logger.Warn("disconnected, retrying",
			"attempt", attempts,
			"max", c.maxAttempts,
			"delay", delay,
			"error", err)

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}
	}
}

// session runs one connection. connected reports whether the dial succeeded.
func (c *Client) session(ctx context.Context, h Handler) (connected bool, err error) {
	ws, _, err := c.dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return false, fmt.Errorf("dial: %w", err)
	}
	defer ws.Close()

	c.connected.Store(true)
	defer c.connected.Store(false)
	c.logger.Info("connected")

	// Unblock ReadMessage when ctx is cancelled.
	stop := context.AfterFunc(ctx, func() { ws.Close() })
	defer stop()

	req, err := protocol.NewRequestFrameMessage()
	if err != nil {
		return true, err
	}
	if err := ws.WriteJSON(req); err != nil {
		return true, fmt.Errorf("request frame: %w", err)
	}

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			return true, fmt.Errorf("read: %w", err)
		}
		c.dispatch(data, h)
	}
}

func (c *Client) dispatch(data []byte, h Handler) {
	msg, err := protocol.ParseMessage(data)
	if err != nil {
		c.logger.Warn("bad message", "error", err)
		return
	}

	switch msg.Type {
	case protocol.TypeFrame:
		png, err := msg.FrameBytes()
		if err != nil {
			c.logger.Warn("bad frame", "error", err)
			return
		}
		c.frames.Add(1)
		h.OnFrame(png, msg.Stats)

	case protocol.TypeStats:
		stats, err := msg.GetStatsData()
		if err != nil {
			c.logger.Warn("bad stats", "error", err)
			return
		}
		h.OnStats(*stats)

	case protocol.TypeStatus:
		status, err := msg.GetStatusData()
		if err != nil {
			c.logger.Warn("bad status", "error", err)
			return
		}
		h.OnStatus(*status)
	}
}
