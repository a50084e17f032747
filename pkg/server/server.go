// Package server exposes the edge pipeline over HTTP and websockets.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/teslashibe/go-edgedetector/internal/log"
	"github.com/teslashibe/go-edgedetector/pkg/edge"
	"github.com/teslashibe/go-edgedetector/pkg/hub"
	"github.com/teslashibe/go-edgedetector/pkg/nv21"
	"github.com/teslashibe/go-edgedetector/pkg/pipeline"
	"github.com/teslashibe/go-edgedetector/pkg/protocol"
)

// Version is reported by /health and in status messages.
var Version = "1.0.0"

// bodyLimit fits the largest frame the processor accepts.
var bodyLimit = nv21.Size(nv21.MaxDimension, nv21.MaxDimension)

const shutdownTimeout = 5 * time.Second

// Frames is the processing loop as seen by the server.
type Frames interface {
	Latest() *pipeline.Result
	Running() bool
	Stats() protocol.StatsData
}

// Config configures the server.
type Config struct {
	Port   int
	WebDir string // Served at /viewer when set
	Debug  bool   // Enables request logging
}

// Server is the HTTP and websocket front end.
type Server struct {
	app       *fiber.App
	cfg       Config
	hub       *hub.Hub
	frames    Frames
	processor *edge.Processor
	logger    *slog.Logger
}

// New wires routes onto a fiber app. It does not start listening.
func New(cfg Config, h *hub.Hub, frames Frames, proc *edge.Processor) *Server {
	if proc == nil {
		proc = edge.New()
	}
	s := &Server{
		cfg:       cfg,
		hub:       h,
		frames:    frames,
		processor: proc,
		logger:    log.Component("server"),
	}

	app := fiber.New(fiber.Config{
		AppName:               "edgedetector",
		DisableStartupMessage: true,
		BodyLimit:             bodyLimit,
	})

	// Middleware
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Content-Type",
	}))
	if cfg.Debug {
		app.Use(logger.New())
	}

	// Viewers connect to ws://host:port directly, so the root serves the
	// stream on upgrade and status JSON otherwise.
	app.Get("/", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return c.JSON(s.status())
	}, h.Handler())

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws", h.Handler())

	app.Get("/health", s.handleHealth)
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	api := app.Group("/api")
	api.Get("/status", func(c *fiber.Ctx) error {
		return c.JSON(s.status())
	})
	api.Get("/stats", s.handleStats)
	api.Post("/process", s.handleProcess)
	api.Get("/frame/latest", s.handleLatestFrame)

	if cfg.WebDir != "" {
		app.Static("/viewer", cfg.WebDir)
	}

	h.OnConnect(s.greet)
	h.OnMessage(s.handleMessage)

	s.app = app
	return s
}

// App returns the underlying fiber app.
func (s *Server) App() *fiber.App {
	return s.app
}

// Addr returns the listen address.
func (s *Server) Addr() string {
	return fmt.Sprintf(":%d", s.cfg.Port)
}

// Run listens until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.app.Listen(s.Addr())
	}()

	s.logger.Info("listening",
		"addr", s.Addr(),
		"viewer", fmt.Sprintf("ws://%s", advertisedAddr(s.cfg.Port)),
		"health", fmt.Sprintf("http://localhost:%d/health", s.cfg.Port))

	select {
	case err := <-errCh:
		return fmt.Errorf("listen %s: %w", s.Addr(), err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.app.ShutdownWithContext(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	s.logger.Info("stopped")
	return nil
}

func (s *Server) status() protocol.StatusData {
	processing := "inactive"
	if s.frames != nil && s.frames.Running() {
		processing = "active"
	}
	return protocol.StatusData{
		Server:     advertisedAddr(s.cfg.Port),
		Viewers:    s.hub.ClientCount(),
		Processing: processing,
		Version:    Version,
	}
}

func (s *Server) handleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":  "ok",
		"version": Version,
		"viewers": s.hub.ClientCount(),
	})
}

func (s *Server) handleStats(c *fiber.Ctx) error {
	if s.frames == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "no pipeline"})
	}
	return c.JSON(s.frames.Stats())
}

// handleProcess runs one NV21 frame from the request body through the
// processor and replies with the PNG.
func (s *Server) handleProcess(c *fiber.Ctx) error {
	width := c.QueryInt("width")
	height := c.QueryInt("height")

	png, err := s.processor.Process(c.Body(), width, height)
	if err != nil {
		status := fiber.StatusInternalServerError
		if errors.Is(err, edge.ErrInvalidDimensions) || errors.Is(err, edge.ErrBufferTooSmall) {
			status = fiber.StatusBadRequest
		} else {
			s.logger.Error("process request failed", "width", width, "height", height, "error", err)
		}
		return c.Status(status).JSON(fiber.Map{"error": err.Error()})
	}

	c.Set(fiber.HeaderContentType, "image/png")
	return c.Send(png)
}

func (s *Server) handleLatestFrame(c *fiber.Ctx) error {
	var res *pipeline.Result
	if s.frames != nil {
		res = s.frames.Latest()
	}
	if res == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "no frame processed yet"})
	}

	c.Set(fiber.HeaderContentType, "image/png")
	c.Set("X-Frame-Seq", fmt.Sprint(res.Seq))
	c.Set("X-Frame-Size", fmt.Sprintf("%dx%d", res.Width, res.Height))
	return c.Send(res.PNG)
}
