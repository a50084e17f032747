// edgedetector: streams Canny edge maps of camera frames to websocket viewers.
// Viewers connect to ws://<host>:8765 and receive {"type":"frame","data":"<base64 png>"}.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/teslashibe/go-edgedetector/internal/config"
	"github.com/teslashibe/go-edgedetector/internal/log"
	"github.com/teslashibe/go-edgedetector/pkg/debug"
	"github.com/teslashibe/go-edgedetector/pkg/edge"
	"github.com/teslashibe/go-edgedetector/pkg/hub"
	"github.com/teslashibe/go-edgedetector/pkg/pipeline"
	"github.com/teslashibe/go-edgedetector/pkg/server"
	"github.com/teslashibe/go-edgedetector/pkg/source"
	"github.com/teslashibe/go-edgedetector/pkg/stats"
)

var version = "1.0.0"

func main() {
	cfg := config.Load()

	flag.IntVar(&cfg.Port, "port", cfg.Port, "HTTP and websocket port")
	flag.StringVar(&cfg.Source, "source", cfg.Source, "Frame source: pattern, raw:<path|->, camera:<index>")
	flag.IntVar(&cfg.Width, "width", cfg.Width, "Frame width")
	flag.IntVar(&cfg.Height, "height", cfg.Height, "Frame height")
	flag.IntVar(&cfg.FPS, "fps", cfg.FPS, "Maximum frames processed per second")
	flag.Float64Var(&cfg.CannyLow, "low", cfg.CannyLow, "Canny low threshold")
	flag.Float64Var(&cfg.CannyHigh, "high", cfg.CannyHigh, "Canny high threshold")
	flag.StringVar(&cfg.WebDir, "web", cfg.WebDir, "Directory served at /viewer")
	flag.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level: debug, info, warn, error")
	flag.BoolVar(&cfg.Debug, "debug", cfg.Debug, "Enable debug logging and request logs")
	debugFrames := flag.Bool("debug-frames", false, "Log every processed frame")
	flag.Parse()

	if cfg.Debug {
		cfg.LogLevel = "debug"
	}
	log.Init(cfg.LogLevel)
	debug.Enabled = cfg.Debug
	debug.Frames = *debugFrames

	if errs := cfg.Validate(); len(errs) > 0 {
		fmt.Fprintf(os.Stderr, "invalid configuration:\n  %s\n", strings.Join(errs, "\n  "))
		os.Exit(2)
	}

	if err := run(cfg); err != nil {
		log.Error("edgedetector failed", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config) error {
	src, err := source.Open(cfg.Source, cfg.Width, cfg.Height)
	if err != nil {
		return fmt.Errorf("open source: %w", err)
	}
	defer src.Close()

	proc := edge.New(edge.WithThresholds(edge.Thresholds{Low: cfg.CannyLow, High: cfg.CannyHigh}))
	viewers := hub.New("viewers")
	runner := pipeline.New(src, proc, stats.NewTracker(cfg.Width, cfg.Height), viewers,
		pipeline.WithInterval(time.Second/time.Duration(cfg.FPS)))

	server.Version = version
	srv := server.New(server.Config{
		Port:   cfg.Port,
		WebDir: cfg.WebDir,
		Debug:  cfg.Debug,
	}, viewers, runner, proc)

	log.Info("starting edgedetector",
		"version", version,
		"source", cfg.Source,
		"size", stats.Resolution(cfg.Width, cfg.Height),
		"fps", cfg.FPS,
		"canny_low", cfg.CannyLow,
		"canny_high", cfg.CannyHigh)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		viewers.Run(ctx)
		return nil
	})
	eg.Go(func() error {
		return srv.Run(ctx)
	})
	eg.Go(func() error {
		// A finished source leaves the server up so the last frame stays
		// available over the API.
		return runner.Run(ctx)
	})

	err = eg.Wait()
	log.Info("shut down", "frames", runner.Stats().FrameCount)
	return err
}
