// edgeview: headless viewer that saves streamed edge frames to disk.
package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/google/renameio"

	"github.com/teslashibe/go-edgedetector/internal/config"
	"github.com/teslashibe/go-edgedetector/internal/log"
	"github.com/teslashibe/go-edgedetector/pkg/protocol"
	"github.com/teslashibe/go-edgedetector/pkg/viewer"
)

func main() {
	var (
		url      = flag.String("url", fmt.Sprintf("ws://localhost:%d", config.DefaultPort), "Frame server websocket URL")
		dir      = flag.String("dir", "frames", "Directory to save frames into")
		latest   = flag.Bool("latest", false, "Overwrite a single latest.png instead of numbering frames")
		interval = flag.Duration("reconnect", viewer.DefaultReconnectInterval, "Reconnect backoff step")
		attempts = flag.Int("attempts", viewer.DefaultMaxReconnectAttempts, "Maximum reconnect attempts")
	)
	flag.Parse()
	log.Init(config.EnvOr("LOG_LEVEL", config.DefaultLogLevel))

	if err := os.MkdirAll(*dir, 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "edgeview: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	s := &saver{dir: *dir, latest: *latest}
	client := viewer.New(*url, viewer.WithReconnect(*interval, *attempts))

	log.Info("viewing", "url", *url, "dir", *dir)
	if err := client.Run(ctx, s); err != nil {
		log.Error("viewer stopped", "error", err)
		os.Exit(1)
	}
	log.Info("done", "frames", client.Frames())
}

// saver writes each frame atomically so readers never see a partial PNG.
type saver struct {
	dir    string
	latest bool
	n      int
}

func (s *saver) OnFrame(png []byte, _ *protocol.StatsData) {
	name := "latest.png"
	if !s.latest {
		name = fmt.Sprintf("frame-%06d.png", s.n)
	}
	s.n++

	if err := writeAtomic(filepath.Join(s.dir, name), png); err != nil {
		log.Warn("save frame", "file", name, "error", err)
	}
}

func (s *saver) OnStats(st protocol.StatsData) {
	log.Info("stats",
		"fps", st.FPS,
		"resolution", st.Resolution,
		"frames", st.FrameCount,
		"processing_ms", st.ProcessingTime,
		"avg_processing_ms", st.AvgProcessing,
		"updated", st.LastUpdated)
}

func (s *saver) OnStatus(st protocol.StatusData) {
	log.Info("connected", "server", st.Server, "viewers", st.Viewers, "processing", st.Processing, "version", st.Version)
}

func writeAtomic(path string, data []byte) error {
	o, err := renameio.TempFile("", path)
	if err != nil {
		return err
	}
	defer o.Cleanup()

	if _, err := io.Copy(o, bytes.NewReader(data)); err != nil {
		return err
	}
	return o.CloseAtomicallyReplace()
}

var _ viewer.Handler = (*saver)(nil)
