// Package pipeline runs frames from a source through the edge processor
// and fans the results out to viewers.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/teslashibe/go-edgedetector/internal/log"
	"github.com/teslashibe/go-edgedetector/pkg/debug"
	"github.com/teslashibe/go-edgedetector/pkg/metrics"
	"github.com/teslashibe/go-edgedetector/pkg/protocol"
	"github.com/teslashibe/go-edgedetector/pkg/source"
	"github.com/teslashibe/go-edgedetector/pkg/stats"
)

// DefaultStatsEvery is how many frames pass between stats broadcasts.
const DefaultStatsEvery = 30

// Processor turns one NV21 frame into PNG bytes.
type Processor interface {
	Process(frame []byte, width, height int) ([]byte, error)
}

// Broadcaster delivers JSON messages to connected viewers.
type Broadcaster interface {
	BroadcastJSON(v any) error
	ClientCount() int
}

// Result is one processed frame.
type Result struct {
	PNG       []byte
	Width     int
	Height    int
	Seq       uint64
	Captured  time.Time
	Processed time.Time
	Duration  time.Duration
}

// FrameError reports a frame the processor rejected.
// The loop logs it and moves on.
type FrameError struct {
	Seq uint64
	Err error
}

func (e *FrameError) Error() string {
	return fmt.Sprintf("frame %d: %v", e.Seq, e.Err)
}

func (e *FrameError) Unwrap() error { return e.Err }

// Option configures a Runner.
type Option func(*Runner)

// WithInterval sets the minimum time between frames. Zero runs flat out.
func WithInterval(d time.Duration) Option {
	return func(r *Runner) { r.interval = d }
}

// WithStatsEvery sets how many frames pass between stats broadcasts.
func WithStatsEvery(n int) Option {
	return func(r *Runner) {
		if n > 0 {
			r.statsEvery = uint64(n)
		}
	}
}

// Runner pulls frames from a source, processes them and broadcasts them.
type Runner struct {
	source      source.Source
	processor   Processor
	tracker     *stats.Tracker
	broadcaster Broadcaster

	interval   time.Duration
	statsEvery uint64

	latestMu sync.RWMutex
	latest   *Result

	running atomic.Bool
	logger  *slog.Logger
}

// New creates a Runner. broadcaster may be nil for headless processing.
func New(src source.Source, proc Processor, tracker *stats.Tracker, broadcaster Broadcaster, opts ...Option) *Runner {
	r := &Runner{
		source:      src,
		processor:   proc,
		tracker:     tracker,
		broadcaster: broadcaster,
		statsEvery:  DefaultStatsEvery,
		logger:      log.Component("pipeline"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Step pulls and processes a single frame. Source errors are returned
// unchanged. Processing failures are returned as *FrameError.
func (r *Runner) Step(ctx context.Context) (*Result, error) {
	frame, err := r.source.Next(ctx)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	png, err := r.processor.Process(frame.Data, frame.Width, frame.Height)
	elapsed := time.Since(start)
	if err != nil {
		metrics.FramesProcessedTotal.WithLabelValues(metrics.ResultError).Inc()
		return nil, &FrameError{Seq: frame.Seq, Err: err}
	}

	metrics.FramesProcessedTotal.WithLabelValues(metrics.ResultOK).Inc()
	metrics.FrameProcessingDuration.Observe(elapsed.Seconds())
	metrics.FrameBytes.Observe(float64(len(png)))
	r.tracker.Observe(elapsed)

	res := &Result{
		PNG:       png,
		Width:     frame.Width,
		Height:    frame.Height,
		Seq:       frame.Seq,
		Captured:  frame.Captured,
		Processed: time.Now(),
		Duration:  elapsed,
	}

	r.latestMu.Lock()
	r.latest = res
	r.latestMu.Unlock()

	viewers := r.viewers()
	debug.FrameLog("frame processed",
		"seq", frame.Seq,
		"bytes", len(png),
		"ms", float64(elapsed.Microseconds())/1000,
		"viewers", viewers)

	if viewers > 0 {
		r.publish(res)
	}
	return res, nil
}

// publish broadcasts the frame, plus a stats message on every
// statsEvery-th frame.
func (r *Runner) publish(res *Result) {
	msg, err := protocol.NewFrameMessage(res.PNG, nil)
	if err != nil {
		r.logger.Warn("encode frame message", "seq", res.Seq, "error", err)
		return
	}
	if err := r.broadcaster.BroadcastJSON(msg); err != nil {
		r.logger.Warn("broadcast frame", "seq", res.Seq, "error", err)
	}

	if r.tracker.Frames()%r.statsEvery != 0 {
		return
	}
	statsMsg, err := protocol.NewStatsMessage(r.tracker.Snapshot())
	if err != nil {
		r.logger.Warn("encode stats message", "error", err)
		return
	}
	if err := r.broadcaster.BroadcastJSON(statsMsg); err != nil {
		r.logger.Warn("broadcast stats", "error", err)
	}
}

func (r *Runner) viewers() int {
	if r.broadcaster == nil {
		return 0
	}
	return r.broadcaster.ClientCount()
}

// Run processes frames until ctx is done or the source is exhausted.
// Rejected frames are logged and skipped. Any other source error stops
// the loop and is returned.
func (r *Runner) Run(ctx context.Context) error {
	r.running.Store(true)
	defer r.running.Store(false)

	var tick <-chan time.Time
	if r.interval > 0 {
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	r.logger.Info("pipeline started", "interval", r.interval)

	for {
		if _, err := r.Step(ctx); err != nil {
			var fe *FrameError
			switch {
			case errors.As(err, &fe):
				r.logger.Warn("frame rejected", "seq", fe.Seq, "error", fe.Err)
			case ctx.Err() != nil:
				return nil
			case errors.Is(err, io.EOF):
				r.logger.Info("source exhausted", "frames", r.tracker.Frames())
				return nil
			default:
				return fmt.Errorf("pipeline source: %w", err)
			}
		}

		if tick == nil {
			if ctx.Err() != nil {
				return nil
			}
			continue
		}

		select {
		case <-ctx.Done():
			return nil
		case <-tick:
		}
	}
}

// Latest returns the most recent result, or nil before the first frame.
func (r *Runner) Latest() *Result {
	r.latestMu.RLock()
	defer r.latestMu.RUnlock()
	return r.latest
}

// Running reports whether Run is active.
func (r *Runner) Running() bool {
	return r.running.Load()
}

// Stats returns the current throughput snapshot.
func (r *Runner) Stats() protocol.StatsData {
	return r.tracker.Snapshot()
}
