// Package stats tracks frame throughput for the processing loop.
package stats

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/teslashibe/go-edgedetector/pkg/protocol"
)

// ModeEdgeDetection is the only processing mode.
const ModeEdgeDetection = "Edge Detection"

// Tracker counts processed frames and their latency.
// It is goroutine-safe.
type Tracker struct {
	mu         sync.Mutex
	resolution string
	start      time.Time
	frames     uint64
	lastTime   time.Duration
	totalTime  time.Duration
	lastFrame  time.Time

	now func() time.Time
}

// NewTracker creates a tracker for frames of the given size.
func NewTracker(width, height int) *Tracker {
	return newTracker(width, height, time.Now)
}

func newTracker(width, height int, now func() time.Time) *Tracker {
	return &Tracker{
		resolution: Resolution(width, height),
		start:      now(),
		now:        now,
	}
}

// Resolution formats a frame size the way viewers display it.
func Resolution(width, height int) string {
	return fmt.Sprintf("%d x %d", width, height)
}

// Observe records one processed frame that took d.
func (t *Tracker) Observe(d time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.frames++
	t.lastTime = d
	t.totalTime += d
	t.lastFrame = t.now()
}

// Frames returns the number of processed frames.
func (t *Tracker) Frames() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.frames
}

// average is the mean processing time, or 0 before any frame.
// Callers hold t.mu.
func (t *Tracker) average() time.Duration {
	if t.frames == 0 {
		return 0
	}
	return t.totalTime / time.Duration(t.frames)
}

// Snapshot returns the current stats in wire form.
// FPS is frames over the time since the tracker started.
func (t *Tracker) Snapshot() protocol.StatsData {
	t.mu.Lock()
	defer t.mu.Unlock()

	var fps float64
	if elapsed := t.now().Sub(t.start); elapsed > 0 {
		fps = round1(float64(t.frames) / elapsed.Seconds())
	}

	lastUpdated := "--"
	if !t.lastFrame.IsZero() {
		lastUpdated = t.lastFrame.Format("15:04:05")
	}

	return protocol.StatsData{
		FPS:            fps,
		Resolution:     t.resolution,
		Mode:           ModeEdgeDetection,
		FrameCount:     t.frames,
		ProcessingTime: millis(t.lastTime),
		AvgProcessing:  millis(t.average()),
		LastUpdated:    lastUpdated,
	}
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

func millis(d time.Duration) float64 {
	return round1(float64(d.Microseconds()) / 1000)
}
