// Package metrics exposes Prometheus collectors for the frame pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Result labels for FramesProcessedTotal.
const (
	ResultOK    = "ok"
	ResultError = "error"
)

var (
	// FramesProcessedTotal counts frames run through the processor, labelled ResultOK or ResultError.
	FramesProcessedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "edgedetector_frames_processed_total",
		Help: "Total number of frames run through the edge pipeline, by result",
	}, []string{"result"})

	// FrameProcessingDuration observes NV21 to PNG processing time per successful frame.
	FrameProcessingDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "edgedetector_frame_processing_seconds",
		Help:    "Duration of NV21 to PNG edge processing per frame",
		Buckets: []float64{.001, .0025, .005, .01, .02, .04, .08, .16, .32},
	})

	// FrameBytes observes the size of each encoded PNG.
	FrameBytes = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "edgedetector_frame_png_bytes",
		Help:    "Size of encoded PNG frames",
		Buckets: prometheus.ExponentialBuckets(1024, 2, 12),
	})

	// Viewers is the number of connected websocket viewers per hub.
	Viewers = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "edgedetector_viewers",
		Help: "Number of connected websocket viewers, by hub",
	}, []string{"hub"})

	// MessagesDroppedTotal counts messages dropped on full hub or client buffers.
	MessagesDroppedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "edgedetector_messages_dropped_total",
		Help: "Messages dropped because a hub or viewer buffer was full",
	}, []string{"hub"})
)
