package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestFramesProcessedTotal(t *testing.T) {
	before := testutil.ToFloat64(FramesProcessedTotal.WithLabelValues(ResultOK))
	FramesProcessedTotal.WithLabelValues(ResultOK).Inc()
	after := testutil.ToFloat64(FramesProcessedTotal.WithLabelValues(ResultOK))

	if after-before != 1 {
		t.Errorf("counter delta = %v, want 1", after-before)
	}
}

func TestViewersGauge(t *testing.T) {
	Viewers.WithLabelValues("test").Set(3)
	if got := testutil.ToFloat64(Viewers.WithLabelValues("test")); got != 3 {
		t.Errorf("Viewers = %v, want 3", got)
	}
}

func TestCollectorsRegistered(t *testing.T) {
	FrameProcessingDuration.Observe(0.004)
	FrameBytes.Observe(2048)
	MessagesDroppedTotal.WithLabelValues("test").Inc()

	if n := testutil.CollectAndCount(FrameProcessingDuration); n != 1 {
		t.Errorf("FrameProcessingDuration series = %d, want 1", n)
	}
	if n := testutil.CollectAndCount(FrameBytes); n != 1 {
		t.Errorf("FrameBytes series = %d, want 1", n)
	}
}
