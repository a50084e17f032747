package source

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
	"time"

	"gocv.io/x/gocv"

	"github.com/teslashibe/go-edgedetector/pkg/nv21"
)

// ErrCaptureFailed is returned when the device yields no frame.
var ErrCaptureFailed = errors.New("camera capture failed")

// Camera captures frames from a local video device and converts them to NV21.
type Camera struct {
	mu     sync.Mutex
	device *gocv.VideoCapture
	bgr    gocv.Mat
	width  int
	height int
	seq    uint64
	closed bool
}

// OpenCamera opens device index and scales its frames to width x height.
func OpenCamera(index, width, height int) (*Camera, error) {
	vc, err := gocv.OpenVideoCapture(index)
	if err != nil {
		return nil, fmt.Errorf("open camera %d: %w", index, err)
	}
	vc.Set(gocv.VideoCaptureFrameWidth, float64(width))
	vc.Set(gocv.VideoCaptureFrameHeight, float64(height))

	return &Camera{
		device: vc,
		bgr:    gocv.NewMat(),
		width:  width,
		height: height,
	}, nil
}

// Next grabs one frame from the device.
func (c *Camera) Next(ctx context.Context) (Frame, error) {
	if err := ctx.Err(); err != nil {
		return Frame{}, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return Frame{}, fmt.Errorf("camera closed: %w", ErrCaptureFailed)
	}
	if ok := c.device.Read(&c.bgr); !ok || c.bgr.Empty() {
		return Frame{}, ErrCaptureFailed
	}
	captured := time.Now()

	data, err := bgrToNV21(c.bgr, c.width, c.height)
	if err != nil {
		return Frame{}, err
	}

	f := Frame{
		Data:     data,
		Width:    c.width,
		Height:   c.height,
		Seq:      c.seq,
		Captured: captured,
	}
	c.seq++
	return f, nil
}

// Close releases the device.
func (c *Camera) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	c.bgr.Close()
	return c.device.Close()
}

// bgrToNV21 scales a BGR image and converts it via I420, the only 4:2:0
// layout OpenCV can produce from BGR.
func bgrToNV21(bgr gocv.Mat, width, height int) ([]byte, error) {
	scaled := gocv.NewMat()
	defer scaled.Close()
	gocv.Resize(bgr, &scaled, image.Pt(width, height), 0, 0, gocv.InterpolationLinear)

	i420 := gocv.NewMat()
	defer i420.Close()
	gocv.CvtColor(scaled, &i420, gocv.ColorBGRToYUVI420)
	if i420.Empty() {
		return nil, fmt.Errorf("convert to i420: %w", ErrCaptureFailed)
	}

	return nv21.FromI420(i420.ToBytes(), width, height)
}
