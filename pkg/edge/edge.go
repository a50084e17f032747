// Package edge turns NV21 camera frames into PNG-encoded Canny edge maps.
//
// The pipeline is fixed: NV21 -> BGR, Canny, gray -> BGR, PNG. Every call
// allocates and releases its own OpenCV buffers, so a Processor can be shared
// between goroutines as long as each call gets its own input slice.
package edge

import (
	"errors"
	"fmt"
	"image"

	"github.com/teslashibe/go-edgedetector/pkg/nv21"
	"gocv.io/x/gocv"
)

var (
	// ErrInvalidDimensions is returned for non-positive or odd frame sizes.
	ErrInvalidDimensions = errors.New("invalid input dimensions")

	// ErrBufferTooSmall is returned when the frame is shorter than w*h*3/2.
	ErrBufferTooSmall = errors.New("buffer too small")

	// ErrEmptyResult is returned when OpenCV produces an empty image.
	ErrEmptyResult = errors.New("empty result")
)

// Thresholds are the Canny hysteresis thresholds on gradient magnitude.
type Thresholds struct {
	Low  float64 `json:"low"`
	High float64 `json:"high"`
}

// DefaultThresholds returns the fixed pipeline thresholds (100, 200).
func DefaultThresholds() Thresholds {
	return Thresholds{Low: 100, High: 200}
}

// Processor runs the frame pipeline.
type Processor struct {
	thresholds Thresholds
}

// Option configures a Processor.
type Option func(*Processor)

// WithThresholds overrides the Canny thresholds.
func WithThresholds(t Thresholds) Option {
	return func(p *Processor) {
		p.thresholds = t
	}
}

// New creates a Processor with the default thresholds unless overridden.
func New(opts ...Option) *Processor {
	p := &Processor{thresholds: DefaultThresholds()}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Thresholds returns the processor's Canny thresholds.
func (p *Processor) Thresholds() Thresholds {
	return p.thresholds
}

var defaultProcessor = New()

// Process converts an NV21 frame into a PNG of its Canny edge map using the
// default thresholds.
func Process(frame []byte, width, height int) ([]byte, error) {
	return defaultProcessor.Process(frame, width, height)
}

// MaxDimension is the largest accepted frame width or height.
const MaxDimension = nv21.MaxDimension

// FrameSize returns the minimum NV21 buffer length for a w x h frame.
func FrameSize(width, height int) int {
	return nv21.Size(width, height)
}

// Validate checks the call preconditions without touching OpenCV.
func Validate(frame []byte, width, height int) error {
	if width <= 0 || height <= 0 {
		return fmt.Errorf("%w: %dx%d", ErrInvalidDimensions, width, height)
	}
	if width > MaxDimension || height > MaxDimension {
		return fmt.Errorf("%w: %dx%d exceeds %d", ErrInvalidDimensions, width, height, MaxDimension)
	}
	if width%2 != 0 || height%2 != 0 {
		return fmt.Errorf("%w: %dx%d is not 4:2:0 aligned", ErrInvalidDimensions, width, height)
	}
	if need := FrameSize(width, height); len(frame) < need {
		return fmt.Errorf("%w: got %d bytes, need %d for %dx%d", ErrBufferTooSmall, len(frame), need, width, height)
	}
	return nil
}

// Process converts an NV21 frame into a PNG of its Canny edge map.
// The PNG is width x height with three identical channels.
// frame is only read; bytes past FrameSize are ignored.
func (p *Processor) Process(frame []byte, width, height int) ([]byte, error) {
	edges, err := p.detect(frame, width, height)
	if err != nil {
		return nil, err
	}
	defer edges.Close()

	out := gocv.NewMat()
	defer out.Close()

	gocv.CvtColor(edges, &out, gocv.ColorGrayToBGR)
	if out.Empty() {
		return nil, fmt.Errorf("expand edge map: %w", ErrEmptyResult)
	}

	buf, err := gocv.IMEncode(gocv.PNGFileExt, out)
	if err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	defer buf.Close()

	// GetBytes aliases C memory that Close frees
	encoded := buf.GetBytes()
	png := make([]byte, len(encoded))
	copy(png, encoded)
	return png, nil
}

// EdgeMap runs the conversion and edge detection steps and returns the
// single channel edge map. Pixels are 0 or 255.
func (p *Processor) EdgeMap(frame []byte, width, height int) (*image.Gray, error) {
	edges, err := p.detect(frame, width, height)
	if err != nil {
		return nil, err
	}
	defer edges.Close()

	pix := edges.ToBytes()
	if len(pix) != width*height {
		return nil, fmt.Errorf("edge map has %d bytes, want %d: %w", len(pix), width*height, ErrEmptyResult)
	}

	return &image.Gray{
		Pix:    pix,
		Stride: width,
		Rect:   image.Rect(0, 0, width, height),
	}, nil
}

// detect returns the Canny edge map. The caller owns the returned Mat.
func (p *Processor) detect(frame []byte, width, height int) (gocv.Mat, error) {
	if err := Validate(frame, width, height); err != nil {
		return gocv.Mat{}, err
	}

	yuv, err := loadNV21(frame, width, height)
	if err != nil {
		return gocv.Mat{}, err
	}
	defer yuv.Close()

	bgr := gocv.NewMat()
	defer bgr.Close()

	gocv.CvtColor(yuv, &bgr, gocv.ColorYUVToBGRNV21)
	if bgr.Empty() {
		return gocv.Mat{}, fmt.Errorf("nv21 to bgr: %w", ErrEmptyResult)
	}

	edges := gocv.NewMat()
	gocv.Canny(bgr, &edges, float32(p.thresholds.Low), float32(p.thresholds.High))
	if edges.Empty() {
		edges.Close()
		return gocv.Mat{}, fmt.Errorf("canny: %w", ErrEmptyResult)
	}

	return edges, nil
}

// loadNV21 copies the frame into an OpenCV-owned (h*3/2) x w single channel
// Mat. OpenCV never sees the caller's slice, so nothing is written back.
func loadNV21(frame []byte, width, height int) (gocv.Mat, error) {
	yuv := gocv.NewMatWithSize(height+height/2, width, gocv.MatTypeCV8UC1)

	dst, err := yuv.DataPtrUint8()
	if err != nil {
		yuv.Close()
		return gocv.Mat{}, fmt.Errorf("map nv21 buffer: %w", err)
	}
	copy(dst, frame[:FrameSize(width, height)])

	return yuv, nil
}
