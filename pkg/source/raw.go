package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/teslashibe/go-edgedetector/pkg/nv21"
)

// Raw reads back-to-back NV21 frames of a fixed size from a reader,
// such as the output of `ffmpeg -pix_fmt nv21 -f rawvideo -`.
type Raw struct {
	r      io.Reader
	closer io.Closer
	width  int
	height int
	seq    uint64
}

// NewRaw wraps r. If r is an io.Closer, Close closes it.
func NewRaw(r io.Reader, width, height int) *Raw {
	raw := &Raw{r: r, width: width, height: height}
	if c, ok := r.(io.Closer); ok {
		raw.closer = c
	}
	return raw
}

// OpenRaw opens path for reading. "-" means stdin, which is never closed.
func OpenRaw(path string, width, height int) (*Raw, error) {
	if path == "-" {
		return &Raw{r: os.Stdin, width: width, height: height}, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open raw source: %w", err)
	}
	return NewRaw(f, width, height), nil
}

// Next reads one frame. It returns io.EOF at a clean frame boundary and
// io.ErrUnexpectedEOF when the stream stops mid-frame.
func (s *Raw) Next(ctx context.Context) (Frame, error) {
	if err := ctx.Err(); err != nil {
		return Frame{}, err
	}

	buf := make([]byte, nv21.Size(s.width, s.height))
	if _, err := io.ReadFull(s.r, buf); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return Frame{}, err
		}
		return Frame{}, fmt.Errorf("read frame %d: %w", s.seq, err)
	}

	f := Frame{
		Data:     buf,
		Width:    s.width,
		Height:   s.height,
		Seq:      s.seq,
		Captured: time.Now(),
	}
	s.seq++
	return f, nil
}

// Close closes the underlying reader when it owns one.
func (s *Raw) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}
