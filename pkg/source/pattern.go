package source

import (
	"context"
	"time"

	"github.com/teslashibe/go-edgedetector/pkg/nv21"
)

const (
	patternBackground = 32
	patternForeground = 220
	patternStep       = 8
)

// Pattern generates frames with a bright rectangle sliding across a dark
// background. Frame n is the same for every Pattern of the same size.
type Pattern struct {
	width  int
	height int
	seq    uint64
	now    func() time.Time
}

// NewPattern returns a pattern source of the given size.
func NewPattern(width, height int) *Pattern {
	return &Pattern{width: width, height: height, now: time.Now}
}

// Next returns the next frame in the sequence.
func (p *Pattern) Next(ctx context.Context) (Frame, error) {
	if err := ctx.Err(); err != nil {
		return Frame{}, err
	}

	f := Frame{
		Data:     PatternFrame(p.width, p.height, p.seq),
		Width:    p.width,
		Height:   p.height,
		Seq:      p.seq,
		Captured: p.now(),
	}
	p.seq++
	return f, nil
}

// Close is a no-op.
func (p *Pattern) Close() error { return nil }

// PatternFrame renders frame seq of the pattern. The rectangle is a quarter
// of the frame in each dimension and wraps around horizontally.
func PatternFrame(width, height int, seq uint64) []byte {
	buf := nv21.Uniform(width, height, patternBackground)

	rw, rh := width/4, height/4
	if rw == 0 || rh == 0 {
		return buf
	}

	span := width - rw
	x0 := 0
	if span > 0 {
		x0 = int((seq * patternStep) % uint64(span))
	}
	y0 := (height - rh) / 2

	for y := y0; y < y0+rh; y++ {
		row := buf[y*width:]
		for x := x0; x < x0+rw; x++ {
			row[x] = patternForeground
		}
	}
	return buf
}
