// Package source produces NV21 frames for the processing loop.
package source

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrUnknownSource is returned by Open for an unrecognised source string.
var ErrUnknownSource = errors.New("unknown source")

// Frame is one NV21 frame with its capture metadata.
type Frame struct {
	Data     []byte
	Width    int
	Height   int
	Seq      uint64
	Captured time.Time
}

// Source yields frames until it is exhausted or closed.
// Next returns io.EOF when the stream ends cleanly.
type Source interface {
	Next(ctx context.Context) (Frame, error)
	Close() error
}

// Open builds a source from a descriptor:
//
//	pattern          synthetic moving rectangle
//	raw:<path>       raw NV21 frames from a file ("raw:-" reads stdin)
//	camera:<index>   a local capture device
func Open(desc string, width, height int) (Source, error) {
	kind, arg, _ := strings.Cut(desc, ":")

	switch kind {
	case "pattern":
		return NewPattern(width, height), nil

	case "raw":
		if arg == "" {
			return nil, fmt.Errorf("raw source needs a path: %w", ErrUnknownSource)
		}
		return OpenRaw(arg, width, height)

	case "camera":
		index := 0
		if arg != "" {
			n, err := strconv.Atoi(arg)
			if err != nil {
				return nil, fmt.Errorf("camera index %q: %w", arg, ErrUnknownSource)
			}
			index = n
		}
		return OpenCamera(index, width, height)
	}

	return nil, fmt.Errorf("%q: %w", desc, ErrUnknownSource)
}
