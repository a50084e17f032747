// Package debug provides global debug logging flags
package debug

import (
	"fmt"

	"github.com/teslashibe/go-edgedetector/internal/log"
)

// Enabled controls whether debug logging is active
var Enabled bool

// Frames controls whether per-frame logs are shown (sizes, timings, viewers).
// Use --debug-frames to enable these very verbose logs
var Frames bool

// Log logs a formatted message only if debug mode is enabled
func Log(format string, args ...any) {
	if Enabled {
		log.Debug(fmt.Sprintf(format, args...))
	}
}

// FrameLog logs structured attributes only if frame debug mode is enabled
func FrameLog(msg string, args ...any) {
	if Frames {
		log.Component("frames").Info(msg, args...)
	}
}
