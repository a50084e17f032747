// Package config provides configuration helpers for go-edgedetector commands.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/teslashibe/go-edgedetector/pkg/nv21"
)

// Defaults: a 640x480 preview streamed on port 8765.
const (
	DefaultPort        = 8765
	DefaultSource      = "pattern"
	DefaultWidth       = 640
	DefaultHeight      = 480
	DefaultFPS         = 15
	DefaultCannyLow    = 100.0
	DefaultCannyHigh   = 200.0
	DefaultLogLevel    = "info"
	MaxFrameDimension  = nv21.MaxDimension
	MaxFramesPerSecond = 120
)

// Config holds the server configuration.
type Config struct {
	Port      int     `json:"port"`
	Source    string  `json:"source"`     // pattern, raw:<path>, camera:<index>
	Width     int     `json:"width"`      // Frame width in pixels
	Height    int     `json:"height"`     // Frame height in pixels
	FPS       int     `json:"fps"`        // Upper bound on processed frames per second
	CannyLow  float64 `json:"canny_low"`  // Hysteresis low threshold
	CannyHigh float64 `json:"canny_high"` // Hysteresis high threshold
	WebDir    string  `json:"web_dir"`    // Optional static viewer directory
	LogLevel  string  `json:"log_level"`
	Debug     bool    `json:"debug"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Port:      DefaultPort,
		Source:    DefaultSource,
		Width:     DefaultWidth,
		Height:    DefaultHeight,
		FPS:       DefaultFPS,
		CannyLow:  DefaultCannyLow,
		CannyHigh: DefaultCannyHigh,
		LogLevel:  DefaultLogLevel,
	}
}

// Load returns the default configuration overridden by EDGE_* env vars.
// Unparseable numbers keep their default.
func Load() Config {
	cfg := Default()
	cfg.Port = EnvInt("EDGE_PORT", cfg.Port)
	cfg.Source = EnvOr("EDGE_SOURCE", cfg.Source)
	cfg.Width = EnvInt("EDGE_WIDTH", cfg.Width)
	cfg.Height = EnvInt("EDGE_HEIGHT", cfg.Height)
	cfg.FPS = EnvInt("EDGE_FPS", cfg.FPS)
	cfg.CannyLow = EnvFloat("EDGE_CANNY_LOW", cfg.CannyLow)
	cfg.CannyHigh = EnvFloat("EDGE_CANNY_HIGH", cfg.CannyHigh)
	cfg.WebDir = EnvOr("EDGE_WEB_DIR", cfg.WebDir)
	cfg.LogLevel = EnvOr("LOG_LEVEL", cfg.LogLevel)
	cfg.Debug = EnvBool("EDGE_DEBUG", cfg.Debug)
	return cfg
}

// Validate checks if the config values are within valid ranges.
// Returns a list of validation errors, or nil if valid.
func (c *Config) Validate() []string {
	var errors []string

	if c.Port < 1 || c.Port > 65535 {
		errors = append(errors, "port must be between 1 and 65535")
	}
	if c.Source == "" {
		errors = append(errors, "source must not be empty")
	}

	// NV21 subsamples chroma 2x2, so both sides must be even
	if c.Width < 2 || c.Width > MaxFrameDimension || c.Width%2 != 0 {
		errors = append(errors, fmt.Sprintf("width must be even and between 2 and %d", MaxFrameDimension))
	}
	if c.Height < 2 || c.Height > MaxFrameDimension || c.Height%2 != 0 {
		errors = append(errors, fmt.Sprintf("height must be even and between 2 and %d", MaxFrameDimension))
	}
	if c.FPS < 1 || c.FPS > MaxFramesPerSecond {
		errors = append(errors, fmt.Sprintf("fps must be between 1 and %d", MaxFramesPerSecond))
	}

	if c.CannyLow < 0 || c.CannyHigh < 0 {
		errors = append(errors, "canny thresholds must not be negative")
	}
	if c.CannyLow > c.CannyHigh {
		errors = append(errors, "canny low threshold must not exceed the high threshold")
	}

	return errors
}

// EnvOr returns the value of key, or def if unset or blank.
func EnvOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

// EnvInt returns key parsed as an int, or def.
func EnvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return def
	}
	return n
}

// EnvFloat returns key parsed as a float64, or def.
func EnvFloat(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return def
	}
	return f
}

// EnvBool returns key parsed as a bool, or def.
func EnvBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		return def
	}
	return b
}
