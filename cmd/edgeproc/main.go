// edgeproc: runs a single NV21 frame through the edge pipeline and writes a PNG.
//
//	ffmpeg -i in.jpg -pix_fmt nv21 -f rawvideo frame.nv21
//	edgeproc -in frame.nv21 -width 640 -height 480 -out edges.png
package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/google/renameio"

	"github.com/teslashibe/go-edgedetector/internal/config"
	"github.com/teslashibe/go-edgedetector/internal/log"
	"github.com/teslashibe/go-edgedetector/pkg/edge"
)

func main() {
	var (
		in     = flag.String("in", "-", "NV21 input file, - for stdin")
		out    = flag.String("out", "edges.png", "PNG output file")
		width  = flag.Int("width", config.DefaultWidth, "Frame width")
		height = flag.Int("height", config.DefaultHeight, "Frame height")
		low    = flag.Float64("low", config.EnvFloat("EDGE_CANNY_LOW", config.DefaultCannyLow), "Canny low threshold")
		high   = flag.Float64("high", config.EnvFloat("EDGE_CANNY_HIGH", config.DefaultCannyHigh), "Canny high threshold")
	)
	flag.Parse()
	log.Init(config.EnvOr("LOG_LEVEL", config.DefaultLogLevel))

	if err := run(*in, *out, *width, *height, edge.Thresholds{Low: *low, High: *high}); err != nil {
		fmt.Fprintf(os.Stderr, "edgeproc: %v\n", err)
		os.Exit(1)
	}
}

func run(in, out string, width, height int, t edge.Thresholds) error {
	frame, err := readInput(in)
	if err != nil {
		return err
	}

	png, err := edge.New(edge.WithThresholds(t)).Process(frame, width, height)
	if err != nil {
		return err
	}

	if err := renameio.WriteFile(out, png, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", out, err)
	}
	log.Info("wrote edge map", "out", out, "bytes", len(png), "width", width, "height", height)
	return nil
}

func readInput(in string) ([]byte, error) {
	if in == "-" {
		return io.ReadAll(os.Stdin)
	}
	data, err := os.ReadFile(in)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", in, err)
	}
	return data, nil
}
