package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image/png"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	gorilla "github.com/gorilla/websocket"

	"github.com/teslashibe/go-edgedetector/pkg/edge"
	"github.com/teslashibe/go-edgedetector/pkg/hub"
	"github.com/teslashibe/go-edgedetector/pkg/nv21"
	"github.com/teslashibe/go-edgedetector/pkg/pipeline"
	"github.com/teslashibe/go-edgedetector/pkg/protocol"
	"github.com/teslashibe/go-edgedetector/pkg/source"
)

type fakeFrames struct {
	latest  *pipeline.Result
	running bool
}

func (f *fakeFrames) Latest() *pipeline.Result { return f.latest }
func (f *fakeFrames) Running() bool            { return f.running }
func (f *fakeFrames) Stats() protocol.StatsData {
	return protocol.StatsData{FPS: 15, Resolution: "64 x 48", Mode: "Edge Detection", FrameCount: 3, AvgProcessing: 4.5}
}

func newTestServer(frames Frames) *Server {
	return New(Config{Port: 8765}, hub.New("test"), frames, edge.New())
}

func TestHealth(t *testing.T) {
	s := newTestServer(nil)

	resp, err := s.App().Test(httptest.NewRequest("GET", "/health", nil))
	if err != nil {
		t.Fatalf("Request error: %v", err)
	}
	if resp.StatusCode != 200 {
		t.Errorf("Status = %d, want 200", resp.StatusCode)
	}

	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), `"status":"ok"`) {
		t.Errorf("body = %s", body)
	}
}

func TestStatus(t *testing.T) {
	for _, path := range []string{"/", "/api/status"} {
		t.Run(path, func(t *testing.T) {
			s := newTestServer(&fakeFrames{running: true})

			resp, err := s.App().Test(httptest.NewRequest("GET", path, nil))
			if err != nil {
				t.Fatalf("Request error: %v", err)
			}
			if resp.StatusCode != 200 {
				t.Fatalf("Status = %d, want 200", resp.StatusCode)
			}

			var status protocol.StatusData
			if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if status.Processing != "active" {
				t.Errorf("Processing = %q, want active", status.Processing)
			}
			if !strings.HasSuffix(status.Server, ":8765") {
				t.Errorf("Server = %q, want port 8765", status.Server)
			}
		})
	}
}

func TestStats(t *testing.T) {
	tests := []struct {
		name   string
		frames Frames
		want   int
	}{
		{"with pipeline", &fakeFrames{}, 200},
		{"without pipeline", nil, 503},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(tt.frames)
			resp, err := s.App().Test(httptest.NewRequest("GET", "/api/stats", nil))
			if err != nil {
				t.Fatalf("Request error: %v", err)
			}
			if resp.StatusCode != tt.want {
				t.Errorf("Status = %d, want %d", resp.StatusCode, tt.want)
			}
			if tt.want != 200 {
				return
			}
			body, _ := io.ReadAll(resp.Body)
			if !strings.Contains(string(body), `"avgProcessingTime":4.5`) {
				t.Errorf("stats body = %s, want avgProcessingTime", body)
			}
		})
	}
}

func TestProcess(t *testing.T) {
	const w, h = 64, 48
	frame := source.PatternFrame(w, h, 0)

	tests := []struct {
		name       string
		query      string
		body       []byte
		wantStatus int
	}{
		{"valid frame", fmt.Sprintf("width=%d&height=%d", w, h), frame, 200},
		{"missing dimensions", "", frame, 400},
		{"odd width", "width=63&height=48", frame, 400},
		{"short body", fmt.Sprintf("width=%d&height=%d", w, h), frame[:100], 400},
		{"dimensions over max", "width=8194&height=8194", nil, 400},
		{"dimensions that overflow", "width=4294967296&height=4294967296", nil, 400},
	}

	s := newTestServer(nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("POST", "/api/process?"+tt.query, bytes.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/octet-stream")

			resp, err := s.App().Test(req, 5000)
			if err != nil {
				t.Fatalf("Request error: %v", err)
			}
			if resp.StatusCode != tt.wantStatus {
				body, _ := io.ReadAll(resp.Body)
				t.Fatalf("Status = %d, want %d (%s)", resp.StatusCode, tt.wantStatus, body)
			}

			if tt.wantStatus != 200 {
				var body map[string]string
				json.NewDecoder(resp.Body).Decode(&body)
				if body["error"] == "" {
					t.Error("error response should carry an error message")
				}
				return
			}

			if ct := resp.Header.Get("Content-Type"); ct != "image/png" {
				t.Errorf("Content-Type = %q, want image/png", ct)
			}
			img, err := png.Decode(resp.Body)
			if err != nil {
				t.Fatalf("decode PNG: %v", err)
			}
			if got := img.Bounds().Size(); got.X != w || got.Y != h {
				t.Errorf("PNG size = %v, want %dx%d", got, w, h)
			}
		})
	}
}

func TestBodyLimitFitsLargestFrame(t *testing.T) {
	s := newTestServer(nil)
	if got, want := s.App().Config().BodyLimit, nv21.Size(nv21.MaxDimension, nv21.MaxDimension); got < want {
		t.Errorf("BodyLimit = %d, want at least %d", got, want)
	}
}

func TestLatestFrame(t *testing.T) {
	frames := &fakeFrames{}
	s := newTestServer(frames)

	resp, err := s.App().Test(httptest.NewRequest("GET", "/api/frame/latest", nil))
	if err != nil {
		t.Fatalf("Request error: %v", err)
	}
	if resp.StatusCode != 404 {
		t.Errorf("Status before first frame = %d, want 404", resp.StatusCode)
	}

	frames.latest = &pipeline.Result{PNG: []byte("png-bytes"), Width: 64, Height: 48, Seq: 9}
	resp, err = s.App().Test(httptest.NewRequest("GET", "/api/frame/latest", nil))
	if err != nil {
		t.Fatalf("Request error: %v", err)
	}
	if resp.StatusCode != 200 {
		t.Fatalf("Status = %d, want 200", resp.StatusCode)
	}
	if resp.Header.Get("X-Frame-Seq") != "9" {
		t.Errorf("X-Frame-Seq = %q, want 9", resp.Header.Get("X-Frame-Seq"))
	}
	body, _ := io.ReadAll(resp.Body)
	if string(body) != "png-bytes" {
		t.Errorf("body = %q", body)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(nil)

	resp, err := s.App().Test(httptest.NewRequest("GET", "/metrics", nil))
	if err != nil {
		t.Fatalf("Request error: %v", err)
	}
	if resp.StatusCode != 200 {
		t.Fatalf("Status = %d, want 200", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "go_goroutines") {
		t.Error("metrics output should include the default Go collectors")
	}
}

func TestWSRequiresUpgrade(t *testing.T) {
	s := newTestServer(nil)

	resp, err := s.App().Test(httptest.NewRequest("GET", "/ws", nil))
	if err != nil {
		t.Fatalf("Request error: %v", err)
	}
	if resp.StatusCode != 426 {
		t.Errorf("Status = %d, want 426", resp.StatusCode)
	}
}

func TestViewerSession(t *testing.T) {
	png := []byte{0x89, 'P', 'N', 'G'}
	frames := &fakeFrames{running: true, latest: &pipeline.Result{PNG: png, Width: 2, Height: 2}}
	h := hub.New("viewers")
	s := New(Config{Port: 18095}, h, frames, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.Run(ctx)
	go s.Run(ctx)
	time.Sleep(100 * time.Millisecond)

	for _, path := range []string{"/", "/ws"} {
		t.Run(path, func(t *testing.T) {
			ws, _, err := gorilla.DefaultDialer.Dial("ws://localhost:18095"+path, nil)
			if err != nil {
				t.Fatalf("WebSocket dial error: %v", err)
			}
			defer ws.Close()

			status := readMessage(t, ws)
			if status.Type != protocol.TypeStatus {
				t.Fatalf("first message type = %s, want status", status.Type)
			}

			req, _ := protocol.NewRequestFrameMessage()
			ws.WriteJSON(req)

			frame := readMessage(t, ws)
			if frame.Type != protocol.TypeFrame {
				t.Fatalf("reply type = %s, want frame", frame.Type)
			}
			data, err := frame.FrameBytes()
			if err != nil {
				t.Fatalf("FrameBytes error: %v", err)
			}
			if !bytes.Equal(data, png) {
				t.Errorf("frame data = %v, want %v", data, png)
			}
			if frame.Stats == nil || frame.Stats.FrameCount != 3 {
				t.Errorf("frame stats = %+v", frame.Stats)
			}

			ping, _ := protocol.NewPingMessage("p1")
			ws.WriteJSON(ping)

			pong := readMessage(t, ws)
			if pong.Type != protocol.TypePong {
				t.Fatalf("reply type = %s, want pong", pong.Type)
			}
			pd, err := pong.GetPongData()
			if err != nil {
				t.Fatalf("GetPongData error: %v", err)
			}
			if pd.ID != "p1" {
				t.Errorf("pong id = %q, want p1", pd.ID)
			}
		})
	}
}

func TestAdvertisedAddr(t *testing.T) {
	addr := advertisedAddr(8765)
	if !strings.HasSuffix(addr, ":8765") {
		t.Errorf("advertisedAddr = %q", addr)
	}
}

func TestProcessEndToEndMatchesLibrary(t *testing.T) {
	frame := nv21.Uniform(16, 16, 100)
	want, err := edge.Process(frame, 16, 16)
	if err != nil {
		t.Fatalf("edge.Process error: %v", err)
	}

	s := newTestServer(nil)
	resp, err := s.App().Test(httptest.NewRequest("POST", "/api/process?width=16&height=16", bytes.NewReader(frame)))
	if err != nil {
		t.Fatalf("Request error: %v", err)
	}
	got, _ := io.ReadAll(resp.Body)
	if !bytes.Equal(got, want) {
		t.Error("HTTP result should match edge.Process byte for byte")
	}
}

func readMessage(t *testing.T, ws *gorilla.Conn) *protocol.Message {
	t.Helper()
	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := ws.ReadMessage()
	if err != nil {
		t.Fatalf("read error: %v", err)
	}
	msg, err := protocol.ParseMessage(data)
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	return msg
}
