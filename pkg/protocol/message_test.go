package protocol

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"
)

func TestNewMessage(t *testing.T) {
	tests := []struct {
		name    string
		msgType MessageType
		data    interface{}
		wantErr bool
	}{
		{
			name:    "stats message",
			msgType: TypeStats,
			data:    StatsData{FPS: 15, Resolution: "640 x 480", FrameCount: 10},
			wantErr: false,
		},
		{
			name:    "status message",
			msgType: TypeStatus,
			data:    StatusData{Server: "10.0.0.2:8765", Viewers: 1, Processing: "active"},
			wantErr: false,
		},
		{
			name:    "nil data",
			msgType: TypeRequestFrame,
			data:    nil,
			wantErr: false,
		},
		{
			name:    "unmarshalable data",
			msgType: TypeStats,
			data:    make(chan int),
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := NewMessage(tt.msgType, tt.data)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewMessage() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if tt.wantErr {
				return
			}
			if msg.Type != tt.msgType {
				t.Errorf("NewMessage() type = %v, want %v", msg.Type, tt.msgType)
			}
			if msg.Timestamp == 0 {
				t.Error("NewMessage() timestamp should be set")
			}
		})
	}
}

func TestFrameMessage(t *testing.T) {
	pngData := []byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A} // PNG signature
	stats := &StatsData{FPS: 14.5, FrameCount: 42, Mode: "Edge Detection"}

	msg, err := NewFrameMessage(pngData, stats)
	if err != nil {
		t.Fatalf("NewFrameMessage() error = %v", err)
	}

	if msg.Type != TypeFrame {
		t.Errorf("Type = %v, want %v", msg.Type, TypeFrame)
	}

	raw, err := msg.Bytes()
	if err != nil {
		t.Fatalf("Bytes() error = %v", err)
	}

	parsed, err := ParseMessage(raw)
	if err != nil {
		t.Fatalf("ParseMessage() error = %v", err)
	}

	decoded, err := parsed.FrameBytes()
	if err != nil {
		t.Fatalf("FrameBytes() error = %v", err)
	}
	if !bytes.Equal(decoded, pngData) {
		t.Errorf("FrameBytes() = %v, want %v", decoded, pngData)
	}

	if parsed.Stats == nil {
		t.Fatal("Stats should survive the round trip")
	}
	if parsed.Stats.FrameCount != 42 {
		t.Errorf("Stats.FrameCount = %v, want 42", parsed.Stats.FrameCount)
	}
}

func TestFrameMessageWireFormat(t *testing.T) {
	// The browser viewer reads message.type, message.data (a base64 string)
	// and message.stats.
	msg, err := NewFrameMessage([]byte("abc"), nil)
	if err != nil {
		t.Fatalf("NewFrameMessage() error = %v", err)
	}
	raw, _ := msg.Bytes()

	var parsed map[string]interface{}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		t.Fatalf("Failed to unmarshal as map: %v", err)
	}

	if parsed["type"] != "frame" {
		t.Errorf("type = %v, want frame", parsed["type"])
	}
	if parsed["data"] != "YWJj" {
		t.Errorf("data = %v, want YWJj", parsed["data"])
	}
	if _, ok := parsed["stats"]; ok {
		t.Error("stats should be omitted when nil")
	}
}

func TestFrameBytesWrongType(t *testing.T) {
	msg, _ := NewStatsMessage(StatsData{})
	if _, err := msg.FrameBytes(); err == nil {
		t.Error("FrameBytes() should fail on a stats message")
	}
}

func TestStatsMessage(t *testing.T) {
	msg, err := NewStatsMessage(StatsData{
		FPS:            15.2,
		Resolution:     "640 x 480",
		Mode:           "Edge Detection",
		FrameCount:     1247,
		ProcessingTime: 8.3,
		LastUpdated:    "12:00:00",
	})
	if err != nil {
		t.Fatalf("NewStatsMessage() error = %v", err)
	}

	raw, _ := msg.Bytes()
	var parsed struct {
		Data map[string]interface{} `json:"data"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	for _, key := range []string{"fps", "resolution", "mode", "frameCount", "processingTime", "lastUpdated"} {
		if _, ok := parsed.Data[key]; !ok {
			t.Errorf("stats field %q missing", key)
		}
	}

	stats, err := msg.GetStatsData()
	if err != nil {
		t.Fatalf("GetStatsData() error = %v", err)
	}
	if stats.FrameCount != 1247 {
		t.Errorf("FrameCount = %v, want 1247", stats.FrameCount)
	}
}

func TestStatusMessage(t *testing.T) {
	msg, err := NewStatusMessage(StatusData{Server: "192.168.1.5:8765", Viewers: 2, Processing: "active"})
	if err != nil {
		t.Fatalf("NewStatusMessage() error = %v", err)
	}

	status, err := msg.GetStatusData()
	if err != nil {
		t.Fatalf("GetStatusData() error = %v", err)
	}
	if status.Server != "192.168.1.5:8765" {
		t.Errorf("Server = %v", status.Server)
	}
	if status.Viewers != 2 {
		t.Errorf("Viewers = %v, want 2", status.Viewers)
	}
}

func TestPingPongMessage(t *testing.T) {
	pingMsg, err := NewPingMessage("test-123")
	if err != nil {
		t.Fatalf("NewPingMessage() error = %v", err)
	}

	if pingMsg.Type != TypePing {
		t.Errorf("Type = %v, want %v", pingMsg.Type, TypePing)
	}

	pingData, err := pingMsg.GetPingData()
	if err != nil {
		t.Fatalf("GetPingData() error = %v", err)
	}

	if pingData.ID != "test-123" {
		t.Errorf("ID = %v, want test-123", pingData.ID)
	}

	// Create pong response
	now := time.Now().UnixMilli()
	pongMsg, err := NewPongMessage("test-123", pingData.Timestamp, now)
	if err != nil {
		t.Fatalf("NewPongMessage() error = %v", err)
	}

	pongData, err := pongMsg.GetPongData()
	if err != nil {
		t.Fatalf("GetPongData() error = %v", err)
	}

	if pongData.ID != "test-123" {
		t.Errorf("ID = %v, want test-123", pongData.ID)
	}
	if pongData.LatencyMs < 0 {
		t.Errorf("LatencyMs = %v, should be >= 0", pongData.LatencyMs)
	}
}

func TestParseInvalidMessage(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{
			name:    "invalid json",
			input:   "not json",
			wantErr: true,
		},
		{
			name:    "missing type",
			input:   "{}",
			wantErr: true,
		},
		{
			name:    "viewer request",
			input:   `{"type":"request_frame"}`,
			wantErr: false,
		},
		{
			name:    "valid message",
			input:   `{"type":"ping","ts":1234567890}`,
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseMessage([]byte(tt.input))
			if (err != nil) != tt.wantErr {
				t.Errorf("ParseMessage() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func BenchmarkNewFrameMessage(b *testing.B) {
	pngData := make([]byte, 100*1024) // 100KB fake PNG

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		NewFrameMessage(pngData, nil)
	}
}

func BenchmarkParseMessage(b *testing.B) {
	msg, _ := NewFrameMessage(make([]byte, 100*1024), nil)
	raw, _ := msg.Bytes()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		ParseMessage(raw)
	}
}
