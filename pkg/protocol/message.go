// Package protocol defines the WebSocket message types exchanged with frame viewers.
// The wire format matches the browser viewer: {"type":"frame","data":"<base64>"}.
package protocol

import (
	"encoding/json"
	"fmt"
	"time"
)

// MessageType identifies the type of WebSocket message
type MessageType string

const (
	// Server → Viewer messages
	TypeFrame  MessageType = "frame"  // Processed PNG frame
	TypeStats  MessageType = "stats"  // Pipeline statistics
	TypeStatus MessageType = "status" // Server status

	// Viewer → Server messages
	TypeRequestFrame MessageType = "request_frame" // Ask for the latest frame

	// Bidirectional
	TypePing MessageType = "ping" // Health check
	TypePong MessageType = "pong" // Health check response
)

// Message is the base wrapper for all WebSocket messages
type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp int64           `json:"ts,omitempty"` // Unix milliseconds
	Data      json.RawMessage `json:"data,omitempty"`
	Stats     *StatsData      `json:"stats,omitempty"` // Only on frame messages
}

// NewMessage creates a new message with the current timestamp
func NewMessage(msgType MessageType, data any) (*Message, error) {
	var rawData json.RawMessage
	if data != nil {
		var err error
		rawData, err = json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal message data: %w", err)
		}
	}

	return &Message{
		Type:      msgType,
		Timestamp: time.Now().UnixMilli(),
		Data:      rawData,
	}, nil
}

// ParseData unmarshals the message data into the provided struct
func (m *Message) ParseData(v any) error {
	if m.Data == nil {
		return nil
	}
	return json.Unmarshal(m.Data, v)
}

// Bytes returns the JSON-encoded message
func (m *Message) Bytes() ([]byte, error) {
	return json.Marshal(m)
}

// ParseMessage parses a JSON message from bytes
func ParseMessage(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("failed to parse message: %w", err)
	}
	if msg.Type == "" {
		return nil, fmt.Errorf("failed to parse message: missing type")
	}
	return &msg, nil
}

// =============================================================================
// Payload Types
// =============================================================================

// StatsData mirrors the viewer's FrameStats fields.
type StatsData struct {
	FPS            float64 `json:"fps"`
	Resolution     string  `json:"resolution"`        // "640 x 480"
	Mode           string  `json:"mode"`              // "Edge Detection"
	FrameCount     uint64  `json:"frameCount"`
	ProcessingTime float64 `json:"processingTime"`    // Milliseconds, last frame
	AvgProcessing  float64 `json:"avgProcessingTime"` // Milliseconds, mean over all frames
	LastUpdated    string  `json:"lastUpdated"`       // Wall clock, 15:04:05
}

// StatusData describes the server to a newly connected viewer
type StatusData struct {
	Server     string `json:"server"`     // host:port viewers should use
	Viewers    int    `json:"viewers"`    // Connected viewer count
	Processing string `json:"processing"` // "active" or "inactive"
	Version    string `json:"version,omitempty"`
}

// PingData contains ping information
type PingData struct {
	ID        string `json:"id"`
	Timestamp int64  `json:"ts"`
}

// PongData contains pong response
type PongData struct {
	ID        string `json:"id"`
	PingTS    int64  `json:"ping_ts"`
	PongTS    int64  `json:"pong_ts"`
	LatencyMs int64  `json:"latency_ms"`
}
