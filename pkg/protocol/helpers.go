package protocol

import (
	"encoding/base64"
	"fmt"
	"time"
)

// =============================================================================
// Helper functions for creating messages
// =============================================================================

// NewFrameMessage creates a frame message from PNG bytes.
// stats may be nil.
func NewFrameMessage(pngData []byte, stats *StatsData) (*Message, error) {
	msg, err := NewMessage(TypeFrame, base64.StdEncoding.EncodeToString(pngData))
	if err != nil {
		return nil, err
	}
	msg.Stats = stats
	return msg, nil
}

// NewStatsMessage creates a stats message
func NewStatsMessage(stats StatsData) (*Message, error) {
	return NewMessage(TypeStats, stats)
}

// NewStatusMessage creates a status message
func NewStatusMessage(status StatusData) (*Message, error) {
	return NewMessage(TypeStatus, status)
}

// NewRequestFrameMessage creates a request for the latest frame
func NewRequestFrameMessage() (*Message, error) {
	return NewMessage(TypeRequestFrame, nil)
}

// NewPingMessage creates a ping message
func NewPingMessage(id string) (*Message, error) {
	return NewMessage(TypePing, PingData{ID: id, Timestamp: time.Now().UnixMilli()})
}

// NewPongMessage creates a pong response message
func NewPongMessage(id string, pingTS, pongTS int64) (*Message, error) {
	return NewMessage(TypePong, PongData{
		ID:        id,
		PingTS:    pingTS,
		PongTS:    pongTS,
		LatencyMs: pongTS - pingTS,
	})
}

// =============================================================================
// Helper functions for parsing messages
// =============================================================================

// FrameBytes decodes the base64 PNG carried by a frame message
func (m *Message) FrameBytes() ([]byte, error) {
	if m.Type != TypeFrame {
		return nil, fmt.Errorf("not a frame message: %s", m.Type)
	}
	var encoded string
	if err := m.ParseData(&encoded); err != nil {
		return nil, fmt.Errorf("frame data: %w", err)
	}
	return base64.StdEncoding.DecodeString(encoded)
}

// GetStatsData extracts stats data from a message
func (m *Message) GetStatsData() (*StatsData, error) {
	var data StatsData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetStatusData extracts status data from a message
func (m *Message) GetStatusData() (*StatusData, error) {
	var data StatusData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetPingData extracts ping data from a message
func (m *Message) GetPingData() (*PingData, error) {
	var data PingData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetPongData extracts pong data from a message
func (m *Message) GetPongData() (*PongData, error) {
	var data PongData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}
