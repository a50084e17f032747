package server

import (
	"github.com/teslashibe/go-edgedetector/pkg/debug"
	"github.com/teslashibe/go-edgedetector/pkg/hub"
	"github.com/teslashibe/go-edgedetector/pkg/protocol"
)

// greet sends the server status to a viewer that just connected.
func (s *Server) greet(c *hub.Client) {
	msg, err := protocol.NewStatusMessage(s.status())
	if err != nil {
		s.logger.Warn("encode status", "error", err)
		return
	}
	if err := s.hub.SendJSONTo(c, msg); err != nil {
		s.logger.Warn("send status", "client", c.ID(), "error", err)
	}
}

// handleMessage answers viewer requests.
func (s *Server) handleMessage(c *hub.Client, data []byte) {
	msg, err := protocol.ParseMessage(data)
	if err != nil {
		s.logger.Warn("bad viewer message", "client", c.ID(), "error", err)
		return
	}
	debug.Log("viewer %s sent %s", c.ID(), msg.Type)

	var reply *protocol.Message
	switch msg.Type {
	case protocol.TypeRequestFrame:
		if s.frames == nil {
			return
		}
		res := s.frames.Latest()
		if res == nil {
			return
		}
		stats := s.frames.Stats()
		reply, err = protocol.NewFrameMessage(res.PNG, &stats)

	case protocol.TypePing:
		var id string
		var pingTS int64
		if ping, perr := msg.GetPingData(); perr == nil {
			id, pingTS = ping.ID, ping.Timestamp
		}
		reply, err = protocol.NewPongMessage(id, pingTS, nowMillis())

	default:
		debug.Log("ignoring %s from viewer %s", msg.Type, c.ID())
		return
	}

	if err != nil {
		s.logger.Warn("encode reply", "type", msg.Type, "error", err)
		return
	}
	if err := s.hub.SendJSONTo(c, reply); err != nil {
		s.logger.Warn("send reply", "client", c.ID(), "error", err)
	}
}
