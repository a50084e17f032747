// Package hub provides a thread-safe websocket broadcast hub
// using the idiomatic Go channel-based fan-out pattern.
package hub

// Message is a pre-encoded JSON text message to be delivered to clients
type Message struct {
	Data []byte
}

// NewJSONMessage creates a JSON message from pre-encoded bytes
func NewJSONMessage(data []byte) Message {
	return Message{Data: data}
}

// directMessage targets a single client
type directMessage struct {
	client *Client
	msg    Message
}
