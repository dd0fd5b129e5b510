// Package hub fans dashboard messages out to websocket clients through a
// single goroutine that owns the client set.
package hub

// Message is one encoded frame. Type is the protocol message type, kept for
// logging.
type Message struct {
	Type string
	Data []byte
}

// NewJSONMessage wraps pre-encoded JSON.
func NewJSONMessage(data []byte) Message {
	return Message{Data: data}
}
