// Package protocol defines the WebSocket messages pushed to dashboard clients.
// It has no dependencies on the rest of go-speaky so that other clients can
// decode the stream.
package protocol

import (
	"encoding/json"
	"fmt"
	"time"
)

// MessageType identifies the type of WebSocket message
type MessageType string

const (
	TypeEvent      MessageType = "event"       // Realtime event logged by the session
	TypeToast      MessageType = "toast"       // User-facing notification
	TypeStatus     MessageType = "status"      // Assistant and wallet status
	TypeToolResult MessageType = "tool_result" // Outcome of a tool call
)

// Message is the base wrapper for all WebSocket messages
type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp int64           `json:"ts,omitempty"` // Unix milliseconds
	Data      json.RawMessage `json:"data,omitempty"`
}

// NewMessage creates a new message with the current timestamp
func NewMessage(msgType MessageType, data interface{}) (*Message, error) {
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
func (m *Message) ParseData(v interface{}) error {
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

// EventData is one entry of the session event log
type EventData struct {
	Type      string         `json:"type"`
	EventID   string         `json:"event_id,omitempty"`
	Timestamp string         `json:"timestamp,omitempty"`
	Payload   map[string]any `json:"payload,omitempty"`
}

// ToastData is a notification shown to the user
type ToastData struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Color       string `json:"color"` // success, error, warning, info, primary
	Icon        string `json:"icon,omitempty"`
}

// StatusData summarizes the assistant
type StatusData struct {
	Phase            string `json:"phase"` // idle, connecting, open, closed
	Configured       bool   `json:"configured"`
	WalletConnected  bool   `json:"wallet_connected"`
	WalletConnecting bool   `json:"wallet_connecting"`
	Address          string `json:"address,omitempty"`
	Events           int    `json:"events"`
}

// ToolResultData reports a finished tool call
type ToolResultData struct {
	Tool      string `json:"tool"`
	CallID    string `json:"call_id,omitempty"` // empty for manual triggers
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	ErrorCode string `json:"error_code,omitempty"`
}
