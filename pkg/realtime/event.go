package realtime

import (
	"encoding/json"
	"fmt"
	"time"
)

// Event types exchanged over the data channel. The schema is open: events of
// any other type are still logged and forwarded to subscribers.
const (
	TypeSessionCreated         = "session.created"
	TypeSessionUpdate          = "session.update"
	TypeSessionUpdated         = "session.updated"
	TypeConversationItemCreate = "conversation.item.create"
	TypeResponseCreate         = "response.create"
	TypeResponseDone           = "response.done"
	TypeError                  = "error"
)

// Item types carried inside events.
const (
	ItemMessage            = "message"
	ItemFunctionCall       = "function_call"
	ItemFunctionCallOutput = "function_call_output"
)

// TimestampLayout is the layout used when stamping events.
const TimestampLayout = time.RFC3339Nano

// reserved keys are lifted out of the payload on decode.
const (
	keyType      = "type"
	keyEventID   = "event_id"
	keyTimestamp = "timestamp"
)

// Event is a structured message exchanged with the provider.
// On the wire it is a flat JSON object: the payload keys sit next to type,
// event_id and timestamp.
type Event struct {
	Type      string
	EventID   string
	Timestamp string
	Payload   map[string]any
}

// NewEvent builds an event of the given type. payload may be nil.
func NewEvent(eventType string, payload map[string]any) Event {
	return Event{Type: eventType, Payload: payload}
}

// Get returns a top-level payload value.
func (e Event) Get(key string) (any, bool) {
	if e.Payload == nil {
		return nil, false
	}
	v, ok := e.Payload[key]
	return v, ok
}

// MarshalJSON implements json.Marshaler.
func (e Event) MarshalJSON() ([]byte, error) {
	return e.encode(true)
}

// encode flattens the event. withTimestamp controls whether the timestamp is
// put on the wire; providers that validate client events reject unknown keys.
func (e Event) encode(withTimestamp bool) ([]byte, error) {
	flat := make(map[string]any, len(e.Payload)+3)
	for k, v := range e.Payload {
		flat[k] = v
	}
	flat[keyType] = e.Type
	if e.EventID != "" {
		flat[keyEventID] = e.EventID
	} else {
		delete(flat, keyEventID)
	}
	if withTimestamp && e.Timestamp != "" {
		flat[keyTimestamp] = e.Timestamp
	} else {
		delete(flat, keyTimestamp)
	}
	return json.Marshal(flat)
}

// UnmarshalJSON implements json.Unmarshaler.
func (e *Event) UnmarshalJSON(data []byte) error {
	var flat map[string]any
	if err := json.Unmarshal(data, &flat); err != nil {
		return err
	}
	if flat == nil {
		return fmt.Errorf("%w: event is not an object", ErrInvalidEvent)
	}

	t, _ := flat[keyType].(string)
	id, _ := flat[keyEventID].(string)
	ts, _ := flat[keyTimestamp].(string)
	delete(flat, keyType)
	delete(flat, keyEventID)
	delete(flat, keyTimestamp)

	e.Type = t
	e.EventID = id
	e.Timestamp = ts
	e.Payload = flat
	return nil
}

// ParseEvent decodes a raw data channel frame.
func ParseEvent(data []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}
	if ev.Type == "" {
		return Event{}, fmt.Errorf("%w: missing type", ErrInvalidEvent)
	}
	return ev, nil
}

// Clone returns a deep copy of the event's JSON-shaped payload.
func (e Event) Clone() Event {
	out := e
	if e.Payload != nil {
		out.Payload = cloneValue(e.Payload).(map[string]any)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		m := make(map[string]any, len(t))
		for k, val := range t {
			m[k] = cloneValue(val)
		}
		return m
	case []any:
		s := make([]any, len(t))
		for i, val := range t {
			s[i] = cloneValue(val)
		}
		return s
	case []map[string]any:
		s := make([]map[string]any, len(t))
		for i, val := range t {
			s[i] = cloneValue(val).(map[string]any)
		}
		return s
	case []string:
		return append([]string(nil), t...)
	default:
		return v
	}
}

// ResponseCreate asks the model to continue generating.
func ResponseCreate() Event {
	return NewEvent(TypeResponseCreate, nil)
}

// MessageItem builds a conversation.item.create carrying a text message.
// role is "user" or "system".
func MessageItem(role, text string) Event {
	return NewEvent(TypeConversationItemCreate, map[string]any{
		"item": map[string]any{
			"type": ItemMessage,
			"role": role,
			"content": []any{
				map[string]any{
					"type": "input_text",
					"text": text,
				},
			},
		},
	})
}

// FunctionCallOutput returns a tool result to the model.
func FunctionCallOutput(callID, output string) Event {
	return NewEvent(TypeConversationItemCreate, map[string]any{
		"item": map[string]any{
			"type":    ItemFunctionCallOutput,
			"call_id": callID,
			"output":  output,
		},
	})
}

// ToolCall is a model-initiated function invocation embedded in a
// response.done event.
type ToolCall struct {
	Name      string
	CallID    string
	Arguments map[string]any
}

// ToolCalls extracts the function_call items of a response.done event in the
// order they appear. Other events yield nil.
func ToolCalls(e Event) []ToolCall {
	if e.Type != TypeResponseDone {
		return nil
	}
	response, ok := e.Payload["response"].(map[string]any)
	if !ok {
		return nil
	}
	output, ok := response["output"].([]any)
	if !ok {
		return nil
	}

	var calls []ToolCall
	for _, raw := range output {
		item, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		if t, _ := item["type"].(string); t != ItemFunctionCall {
			continue
		}
		name, _ := item["name"].(string)
		callID, _ := item["call_id"].(string)
		calls = append(calls, ToolCall{
			Name:      name,
			CallID:    callID,
			Arguments: ParseArguments(item["arguments"]),
		})
	}
	return calls
}

// ParseArguments decodes a serialized argument blob. Anything that is not a
// JSON object yields an empty, non-nil map.
func ParseArguments(blob any) map[string]any {
	switch v := blob.(type) {
	case string:
		var args map[string]any
		if err := json.Unmarshal([]byte(v), &args); err != nil || args == nil {
			return map[string]any{}
		}
		return args
	case map[string]any:
		return v
	default:
		return map[string]any{}
	}
}
