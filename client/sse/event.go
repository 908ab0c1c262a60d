package sse

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// Kind identifies which field opened an SSE frame.
type Kind int

const (
	KindComment Kind = iota
	KindEvent
	KindData
	KindID
	KindRetry
)

var kindNames = [...]string{
	KindComment: "comment",
	KindEvent:   "event",
	KindData:    "data",
	KindID:      "id",
	KindRetry:   "retry",
}

// String returns the lowercase field name for k.
func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return fmt.Sprintf("kind(%d)", int(k))
	}
	return kindNames[k]
}

// MarshalText implements [encoding.TextMarshaler].
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// kindOf resolves a field name case-insensitively. Unknown names,
// including the empty name of a ":" line, are comments.
func kindOf(field string) Kind {
	switch strings.ToLower(field) {
	case "event":
		return KindEvent
	case "data":
		return KindData
	case "id":
		return KindID
	case "retry":
		return KindRetry
	default:
		return KindComment
	}
}

// Event is one parsed SSE frame.
//
// Value and Data hold JSON. Text that is valid JSON is kept as is,
// anything else is stored as a JSON string, so both can always be
// passed to [json.Unmarshal]. Data is nil when the frame carried no
// payload beyond its value.
type Event struct {
	Kind  Kind            `json:"kind"`
	Value json.RawMessage `json:"value"`
	Data  json.RawMessage `json:"data,omitempty"`
	ID    string          `json:"id,omitempty"`
	Retry string          `json:"retry,omitempty"`
}

// Text returns Value as plain text, unquoting JSON strings.
func (e Event) Text() string {
	return tokenText(e.Value)
}

// DataText returns Data as plain text, unquoting JSON strings.
func (e Event) DataText() string {
	return tokenText(e.Data)
}

// Decode unmarshals the event payload into v. The payload is Data
// when present, Value otherwise.
func (e Event) Decode(v any) error {
	raw := e.Data
	if raw == nil {
		raw = e.Value
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decoding %s event: %w", e.Kind, err)
	}
	return nil
}

// String renders the event as a compact JSON object.
func (e Event) String() string {
	b, err := json.Marshal(e)
	if err != nil {
		return fmt.Sprintf("{%q:%q}", "kind", e.Kind.String())
	}
	return string(b)
}

// Handler consumes delivered events.
type Handler func(ctx context.Context, ev Event) error

// token converts raw field text into a JSON token.
func token(s string) json.RawMessage {
	trimmed := strings.TrimSpace(s)
	if trimmed != "" && json.Valid([]byte(trimmed)) {
		return json.RawMessage(trimmed)
	}

	b, _ := json.Marshal(s)
	return b
}

func tokenText(raw json.RawMessage) string {
	if raw == nil {
		return ""
	}

	if bytes.HasPrefix(raw, []byte(`"`)) {
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			return s
		}
	}

	return string(raw)
}
