package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ProtocolVersion is bumped on incompatible frame changes.
const ProtocolVersion = 1

// EventFrame is a server → client push.
type EventFrame struct {
	Event   string      `json:"event"`
	Payload interface{} `json:"payload,omitempty"`
}

// NewEvent builds an EventFrame.
func NewEvent(name string, payload interface{}) *EventFrame {
	return &EventFrame{Event: name, Payload: payload}
}

// NewError builds an error event.
func NewError(code, reason string) *EventFrame {
	return NewEvent(EventError, ErrorPayload{Code: code, Reason: reason})
}

// NewWarning builds a warning event.
func NewWarning(reason string) *EventFrame {
	return NewEvent(EventWarning, WarningPayload{Reason: reason})
}

// ClientFrame is a client → server frame. Payload is decoded lazily
// because its shape depends on Event.
type ClientFrame struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

var errMissingEvent = errors.New("frame has no event name")

// ParseClientFrame decodes a raw text frame.
func ParseClientFrame(data []byte) (*ClientFrame, error) {
	var f ClientFrame
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse frame: %w", err)
	}
	if f.Event == "" {
		return nil, errMissingEvent
	}
	return &f, nil
}

// DecodePayload unmarshals the payload into v. An absent payload leaves v
// untouched.
func (f *ClientFrame) DecodePayload(v interface{}) error {
	if len(f.Payload) == 0 || string(f.Payload) == "null" {
		return nil
	}
	if err := json.Unmarshal(f.Payload, v); err != nil {
		return fmt.Errorf("decode %s payload: %w", f.Event, err)
	}
	return nil
}
