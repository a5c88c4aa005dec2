// Package protocol defines the websocket frames exchanged with clients.
//
// Every frame is one JSON object with a "type" discriminator. Inbound frames
// form a closed set dispatched through Handler; outbound frames carry their
// own type tag and are serialized with Encode.
package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

const (
	// Subprotocol is the websocket subprotocol clients must offer.
	Subprotocol = "ponyplace"

	// MaxFrameSize is the default limit for inbound frames (64KB).
	MaxFrameSize = 65536
)

var (
	ErrMalformed   = errors.New("protocol: malformed frame")
	ErrUnknownType = errors.New("protocol: unknown frame type")
)

// Decode parses an inbound frame.
func Decode(data []byte) (Inbound, error) {
	var env struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	newMsg, ok := inboundKinds[env.Type]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, env.Type)
	}
	msg := newMsg()
	if err := json.Unmarshal(data, msg); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformed, env.Type, err)
	}
	if err := msg.validate(); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformed, env.Type, err)
	}
	return msg, nil
}

// Encode serializes an outbound frame, inserting its type tag.
func Encode(msg Outbound) ([]byte, error) {
	body, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("protocol: marshal %s: %w", msg.Type(), err)
	}
	tag, err := json.Marshal(msg.Type())
	if err != nil {
		return nil, fmt.Errorf("protocol: marshal %s: %w", msg.Type(), err)
	}
	if len(body) < 2 || body[0] != '{' {
		return nil, fmt.Errorf("protocol: marshal %s: not an object", msg.Type())
	}

	var buf bytes.Buffer
	buf.Grow(len(body) + len(tag) + 9)
	buf.WriteString(`{"type":`)
	buf.Write(tag)
	if len(body) > 2 {
		buf.WriteByte(',')
	}
	buf.Write(body[1:])
	return buf.Bytes(), nil
}
