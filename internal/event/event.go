// Package event defines the JSON wire protocol exchanged over live
// connections: a tagged envelope carrying a per-kind payload, plus the decode
// and validation helpers used at the dispatch boundary.
package event

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/samber/lo"
)

// Inbound event names (client -> server).
const (
	Setup      = "setup"
	JoinChat   = "join chat"
	Typing     = "typing"
	StopTyping = "stop typing"
	NewMessage = "new message"
)

// Outbound event names (server -> client).
const (
	Connected       = "connected"
	UserOnline      = "user online"
	UserOffline     = "user offline"
	MessageReceived = "message received"
)

var (
	ErrUnknownEvent     = errors.New("unknown event")
	ErrMissingChatUsers = errors.New("chat users not found")
	ErrMissingSender    = errors.New("sender not found")
)

// Envelope is the frame format for every event in both directions. Payload
// stays raw so kind-specific decoding happens only where the kind is known,
// and relayed payloads pass through byte-for-byte.
type Envelope struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Decode parses a raw inbound frame into an envelope. It rejects frames whose
// event name is not one of the known inbound kinds.
func Decode(frame []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return Envelope{}, fmt.Errorf("malformed frame: %w", err)
	}

	switch env.Event {
	case Setup, JoinChat, Typing, StopTyping, NewMessage:
		return env, nil
	default:
		return Envelope{}, fmt.Errorf("%w: %q", ErrUnknownEvent, env.Event)
	}
}

// StringPayload decodes the payload as a bare JSON string, the shape used by
// setup, join chat, typing, and stop typing.
func (e Envelope) StringPayload() (string, error) {
	var s string
	if err := json.Unmarshal(e.Payload, &s); err != nil {
		return "", fmt.Errorf("%s payload is not a string: %w", e.Event, err)
	}
	if s == "" {
		return "", fmt.Errorf("%s payload is empty", e.Event)
	}
	return s, nil
}

// UserRef identifies a user inside a message payload. Additional fields sent
// by clients are ignored here but preserved in the raw payload.
type UserRef struct {
	ID string `json:"_id"`
}

// ChatRef carries the participant list of the chat a message belongs to.
type ChatRef struct {
	Users []UserRef `json:"users"`
}

// MessagePayload is the decoded shape of a "new message" payload. Only the
// fields the relay interprets are modeled; the full payload is relayed raw.
type MessagePayload struct {
	Chat   *ChatRef `json:"chat"`
	Sender *UserRef `json:"sender"`
}

// DecodeMessagePayload validates the shape of a "new message" payload.
// A missing chat or participant list yields ErrMissingChatUsers, a missing
// sender ErrMissingSender; both route to the caller's drop-and-log path.
func DecodeMessagePayload(raw json.RawMessage) (MessagePayload, error) {
	var p MessagePayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return MessagePayload{}, fmt.Errorf("malformed message payload: %w", err)
	}
	if p.Chat == nil || p.Chat.Users == nil {
		return MessagePayload{}, ErrMissingChatUsers
	}
	if p.Sender == nil || p.Sender.ID == "" {
		return MessagePayload{}, ErrMissingSender
	}
	return p, nil
}

// Recipients returns the identities that should receive the message: every
// participant of the chat except the sender. Exclusion compares identity
// values, never connection handles.
func (p MessagePayload) Recipients() []string {
	return lo.FilterMap(p.Chat.Users, func(u UserRef, _ int) (string, bool) {
		return u.ID, u.ID != "" && u.ID != p.Sender.ID
	})
}

// Marshal encodes an outbound envelope into a frame. The payload must be a
// JSON-marshalable value; pass json.RawMessage to relay bytes untouched.
func Marshal(name string, payload any) ([]byte, error) {
	env := Envelope{Event: name}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal %s payload: %w", name, err)
		}
		env.Payload = raw
	}
	frame, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("marshal %s frame: %w", name, err)
	}
	return frame, nil
}
