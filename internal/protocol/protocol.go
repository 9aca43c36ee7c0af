// Package protocol defines the wire format exchanged between the relay and
// collaboration clients: a JSON envelope carrying a named event and a flat
// payload object.
package protocol

import (
	"errors"
	"fmt"

	"github.com/goccy/go-json"
)

// Event names a message on the wire.
type Event string

const (
	EventJoinBoard          Event = "join-board"
	EventLeaveBoard         Event = "leave-board"
	EventCursorUpdate       Event = "cursor-update"
	EventTypingStart        Event = "typing-start"
	EventTypingStop         Event = "typing-stop"
	EventCardPositionUpdate Event = "card-position-update"
	EventCardCreated        Event = "card-created"
	EventCardUpdated        Event = "card-updated"
	EventCardDeleted        Event = "card-deleted"
	EventUserJoined         Event = "user-joined"
	EventUserLeft           Event = "user-left"
)

// SessionParam is the query parameter carrying a client's session id on the
// relay handshake. The relay uses it as the connection id, so membership
// notices and payload userIds name the same peer.
const SessionParam = "session"

// Sentinel errors returned by Decode.
var (
	ErrMalformed    = errors.New("protocol: malformed message")
	ErrUnknownEvent = errors.New("protocol: unknown event")
)

// Envelope is one framed message. Origin is set by the relay to the sender's
// connection id; clients leave it empty.
type Envelope struct {
	Event  Event           `json:"event"`
	Origin string          `json:"origin,omitempty"`
	Data   json.RawMessage `json:"data,omitempty"`
}

// Known reports whether e is part of the protocol.
func (e Event) Known() bool {
	switch e {
	case EventJoinBoard, EventLeaveBoard,
		EventCursorUpdate, EventTypingStart, EventTypingStop, EventCardPositionUpdate,
		EventCardCreated, EventCardUpdated, EventCardDeleted,
		EventUserJoined, EventUserLeft:
		return true
	default:
		return false
	}
}

// Relayed reports whether e is forwarded verbatim to room peers when a
// client sends it. Room control and membership notices are not.
func (e Event) Relayed() bool {
	switch e {
	case EventCursorUpdate, EventTypingStart, EventTypingStop, EventCardPositionUpdate,
		EventCardCreated, EventCardUpdated, EventCardDeleted:
		return true
	default:
		return false
	}
}

// Encode builds a framed message from an event and its payload.
func Encode(event Event, origin string, payload any) ([]byte, error) {
	env := Envelope{Event: event, Origin: origin}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("protocol.Encode(%s): %w", event, err)
		}
		env.Data = data
	}

	b, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("protocol.Encode(%s): %w", event, err)
	}
	return b, nil
}

// Decode parses a framed message and validates its payload against the shape
// registered for the event.
func Decode(raw []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("protocol.Decode: %w: %w", ErrMalformed, err)
	}
	if env.Event == "" {
		return nil, fmt.Errorf("protocol.Decode: %w: missing event", ErrMalformed)
	}
	if !env.Event.Known() {
		return nil, fmt.Errorf("protocol.Decode(%q): %w", env.Event, ErrUnknownEvent)
	}
	if err := validate(&env); err != nil {
		return nil, fmt.Errorf("protocol.Decode(%s): %w: %w", env.Event, ErrMalformed, err)
	}
	return &env, nil
}

// Reframe returns env re-encoded with origin set, leaving the payload bytes
// untouched.
func Reframe(env *Envelope, origin string) ([]byte, error) {
	out := Envelope{Event: env.Event, Origin: origin, Data: env.Data}
	b, err := json.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("protocol.Reframe(%s): %w", env.Event, err)
	}
	return b, nil
}

// Unmarshal decodes the envelope payload into v.
func (env *Envelope) Unmarshal(v any) error {
	if len(env.Data) == 0 {
		return fmt.Errorf("protocol.Envelope.Unmarshal(%s): %w: empty data", env.Event, ErrMalformed)
	}
	if err := json.Unmarshal(env.Data, v); err != nil {
		return fmt.Errorf("protocol.Envelope.Unmarshal(%s): %w: %w", env.Event, ErrMalformed, err)
	}
	return nil
}

func validate(env *Envelope) error {
	switch env.Event {
	case EventJoinBoard, EventLeaveBoard:
		var p BoardRef
		if err := env.Unmarshal(&p); err != nil {
			return err
		}
		if p.BoardID == "" {
			return errors.New("boardId is required")
		}
	case EventCursorUpdate:
		var p Cursor
		if err := env.Unmarshal(&p); err != nil {
			return err
		}
		if p.UserID == "" {
			return errors.New("userId is required")
		}
	case EventTypingStart, EventTypingStop:
		var p Typing
		if err := env.Unmarshal(&p); err != nil {
			return err
		}
		if p.UserID == "" || p.CardID == "" || p.FieldType == "" {
			return errors.New("userId, cardId and fieldType are required")
		}
	case EventCardPositionUpdate:
		var p CardPosition
		if err := env.Unmarshal(&p); err != nil {
			return err
		}
		if p.CardID == "" {
			return errors.New("cardId is required")
		}
	case EventCardCreated, EventCardUpdated:
		var p Card
		if err := env.Unmarshal(&p); err != nil {
			return err
		}
		if p.ID == "" {
			return errors.New("id is required")
		}
	case EventCardDeleted:
		var p CardDeleted
		if err := env.Unmarshal(&p); err != nil {
			return err
		}
		if p.CardID == "" {
			return errors.New("cardId is required")
		}
	case EventUserJoined, EventUserLeft:
		var p Member
		if err := env.Unmarshal(&p); err != nil {
			return err
		}
		if p.ConnectionID == "" {
			return errors.New("connectionId is required")
		}
	}
	return nil
}
