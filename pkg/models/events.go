package models

import (
	"encoding/json"
	"fmt"
)

// EventType names a push event delivered over the realtime connection.
type EventType string

const (
	EventNewMessage      EventType = "new_message"
	EventUserTyping      EventType = "user_typing"
	EventMessageRead     EventType = "message_read"
	EventUserOnline      EventType = "user_online"
	EventUserOffline     EventType = "user_offline"
	EventNewNotification EventType = "new_notification"
)

// Event is a decoded push event. Payloads are validated and typed at the
// connection boundary so downstream handlers switch on the concrete variant
// instead of probing untyped fields.
type Event interface {
	Type() EventType
}

// MessageEvent carries a newly delivered chat message.
type MessageEvent struct {
	Message Message
}

func (MessageEvent) Type() EventType { return EventNewMessage }

// TypingEvent signals a peer starting or stopping typing in a room.
type TypingEvent struct {
	RoomID   string `json:"room_id"`
	UserID   string `json:"user_id"`
	IsTyping bool   `json:"is_typing"`
}

func (TypingEvent) Type() EventType { return EventUserTyping }

// ReadEvent signals that a user read the messages of a room.
type ReadEvent struct {
	RoomID string `json:"room_id"`
	UserID string `json:"user_id"`
}

func (ReadEvent) Type() EventType { return EventMessageRead }

// PresenceEvent signals a user coming online or going offline.
type PresenceEvent struct {
	UserID string `json:"user_id"`
	Online bool   `json:"-"`
}

func (e PresenceEvent) Type() EventType {
	if e.Online {
		return EventUserOnline
	}
	return EventUserOffline
}

// NotificationEvent carries a server-pushed notification.
type NotificationEvent struct {
	Kind    NotificationType `json:"type"`
	Title   string           `json:"title"`
	Message string           `json:"message"`
	Data    json.RawMessage  `json:"data,omitempty"`
}

func (NotificationEvent) Type() EventType { return EventNewNotification }

// DecodeEvent parses the data payload of a named wire event into its typed
// variant. Unknown event names and malformed payloads are errors; callers drop
// such frames rather than dispatching them.
func DecodeEvent(name EventType, data json.RawMessage) (Event, error) {
	switch name {
	case EventNewMessage:
		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, fmt.Errorf("decode %s: %w", name, err)
		}
		return MessageEvent{Message: msg}, nil
	case EventUserTyping:
		var ev TypingEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return nil, fmt.Errorf("decode %s: %w", name, err)
		}
		return ev, nil
	case EventMessageRead:
		var ev ReadEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return nil, fmt.Errorf("decode %s: %w", name, err)
		}
		return ev, nil
	case EventUserOnline, EventUserOffline:
		var ev PresenceEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return nil, fmt.Errorf("decode %s: %w", name, err)
		}
		ev.Online = name == EventUserOnline
		return ev, nil
	case EventNewNotification:
		var ev NotificationEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return nil, fmt.Errorf("decode %s: %w", name, err)
		}
		if ev.Kind == "" {
			ev.Kind = NotificationGeneric
		}
		return ev, nil
	default:
		return nil, fmt.Errorf("unknown event %q", name)
	}
}
