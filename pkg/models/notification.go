package models

import (
	"encoding/json"
	"time"
)

// NotificationType classifies a notification record.
type NotificationType string

const (
	NotificationNewMessage    NotificationType = "new_message"
	NotificationFriendRequest NotificationType = "friend_request"
	NotificationAchievement   NotificationType = "achievement"
	NotificationGeneric       NotificationType = "generic"
)

// Notification is a single entry in the notification store. Data carries the
// type-specific payload (for new_message notifications it holds the room id
// the UI should open).
type Notification struct {
	ID        string           `json:"id"`
	Type      NotificationType `json:"type"`
	Title     string           `json:"title"`
	Message   string           `json:"message"`
	Data      json.RawMessage  `json:"data,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
	Read      bool             `json:"read"`
}

// OpenChatData is the Data payload of a new_message notification.
type OpenChatData struct {
	RoomID   string `json:"roomId"`
	SenderID string `json:"senderId,omitempty"`
}
