package models

import "time"

// MessageType distinguishes message payloads within a chat room.
type MessageType string

const (
	MessageText  MessageType = "text"
	MessageEmoji MessageType = "emoji"
)

// Message is a single chat message as the platform API renders it.
type Message struct {
	ID          string      `json:"id"`
	Content     string      `json:"content"`
	SenderID    string      `json:"senderId"`
	SenderName  string      `json:"senderName"`
	SenderPhoto string      `json:"senderPhoto,omitempty"`
	Timestamp   time.Time   `json:"timestamp"`
	Read        bool        `json:"read"`
	Type        MessageType `json:"type"`
	RoomID      string      `json:"roomId"`
}

// Room is a direct-message room summary from the room list endpoint.
type Room struct {
	ID          string    `json:"id"`
	Peer        RoomPeer  `json:"otherUser"`
	LastMessage string    `json:"lastMessage,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
	UnreadCount int       `json:"unreadCount"`
}

// RoomPeer identifies the counterpart user of a direct-message room.
type RoomPeer struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Photo string `json:"photo,omitempty"`
}
