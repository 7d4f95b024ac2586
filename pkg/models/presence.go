package models

import "time"

// OnlineStatus is one user's entry in an online-status poll snapshot.
type OnlineStatus struct {
	Online   bool       `json:"online"`
	LastSeen *time.Time `json:"last_seen,omitempty"`
}

// StatusSnapshot maps user ids to their polled online status.
type StatusSnapshot map[string]OnlineStatus
