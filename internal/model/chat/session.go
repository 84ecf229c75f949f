package chat

import "time"

// Location is the caller position attached to a session.
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Address   string  `json:"address,omitempty"`
	Source    string  `json:"source,omitempty"`
}

// Session captures a transient anonymous conversation.
type Session struct {
	ID           string    `json:"session_id"`
	CreatedAt    time.Time `json:"created_at"`
	LastActivity time.Time `json:"last_activity"`
	Location     *Location `json:"location,omitempty"`
	MessageCount int       `json:"message_count"`
}
