package model

import "time"

// ChatMessage is a single message in a conversation. Messages are immutable:
// created once, never edited or deleted. Attachments are opaque references
// resolved by a separate file service.
type ChatMessage struct {
	ID          string    `json:"id"`
	ConvoID     string    `json:"convo_id"`
	Owner       string    `json:"owner"` // sender
	Body        string    `json:"body"`
	Attachments []string  `json:"attachments,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}
