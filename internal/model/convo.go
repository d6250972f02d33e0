package model

import "time"

// ChatConvo is one member's materialized copy of a logical conversation.
// A conversation between N members is stored as N records sharing ConvoID,
// Members and Group, each with its own storage ID and Owner. Shared fields
// (LastMessageID, UpdatedAt) are kept in sync by the message fan-out,
// eventually consistent across copies.
type ChatConvo struct {
	ID            string       `json:"id"`
	ConvoID       string       `json:"convo_id"`
	Members       []string     `json:"members"`
	Group         bool         `json:"group"`
	Owner         string       `json:"owner"`
	LastMessageID *string      `json:"last_message_id,omitempty"`
	LastMessage   *ChatMessage `json:"last_message,omitempty"`
	CreatedAt     time.Time    `json:"created_at"`
	UpdatedAt     time.Time    `json:"updated_at"`
}
