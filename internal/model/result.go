package model

import "time"

// ResType is the uniform mutation result returned to transport layers.
// Failed mutations carry Message instead of raising.
type ResType struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
}

// PageParams echoes the effective, non-zero query parameters of a listing
// call; the client passes them back as the next cursor.
type PageParams struct {
	Owner   string     `json:"owner,omitempty"`
	ConvoID string     `json:"convo_id,omitempty"`
	Before  *time.Time `json:"before,omitempty"`
	After   *time.Time `json:"after,omitempty"`
	Limit   int        `json:"limit,omitempty"`
}

// ConvoPagination is a page of conversations.
type ConvoPagination struct {
	Items   []ChatConvo `json:"items"`
	HasNext bool        `json:"hasNext"`
	Params  PageParams  `json:"params"`
}

// MessagePagination is a page of messages.
type MessagePagination struct {
	Items   []ChatMessage `json:"items"`
	HasNext bool          `json:"hasNext"`
	Params  PageParams    `json:"params"`
}
