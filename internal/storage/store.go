package storage

import (
	"context"
	"errors"
	"time"

	"github.com/roadmanjs/roadman-chat/internal/cursor"
	"github.com/roadmanjs/roadman-chat/internal/model"
)

// ErrNotFound is returned by lookups that match no record.
var ErrNotFound = errors.New("not found")

// ConvoStore is the access contract for materialized conversation records.
// Implementations: repository.ConvoRepository (Postgres), memory.Store
// (for -dev without a database and for tests).
type ConvoStore interface {
	Insert(ctx context.Context, c *model.ChatConvo) error
	GetByID(ctx context.Context, id string) (*model.ChatConvo, error)
	// GetByConvoAndOwner returns one member's copy of a logical conversation.
	GetByConvoAndOwner(ctx context.Context, convoID, owner string) (*model.ChatConvo, error)
	// ListByConvo returns every member's copy of a logical conversation.
	ListByConvo(ctx context.Context, convoID string) ([]model.ChatConvo, error)
	// FindDirect looks up a non-group conversation containing exactly the
	// two given members, from the requesting owner's view.
	FindDirect(ctx context.Context, memberA, memberB, owner string) (*model.ChatConvo, error)
	// PageByOwner lists an owner's conversations ordered by updated_at
	// descending, fetching up to q.FetchLimit() rows.
	PageByOwner(ctx context.Context, owner string, q cursor.Query) ([]model.ChatConvo, error)
	// SetLastMessage updates the last-message pointer and updated_at on a
	// single member's copy. The caller fans out over members.
	SetLastMessage(ctx context.Context, convoID, owner, messageID string, at time.Time) error
}

// MessageStore is the access contract for message records.
type MessageStore interface {
	Insert(ctx context.Context, m *model.ChatMessage) error
	GetByID(ctx context.Context, id string) (*model.ChatMessage, error)
	// PageByConvo lists a conversation's messages ordered by created_at
	// descending, fetching up to q.FetchLimit() rows.
	PageByConvo(ctx context.Context, convoID string, q cursor.Query) ([]model.ChatMessage, error)
}

// UnreadStore tracks per-(owner, conversation) unread counters.
// Incr must be a delta operation on the store side, so concurrent
// increments for the same key never lose updates.
// Implementations: redis.Client, repository.UnreadRepository, memory.Store.
type UnreadStore interface {
	Incr(ctx context.Context, owner, convoID string) error
	// Reset zeroes the counter and reports whether a record existed.
	Reset(ctx context.Context, owner, convoID string) (bool, error)
	Get(ctx context.Context, owner, convoID string) (int, error)
	Close() error
}
