// Package memory implements the storage contracts in process memory.
// Used by the -dev mode without external services and by unit tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/roadmanjs/roadman-chat/internal/cursor"
	"github.com/roadmanjs/roadman-chat/internal/model"
	"github.com/roadmanjs/roadman-chat/internal/storage"
)

type Store struct {
	mu       sync.RWMutex
	convos   map[string]model.ChatConvo   // by storage id
	messages map[string]model.ChatMessage // by id
	unread   map[string]int               // owner + "\x00" + convoID
}

func New() *Store {
	return &Store{
		convos:   make(map[string]model.ChatConvo),
		messages: make(map[string]model.ChatMessage),
		unread:   make(map[string]int),
	}
}

func (s *Store) Close() error { return nil }

func unreadKey(owner, convoID string) string { return owner + "\x00" + convoID }

// cloneConvo detaches the stored record from the caller's copy and hydrates
// the last-message pointer the way the SQL backend's join does.
func (s *Store) cloneConvo(c model.ChatConvo) model.ChatConvo {
	c.Members = append([]string(nil), c.Members...)
	if c.LastMessageID != nil {
		id := *c.LastMessageID
		c.LastMessageID = &id
		if m, ok := s.messages[id]; ok {
			lm := cloneMessage(m)
			c.LastMessage = &lm
		}
	}
	return c
}

func cloneMessage(m model.ChatMessage) model.ChatMessage {
	m.Attachments = append([]string(nil), m.Attachments...)
	return m
}

// --- ConvoStore ---

func (s *Store) Insert(ctx context.Context, c *model.ChatConvo) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := *c
	stored.Members = append([]string(nil), c.Members...)
	stored.LastMessage = nil
	s.convos[stored.ID] = stored
	return nil
}

func (s *Store) GetByID(ctx context.Context, id string) (*model.ChatConvo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.convos[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	out := s.cloneConvo(c)
	return &out, nil
}

func (s *Store) GetByConvoAndOwner(ctx context.Context, convoID, owner string) (*model.ChatConvo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.convos {
		if c.ConvoID == convoID && c.Owner == owner {
			out := s.cloneConvo(c)
			return &out, nil
		}
	}
	return nil, storage.ErrNotFound
}

func (s *Store) ListByConvo(ctx context.Context, convoID string) ([]model.ChatConvo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.ChatConvo, 0, 8)
	for _, c := range s.convos {
		if c.ConvoID == convoID {
			out = append(out, s.cloneConvo(c))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Owner < out[j].Owner })
	return out, nil
}

func (s *Store) FindDirect(ctx context.Context, memberA, memberB, owner string) (*model.ChatConvo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.convos {
		if c.Group || c.Owner != owner || len(c.Members) != 2 {
			continue
		}
		if hasMember(c.Members, memberA) && hasMember(c.Members, memberB) {
			out := s.cloneConvo(c)
			return &out, nil
		}
	}
	return nil, storage.ErrNotFound
}

func hasMember(members []string, id string) bool {
	for _, m := range members {
		if m == id {
			return true
		}
	}
	return false
}

func (s *Store) PageByOwner(ctx context.Context, owner string, q cursor.Query) ([]model.ChatConvo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.ChatConvo, 0, q.FetchLimit())
	for _, c := range s.convos {
		if c.Owner != owner || !matchAnchor(c.UpdatedAt, q) {
			continue
		}
		out = append(out, s.cloneConvo(c))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	if len(out) > q.FetchLimit() {
		out = out[:q.FetchLimit()]
	}
	return out, nil
}

// matchAnchor mirrors the SQL "ts <= $anchor" / "ts >= $anchor" comparison.
func matchAnchor(ts time.Time, q cursor.Query) bool {
	if q.Before {
		return !ts.After(q.Anchor)
	}
	return !ts.Before(q.Anchor)
}

func (s *Store) SetLastMessage(ctx context.Context, convoID, owner, messageID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, c := range s.convos {
		if c.ConvoID == convoID && c.Owner == owner {
			mid := messageID
			c.LastMessageID = &mid
			c.UpdatedAt = at
			s.convos[id] = c
			return nil
		}
	}
	return storage.ErrNotFound
}

// --- MessageStore ---

// Messages returns the store's MessageStore view. Convo and message records
// share one lock but the contract names collide (Insert, GetByID), hence the
// thin delegate.
func (s *Store) Messages() storage.MessageStore { return messageStore{s} }

type messageStore struct{ s *Store }

func (m messageStore) Insert(ctx context.Context, msg *model.ChatMessage) error {
	return m.s.InsertMessage(ctx, msg)
}

func (m messageStore) GetByID(ctx context.Context, id string) (*model.ChatMessage, error) {
	return m.s.GetMessageByID(ctx, id)
}

func (m messageStore) PageByConvo(ctx context.Context, convoID string, q cursor.Query) ([]model.ChatMessage, error) {
	return m.s.PageByConvo(ctx, convoID, q)
}

func (s *Store) InsertMessage(ctx context.Context, m *model.ChatMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages[m.ID] = cloneMessage(*m)
	return nil
}

func (s *Store) GetMessageByID(ctx context.Context, id string) (*model.ChatMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.messages[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	out := cloneMessage(m)
	return &out, nil
}

func (s *Store) PageByConvo(ctx context.Context, convoID string, q cursor.Query) ([]model.ChatMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.ChatMessage, 0, q.FetchLimit())
	for _, m := range s.messages {
		if m.ConvoID != convoID || !matchAnchor(m.CreatedAt, q) {
			continue
		}
		out = append(out, cloneMessage(m))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > q.FetchLimit() {
		out = out[:q.FetchLimit()]
	}
	return out, nil
}

// --- UnreadStore ---

func (s *Store) Incr(ctx context.Context, owner, convoID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unread[unreadKey(owner, convoID)]++
	return nil
}

func (s *Store) Reset(ctx context.Context, owner, convoID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := unreadKey(owner, convoID)
	_, ok := s.unread[key]
	if ok {
		s.unread[key] = 0
	}
	return ok, nil
}

func (s *Store) Get(ctx context.Context, owner, convoID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.unread[unreadKey(owner, convoID)], nil
}
