package chat

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/roadmanjs/roadman-chat/internal/cursor"
	"github.com/roadmanjs/roadman-chat/internal/event"
	"github.com/roadmanjs/roadman-chat/internal/logger"
	"github.com/roadmanjs/roadman-chat/internal/model"
	"github.com/roadmanjs/roadman-chat/internal/storage"
)

// PushNotifier delivers push notifications for members without a live
// subscription. A nil notifier disables push.
type PushNotifier interface {
	Notify(ctx context.Context, userID, title, body string, data map[string]string)
}

type MessageService struct {
	convos   storage.ConvoStore
	messages storage.MessageStore
	unread   storage.UnreadStore
	broker   *event.Broker
	push     PushNotifier
	repair   *Reconciler // optional; nil disables fan-out repair
}

func NewMessageService(
	convos storage.ConvoStore,
	messages storage.MessageStore,
	unread storage.UnreadStore,
	broker *event.Broker,
	push PushNotifier,
	repair *Reconciler,
) *MessageService {
	return &MessageService{
		convos:   convos,
		messages: messages,
		unread:   unread,
		broker:   broker,
		push:     push,
		repair:   repair,
	}
}

// CreateMessageArgs are the inputs to CreateMessage. Attachments are opaque
// references.
type CreateMessageArgs struct {
	ConvoID     string   `json:"convo_id"`
	Owner       string   `json:"owner"`
	Body        string   `json:"body"`
	Attachments []string `json:"attachments,omitempty"`
}

func (a CreateMessageArgs) validate() error {
	if a.ConvoID == "" || a.Owner == "" {
		return fmt.Errorf("%w: convo_id and owner are required", ErrValidation)
	}
	if a.Body == "" && len(a.Attachments) == 0 {
		return fmt.Errorf("%w: message needs a body or attachments", ErrValidation)
	}
	return nil
}

// CreateMessage persists a message, then fans out best-effort side effects:
// last-message pointers on every member copy, unread counters for everyone
// but the sender, and real-time events. The message is created iff the
// primary insert succeeds; side-effect failures are logged and swallowed.
func (s *MessageService) CreateMessage(ctx context.Context, args CreateMessageArgs) model.ResType {
	defer logger.DeferLogDuration("msg.CreateMessage", time.Now())()
	if err := args.validate(); err != nil {
		return model.ResType{Success: false, Message: err.Error()}
	}

	// The sender's copy doubles as the membership check and gives us the
	// member list for the fan-out.
	conv, err := s.convos.GetByConvoAndOwner(ctx, args.ConvoID, args.Owner)
	if err != nil {
		if err == storage.ErrNotFound {
			return model.ResType{Success: false, Message: "unknown conversation"}
		}
		logger.Errorf("create message resolve convo %s: %v", args.ConvoID, err)
		return model.ResType{Success: false, Message: "failed to resolve conversation"}
	}

	m := &model.ChatMessage{
		ID:          uuid.New().String(),
		ConvoID:     args.ConvoID,
		Owner:       args.Owner,
		Body:        args.Body,
		Attachments: args.Attachments,
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.messages.Insert(ctx, m); err != nil {
		logger.Errorf("create message insert: %v", err)
		return model.ResType{Success: false, Message: "failed to save message"}
	}

	s.fanout(ctx, conv, m)
	return model.ResType{Success: true, Data: m}
}

// fanout propagates a created message across the conversation's member
// copies. Each write is independent; on partial failure the convo is queued
// for reconciliation instead of rolling anything back.
func (s *MessageService) fanout(ctx context.Context, conv *model.ChatConvo, m *model.ChatMessage) {
	divergent := false
	for _, member := range conv.Members {
		if err := s.convos.SetLastMessage(ctx, m.ConvoID, member, m.ID, m.CreatedAt); err != nil {
			logger.Errorf("fanout last message convo=%s member=%s: %v", m.ConvoID, member, err)
			divergent = true
		}
		if member != m.Owner {
			if err := s.unread.Incr(ctx, member, m.ConvoID); err != nil {
				logger.Errorf("fanout unread convo=%s member=%s: %v", m.ConvoID, member, err)
			}
		}

		payload := event.MessagePayload{ConvoID: m.ConvoID, Message: m}
		s.broker.Publish(event.Event{Topic: event.TopicMessage, Owner: member, ConvoID: m.ConvoID, Payload: payload})
		s.broker.Publish(event.Event{Topic: event.TopicConvo, Owner: member, ConvoID: m.ConvoID, Payload: payload})
	}
	if divergent && s.repair != nil {
		s.repair.Enqueue(m.ConvoID)
	}

	if s.push != nil {
		body := m.Body
		if body == "" {
			body = "Attachment"
		}
		if len(body) > 120 {
			body = body[:117] + "..."
		}
		data := map[string]string{"convo_id": m.ConvoID, "message_id": m.ID}
		for _, member := range conv.Members {
			if member != m.Owner {
				go s.push.Notify(context.Background(), member, m.Owner, body, data)
			}
		}
	}
}

// PaginateMessages lists a conversation's messages, newest first, and resets
// the reader's unread counter on success (fire-and-forget: a reset failure
// never fails the read). Query failures degrade to an empty page.
func (s *MessageService) PaginateMessages(ctx context.Context, convoID string, before, after *time.Time, limit int, owner string) model.MessagePagination {
	defer logger.DeferLogDuration("msg.PaginateMessages", time.Now())()
	q := cursor.Resolve(before, after, limit)
	params := model.PageParams{ConvoID: convoID, Before: before, After: after, Limit: q.Limit}

	rows, err := s.messages.PageByConvo(ctx, convoID, q)
	if err != nil {
		logger.Errorf("paginate messages convo=%s: %v", convoID, err)
		return model.MessagePagination{Items: []model.ChatMessage{}, HasNext: false, Params: params}
	}
	items, hasNext := cursor.Trim(rows, q.Limit)

	if owner != "" {
		if _, err := s.unread.Reset(ctx, owner, convoID); err != nil {
			logger.Errorf("reset unread owner=%s convo=%s: %v", owner, convoID, err)
		}
	}
	return model.MessagePagination{Items: items, HasNext: hasNext, Params: params}
}

// ResetUnread zeroes the owner's counter for a conversation and reports
// whether a counter existed.
func (s *MessageService) ResetUnread(ctx context.Context, owner, convoID string) bool {
	defer logger.DeferLogDuration("msg.ResetUnread", time.Now())()
	existed, err := s.unread.Reset(ctx, owner, convoID)
	if err != nil {
		logger.Errorf("reset unread owner=%s convo=%s: %v", owner, convoID, err)
		return false
	}
	return existed
}

// UnreadCount reads the owner's unread counter for a conversation.
func (s *MessageService) UnreadCount(ctx context.Context, owner, convoID string) int {
	n, err := s.unread.Get(ctx, owner, convoID)
	if err != nil {
		logger.Errorf("get unread owner=%s convo=%s: %v", owner, convoID, err)
		return 0
	}
	return n
}

// NotifyTyping publishes an ephemeral typing signal to every member except
// the typist. Never persisted; lost when nobody is listening.
func (s *MessageService) NotifyTyping(ctx context.Context, convoID, owner string) {
	conv, err := s.convos.GetByConvoAndOwner(ctx, convoID, owner)
	if err != nil {
		if err != storage.ErrNotFound {
			logger.Errorf("typing resolve convo %s: %v", convoID, err)
		}
		return
	}
	payload := event.TypingPayload{ConvoID: convoID, User: owner, Time: time.Now().UTC()}
	for _, member := range conv.Members {
		if member == owner {
			continue
		}
		s.broker.Publish(event.Event{Topic: event.TopicTyping, Owner: member, ConvoID: convoID, Payload: payload})
	}
}
