package chat

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roadmanjs/roadman-chat/internal/event"
	"github.com/roadmanjs/roadman-chat/internal/model"
	"github.com/roadmanjs/roadman-chat/internal/storage/memory"
)

type fixture struct {
	store   *memory.Store
	broker  *event.Broker
	convos  *ConvoService
	msgs    *MessageService
	convoID string
}

// newFixture wires the services over the in-memory store with a direct
// conversation between u1 and u2 already in place.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.New()
	broker := event.NewBroker()
	t.Cleanup(broker.Close)

	convos := NewConvoService(store)
	msgs := NewMessageService(store, store.Messages(), store, broker, nil, nil)

	res := convos.StartConvo(context.Background(), []string{"u1", "u2"}, "u1")
	require.True(t, res.Success, res.Message)

	return &fixture{
		store:   store,
		broker:  broker,
		convos:  convos,
		msgs:    msgs,
		convoID: res.Data.(*model.ChatConvo).ConvoID,
	}
}

func (f *fixture) send(t *testing.T, owner, body string) *model.ChatMessage {
	t.Helper()
	res := f.msgs.CreateMessage(context.Background(), CreateMessageArgs{
		ConvoID: f.convoID,
		Owner:   owner,
		Body:    body,
	})
	require.True(t, res.Success, res.Message)
	return res.Data.(*model.ChatMessage)
}

func TestCreateMessage_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.False(t, f.msgs.CreateMessage(ctx, CreateMessageArgs{Owner: "u1", Body: "hi"}).Success)
	require.False(t, f.msgs.CreateMessage(ctx, CreateMessageArgs{ConvoID: f.convoID, Body: "hi"}).Success)
	require.False(t, f.msgs.CreateMessage(ctx, CreateMessageArgs{ConvoID: f.convoID, Owner: "u1"}).Success)

	// Attachments alone are a valid payload.
	res := f.msgs.CreateMessage(ctx, CreateMessageArgs{ConvoID: f.convoID, Owner: "u1", Attachments: []string{"file-1"}})
	require.True(t, res.Success, res.Message)
}

func TestCreateMessage_RejectsNonMembersAndUnknownConvos(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.False(t, f.msgs.CreateMessage(ctx, CreateMessageArgs{ConvoID: f.convoID, Owner: "intruder", Body: "hi"}).Success)
	require.False(t, f.msgs.CreateMessage(ctx, CreateMessageArgs{ConvoID: "missing", Owner: "u1", Body: "hi"}).Success)
}

func TestCreateMessage_UpdatesLastMessageOnEveryCopy(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	m := f.send(t, "u1", "hello")

	copies, err := f.store.ListByConvo(ctx, f.convoID)
	require.NoError(t, err)
	require.Len(t, copies, 2)
	for _, c := range copies {
		require.NotNil(t, c.LastMessageID)
		require.Equal(t, m.ID, *c.LastMessageID)
		require.NotNil(t, c.LastMessage)
		require.Equal(t, "hello", c.LastMessage.Body)
		require.Equal(t, m.CreatedAt, c.UpdatedAt)
	}
}

func TestCreateMessage_IncrementsUnreadForRecipientsOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.send(t, "u1", "one")
	f.send(t, "u1", "two")

	require.Equal(t, 2, f.msgs.UnreadCount(ctx, "u2", f.convoID))
	require.Equal(t, 0, f.msgs.UnreadCount(ctx, "u1", f.convoID))
}

func TestCreateMessage_PublishesPerMemberEvents(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	msgCh, stopMsg := f.broker.Subscribe(ctx, event.TopicMessage, event.Filter{Owner: "u2", ConvoID: f.convoID})
	defer stopMsg()
	convoCh, stopConvo := f.broker.Subscribe(ctx, event.TopicConvo, event.Filter{Owner: "u2"})
	defer stopConvo()

	m := f.send(t, "u1", "ping")

	e := <-msgCh
	payload := e.Payload.(event.MessagePayload)
	require.Equal(t, m.ID, payload.Message.ID)
	require.Equal(t, f.convoID, payload.ConvoID)

	e = <-convoCh
	require.Equal(t, "u2", e.Owner)
	require.Equal(t, f.convoID, e.ConvoID)
}

func TestPaginateMessages_ResetsReadersUnread(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	m := f.send(t, "u1", "hi")
	require.Equal(t, 1, f.msgs.UnreadCount(ctx, "u2", f.convoID))

	anchor := m.CreatedAt.Add(time.Minute)
	page := f.msgs.PaginateMessages(ctx, f.convoID, &anchor, nil, 10, "u2")
	require.False(t, page.HasNext)
	require.Len(t, page.Items, 1)
	require.Equal(t, "hi", page.Items[0].Body)

	require.Equal(t, 0, f.msgs.UnreadCount(ctx, "u2", f.convoID))
	// The sender's counter never moved.
	require.Equal(t, 0, f.msgs.UnreadCount(ctx, "u1", f.convoID))
}

func TestPaginateMessages_LimitAndHasNext(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var last *model.ChatMessage
	for i := 0; i < 5; i++ {
		last = f.send(t, "u1", "m")
		time.Sleep(time.Millisecond)
	}

	anchor := last.CreatedAt.Add(time.Minute)
	page := f.msgs.PaginateMessages(ctx, f.convoID, &anchor, nil, 3, "u2")
	require.True(t, page.HasNext)
	require.Len(t, page.Items, 3)
	// Newest first.
	require.True(t, page.Items[0].CreatedAt.After(page.Items[2].CreatedAt))
	require.Equal(t, 3, page.Params.Limit)
}

func TestResetUnread_ReportsWhetherCounterExisted(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.False(t, f.msgs.ResetUnread(ctx, "u2", f.convoID))

	f.send(t, "u1", "hi")
	require.True(t, f.msgs.ResetUnread(ctx, "u2", f.convoID))
	require.Equal(t, 0, f.msgs.UnreadCount(ctx, "u2", f.convoID))
}

func TestNotifyTyping_ReachesOtherMembersOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	u2Ch, stopU2 := f.broker.Subscribe(ctx, event.TopicTyping, event.Filter{Owner: "u2", ConvoID: f.convoID})
	defer stopU2()
	u1Ch, stopU1 := f.broker.Subscribe(ctx, event.TopicTyping, event.Filter{Owner: "u1", ConvoID: f.convoID})
	defer stopU1()

	f.msgs.NotifyTyping(ctx, f.convoID, "u1")

	e := <-u2Ch
	payload := e.Payload.(event.TypingPayload)
	require.Equal(t, "u1", payload.User)
	require.Equal(t, f.convoID, payload.ConvoID)

	select {
	case e := <-u1Ch:
		t.Fatalf("typist received own typing event: %+v", e)
	default:
	}

	// Typing in a conversation the user is not part of is a silent no-op.
	f.msgs.NotifyTyping(ctx, f.convoID, "intruder")
}

func TestFullReadScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	m := f.send(t, "u1", "hi")
	require.Equal(t, 1, f.msgs.UnreadCount(ctx, "u2", f.convoID))

	anchor := m.CreatedAt.Add(time.Minute)
	page := f.msgs.PaginateMessages(ctx, f.convoID, &anchor, nil, 10, "u2")
	require.Len(t, page.Items, 1)
	require.False(t, page.HasNext)
	require.Equal(t, 0, f.msgs.UnreadCount(ctx, "u2", f.convoID))
	require.Equal(t, 0, f.msgs.UnreadCount(ctx, "u1", f.convoID))
}
