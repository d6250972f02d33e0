package chat

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/roadmanjs/roadman-chat/internal/model"
	"github.com/roadmanjs/roadman-chat/internal/storage/memory"
)

func TestReconciler_RepairsDivergentCopies(t *testing.T) {
	store := memory.New()
	ctx := context.Background()

	convos := NewConvoService(store)
	res := convos.StartConvo(ctx, []string{"u1", "u2"}, "u1")
	require.True(t, res.Success)
	convoID := res.Data.(*model.ChatConvo).ConvoID

	// Simulate a partial fan-out: the message exists and u1's copy points at
	// it, but u2's copy was never updated.
	m := &model.ChatMessage{
		ID:        uuid.New().String(),
		ConvoID:   convoID,
		Owner:     "u1",
		Body:      "hi",
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, store.InsertMessage(ctx, m))
	require.NoError(t, store.SetLastMessage(ctx, convoID, "u1", m.ID, m.CreatedAt))

	r := NewReconciler(store, store.Messages())
	r.repair(ctx, convoID)

	copies, err := store.ListByConvo(ctx, convoID)
	require.NoError(t, err)
	require.Len(t, copies, 2)
	for _, c := range copies {
		require.NotNil(t, c.LastMessageID, "copy for %s not repaired", c.Owner)
		require.Equal(t, m.ID, *c.LastMessageID)
		require.Equal(t, m.CreatedAt, c.UpdatedAt)
	}
}

func TestReconciler_NoMessagesIsANoOp(t *testing.T) {
	store := memory.New()
	ctx := context.Background()

	convos := NewConvoService(store)
	res := convos.StartConvo(ctx, []string{"u1", "u2"}, "u1")
	require.True(t, res.Success)
	convoID := res.Data.(*model.ChatConvo).ConvoID

	r := NewReconciler(store, store.Messages())
	r.repair(ctx, convoID)

	copies, err := store.ListByConvo(ctx, convoID)
	require.NoError(t, err)
	for _, c := range copies {
		require.Nil(t, c.LastMessageID)
	}
}

func TestReconciler_RunDrainsQueue(t *testing.T) {
	store := memory.New()
	ctx := context.Background()

	convos := NewConvoService(store)
	res := convos.StartConvo(ctx, []string{"u1", "u2"}, "u1")
	require.True(t, res.Success)
	convoID := res.Data.(*model.ChatConvo).ConvoID

	m := &model.ChatMessage{
		ID:        uuid.New().String(),
		ConvoID:   convoID,
		Owner:     "u1",
		Body:      "hi",
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, store.InsertMessage(ctx, m))

	r := NewReconciler(store, store.Messages())
	runCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		r.Run(runCtx)
	}()

	r.Enqueue(convoID)

	require.Eventually(t, func() bool {
		c, err := store.GetByConvoAndOwner(ctx, convoID, "u2")
		return err == nil && c.LastMessageID != nil && *c.LastMessageID == m.ID
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("reconciler did not stop on context cancel")
	}
}
