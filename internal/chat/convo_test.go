package chat

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roadmanjs/roadman-chat/internal/model"
	"github.com/roadmanjs/roadman-chat/internal/storage/memory"
)

func TestCreateConvo_MaterializesOneCopyPerMember(t *testing.T) {
	store := memory.New()
	svc := NewConvoService(store)
	ctx := context.Background()

	res := svc.CreateConvo(ctx, []string{"u1", "u2"}, false)
	require.True(t, res.Success, res.Message)

	created, ok := res.Data.([]model.ChatConvo)
	require.True(t, ok)
	require.Len(t, created, 2)

	owners := map[string]bool{}
	for _, c := range created {
		owners[c.Owner] = true
		require.Equal(t, created[0].ConvoID, c.ConvoID)
		require.Equal(t, []string{"u1", "u2"}, c.Members)
		require.False(t, c.Group)
	}
	require.True(t, owners["u1"])
	require.True(t, owners["u2"])

	copies, err := store.ListByConvo(ctx, created[0].ConvoID)
	require.NoError(t, err)
	require.Len(t, copies, 2)
}

func TestCreateConvo_DedupesMembersAndRejectsSingleton(t *testing.T) {
	svc := NewConvoService(memory.New())
	ctx := context.Background()

	res := svc.CreateConvo(ctx, []string{"u1", "u1", "u2", ""}, true)
	require.True(t, res.Success, res.Message)
	created := res.Data.([]model.ChatConvo)
	require.Len(t, created, 2)

	res = svc.CreateConvo(ctx, []string{"u1", "u1"}, false)
	require.False(t, res.Success)
	require.NotEmpty(t, res.Message)
}

func TestStartConvo_IdempotentPerPairAndOwner(t *testing.T) {
	svc := NewConvoService(memory.New())
	ctx := context.Background()

	first := svc.StartConvo(ctx, []string{"u1", "u2"}, "u1")
	require.True(t, first.Success, first.Message)
	c1 := first.Data.(*model.ChatConvo)
	require.Equal(t, "u1", c1.Owner)

	second := svc.StartConvo(ctx, []string{"u2", "u1"}, "u1")
	require.True(t, second.Success, second.Message)
	c2 := second.Data.(*model.ChatConvo)
	require.Equal(t, c1.ConvoID, c2.ConvoID)
	require.Equal(t, c1.ID, c2.ID)
}

func TestStartConvo_ReturnsRequestingOwnersCopy(t *testing.T) {
	svc := NewConvoService(memory.New())
	ctx := context.Background()

	res := svc.StartConvo(ctx, []string{"u1", "u2"}, "u2")
	require.True(t, res.Success, res.Message)
	require.Equal(t, "u2", res.Data.(*model.ChatConvo).Owner)
}

func TestStartConvo_Validation(t *testing.T) {
	svc := NewConvoService(memory.New())
	ctx := context.Background()

	require.False(t, svc.StartConvo(ctx, []string{"u1", "u2", "u3"}, "u1").Success)
	require.False(t, svc.StartConvo(ctx, []string{"u1"}, "u1").Success)
	require.False(t, svc.StartConvo(ctx, []string{"u1", "u2"}, "u3").Success)
}

func TestStartConvo_ConcurrentSamePairCreatesOneConvo(t *testing.T) {
	svc := NewConvoService(memory.New())
	ctx := context.Background()

	const n = 16
	results := make(chan model.ResType, n)
	for i := 0; i < n; i++ {
		go func() {
			results <- svc.StartConvo(ctx, []string{"u1", "u2"}, "u1")
		}()
	}

	ids := map[string]bool{}
	for i := 0; i < n; i++ {
		res := <-results
		require.True(t, res.Success, res.Message)
		ids[res.Data.(*model.ChatConvo).ConvoID] = true
	}
	require.Len(t, ids, 1)
}

func TestConvoForOwner(t *testing.T) {
	svc := NewConvoService(memory.New())
	ctx := context.Background()

	res := svc.StartConvo(ctx, []string{"u1", "u2"}, "u1")
	require.True(t, res.Success)
	convoID := res.Data.(*model.ChatConvo).ConvoID

	c := svc.ConvoForOwner(ctx, convoID, "u2")
	require.NotNil(t, c)
	require.Equal(t, "u2", c.Owner)

	require.Nil(t, svc.ConvoForOwner(ctx, convoID, "u3"))
	require.Nil(t, svc.ConvoForOwner(ctx, "missing", "u1"))
}

func TestPaginateConvos_BeforeAnchorLimitsAndOrders(t *testing.T) {
	store := memory.New()
	svc := NewConvoService(store)
	ctx := context.Background()

	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		res := svc.CreateConvo(ctx, []string{"u1", "peer"}, false)
		require.True(t, res.Success)
		created := res.Data.([]model.ChatConvo)
		for _, c := range created {
			err := store.SetLastMessage(ctx, c.ConvoID, c.Owner, "m", base.Add(time.Duration(i)*time.Hour))
			require.NoError(t, err)
		}
	}

	anchor := base.Add(24 * time.Hour)
	page := svc.PaginateConvos(ctx, "u1", &anchor, nil, 3)
	require.True(t, page.HasNext)
	require.Len(t, page.Items, 3)
	for _, c := range page.Items {
		require.Equal(t, "u1", c.Owner)
	}
	// Newest activity first.
	require.True(t, page.Items[0].UpdatedAt.After(page.Items[1].UpdatedAt))

	next := page.Items[len(page.Items)-1].UpdatedAt
	rest := svc.PaginateConvos(ctx, "u1", &next, nil, 10)
	require.False(t, rest.HasNext)
	// The boundary row is shared between pages (inclusive comparison).
	require.Len(t, rest.Items, 3)
}

func TestPaginateConvos_DefaultAnchorIsNow(t *testing.T) {
	svc := NewConvoService(memory.New())
	ctx := context.Background()

	res := svc.CreateConvo(ctx, []string{"u1", "u2"}, false)
	require.True(t, res.Success)

	// With no bounds the page anchors to now with a >= comparison, so
	// records updated before the call fall outside the window.
	page := svc.PaginateConvos(ctx, "u1", nil, nil, 10)
	require.False(t, page.HasNext)
	require.Empty(t, page.Items)
	require.Equal(t, "u1", page.Params.Owner)
	require.Equal(t, 10, page.Params.Limit)
}
