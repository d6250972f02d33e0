package event

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func recvEvent(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case e, ok := <-ch:
		require.True(t, ok, "channel closed before event arrived")
		return e
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func requireNoEvent(t *testing.T, ch <-chan Event) {
	t.Helper()
	select {
	case e, ok := <-ch:
		if ok {
			t.Fatalf("unexpected event: %+v", e)
		}
	case <-time.After(50 * time.Millisecond):
	}
}

func TestPublish_RoutesByOwnerAndConvo(t *testing.T) {
	b := NewBroker()
	defer b.Close()
	ctx := context.Background()

	chAlice, stopAlice := b.Subscribe(ctx, TopicMessage, Filter{Owner: "alice", ConvoID: "c1"})
	defer stopAlice()
	chBob, stopBob := b.Subscribe(ctx, TopicMessage, Filter{Owner: "bob", ConvoID: "c1"})
	defer stopBob()

	b.Publish(Event{Topic: TopicMessage, Owner: "alice", ConvoID: "c1", Payload: "hi"})

	e := recvEvent(t, chAlice)
	require.Equal(t, "alice", e.Owner)
	require.Equal(t, "hi", e.Payload)
	require.False(t, e.Time.IsZero())
	requireNoEvent(t, chBob)
}

func TestPublish_EmptyFilterFieldMatchesAny(t *testing.T) {
	b := NewBroker()
	defer b.Close()

	ch, stop := b.Subscribe(context.Background(), TopicConvo, Filter{Owner: "alice"})
	defer stop()

	b.Publish(Event{Topic: TopicConvo, Owner: "alice", ConvoID: "c1"})
	b.Publish(Event{Topic: TopicConvo, Owner: "alice", ConvoID: "c2"})

	require.Equal(t, "c1", recvEvent(t, ch).ConvoID)
	require.Equal(t, "c2", recvEvent(t, ch).ConvoID)
}

func TestPublish_TopicIsolation(t *testing.T) {
	b := NewBroker()
	defer b.Close()

	ch, stop := b.Subscribe(context.Background(), TopicTyping, Filter{Owner: "alice"})
	defer stop()

	b.Publish(Event{Topic: TopicMessage, Owner: "alice", ConvoID: "c1"})
	requireNoEvent(t, ch)
}

func TestUnsubscribe_ClosesChannel(t *testing.T) {
	b := NewBroker()
	defer b.Close()

	ch, stop := b.Subscribe(context.Background(), TopicMessage, Filter{})
	stop()

	_, ok := <-ch
	require.False(t, ok)

	// Publishing after unsubscribe must not panic or deliver.
	b.Publish(Event{Topic: TopicMessage, Owner: "alice"})
}

func TestSubscribe_ContextCancelUnsubscribes(t *testing.T) {
	b := NewBroker()
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	ch, _ := b.Subscribe(ctx, TopicMessage, Filter{})
	cancel()

	select {
	case _, ok := <-ch:
		require.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("channel not closed after context cancel")
	}
}

func TestClose_DropsSubscribersAndStaysUsable(t *testing.T) {
	b := NewBroker()
	ch, _ := b.Subscribe(context.Background(), TopicMessage, Filter{})

	b.Close()
	_, ok := <-ch
	require.False(t, ok)

	// After shutdown both operations degrade to no-ops.
	b.Publish(Event{Topic: TopicMessage})
	ch2, stop := b.Subscribe(context.Background(), TopicMessage, Filter{})
	stop()
	_, ok = <-ch2
	require.False(t, ok)
}

func TestPublish_SlowSubscriberDropsInsteadOfBlocking(t *testing.T) {
	b := NewBroker()
	defer b.Close()

	ch, stop := b.Subscribe(context.Background(), TopicMessage, Filter{})
	defer stop()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < subscriberBufSize+10; i++ {
			b.Publish(Event{Topic: TopicMessage, Owner: "alice"})
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}
	require.Len(t, ch, subscriberBufSize)
}
