// Package event is a transient publish/subscribe relay for real-time chat
// notifications. Delivery is best-effort and at-most-once: nothing is
// persisted, there is no replay, and subscribers that fall behind lose
// events rather than blocking publishers.
package event

import (
	"context"
	"sync"
	"time"

	"github.com/roadmanjs/roadman-chat/internal/logger"
	"github.com/roadmanjs/roadman-chat/internal/model"
)

type Topic string

const (
	// TopicMessage carries new messages, routed per recipient member.
	TopicMessage Topic = "message"
	// TopicConvo carries conversation updates (new last message), routed per
	// member so list views can reorder.
	TopicConvo Topic = "convo"
	// TopicTyping carries ephemeral typing signals. Lost when nobody listens.
	TopicTyping Topic = "typing"
)

// Event is the typed envelope delivered to subscribers. Owner and ConvoID are
// the routing keys matched against subscriber filters; Payload is
// topic-specific data.
type Event struct {
	Topic   Topic
	Owner   string
	ConvoID string
	Payload any
	Time    time.Time
}

// MessagePayload accompanies TopicMessage and TopicConvo events.
type MessagePayload struct {
	ConvoID string             `json:"convo_id"`
	Message *model.ChatMessage `json:"message"`
}

// TypingPayload accompanies TopicTyping events. User is the member typing,
// not the recipient.
type TypingPayload struct {
	ConvoID string    `json:"convo_id"`
	User    string    `json:"user"`
	Time    time.Time `json:"time"`
}

// Filter matches events by routing-key equality. Empty fields match any
// value; a subscriber for one conversation sets both Owner and ConvoID.
type Filter struct {
	Owner   string
	ConvoID string
}

func (f Filter) matches(e Event) bool {
	if f.Owner != "" && f.Owner != e.Owner {
		return false
	}
	if f.ConvoID != "" && f.ConvoID != e.ConvoID {
		return false
	}
	return true
}

const subscriberBufSize = 64

type subscriber struct {
	topic  Topic
	filter Filter
	ch     chan Event
	once   sync.Once
}

func (s *subscriber) close() {
	s.once.Do(func() { close(s.ch) })
}

type Broker struct {
	mu     sync.RWMutex
	subs   map[Topic]map[*subscriber]struct{}
	closed bool
}

func NewBroker() *Broker {
	return &Broker{subs: make(map[Topic]map[*subscriber]struct{})}
}

// Subscribe registers a filtered subscription and returns its event channel
// together with an unsubscribe function. The channel is closed on
// unsubscribe, on ctx cancellation, and on broker shutdown. Non-matching
// events cost one predicate check and are never queued.
func (b *Broker) Subscribe(ctx context.Context, topic Topic, f Filter) (<-chan Event, func()) {
	sub := &subscriber{topic: topic, filter: f, ch: make(chan Event, subscriberBufSize)}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		sub.close()
		return sub.ch, func() {}
	}
	if _, ok := b.subs[topic]; !ok {
		b.subs[topic] = make(map[*subscriber]struct{})
	}
	b.subs[topic][sub] = struct{}{}
	b.mu.Unlock()

	cancel := func() { b.unsubscribe(sub) }
	go func() {
		<-ctx.Done()
		cancel()
	}()
	return sub.ch, cancel
}

func (b *Broker) unsubscribe(sub *subscriber) {
	// Closing under the write lock keeps Publish (which sends under the read
	// lock) from racing a send against the close.
	b.mu.Lock()
	if subs, ok := b.subs[sub.topic]; ok {
		delete(subs, sub)
	}
	sub.close()
	b.mu.Unlock()
}

// Publish fans an event out to matching subscribers. Slow subscribers (full
// buffer) miss the event rather than delaying the rest; the loss is logged.
// Sends are non-blocking, so holding the read lock across them is cheap.
func (b *Broker) Publish(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now().UTC()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for sub := range b.subs[e.Topic] {
		if !sub.filter.matches(e) {
			continue
		}
		select {
		case sub.ch <- e:
		default:
			logger.Errorf("event buffer full, dropping %s event for owner=%s convo=%s", e.Topic, e.Owner, e.ConvoID)
		}
	}
}

// Close drops all subscribers. Subsequent Publish calls are no-ops and
// subsequent Subscribe calls return a closed channel.
func (b *Broker) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	all := make([]*subscriber, 0, 16)
	for _, subs := range b.subs {
		for sub := range subs {
			all = append(all, sub)
		}
	}
	b.subs = make(map[Topic]map[*subscriber]struct{})
	b.mu.Unlock()

	for _, sub := range all {
		sub.close()
	}
}
