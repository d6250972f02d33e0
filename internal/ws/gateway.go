// Package ws bridges websocket connections to the chat services and the
// event broker: incoming frames become service calls, broker events become
// outgoing frames.
package ws

import (
	"context"
	"sync"

	"github.com/roadmanjs/roadman-chat/internal/chat"
	"github.com/roadmanjs/roadman-chat/internal/event"
	"github.com/roadmanjs/roadman-chat/internal/logger"
)

type Gateway struct {
	broker   *event.Broker
	messages *chat.MessageService

	mu       sync.Mutex
	total    int
	maxConns int
}

func NewGateway(broker *event.Broker, messages *chat.MessageService, maxConns int) *Gateway {
	if maxConns <= 0 {
		maxConns = 10000
	}
	return &Gateway{broker: broker, messages: messages, maxConns: maxConns}
}

// Register admits a client or closes it when the connection limit is hit.
func (g *Gateway) Register(c *Client) bool {
	g.mu.Lock()
	if g.total >= g.maxConns {
		g.mu.Unlock()
		logger.Errorf("ws connection limit reached (%d), rejecting user=%s", g.maxConns, c.userID)
		c.Close()
		return false
	}
	g.total++
	g.mu.Unlock()
	return true
}

func (g *Gateway) Unregister(c *Client) {
	g.mu.Lock()
	g.total--
	g.mu.Unlock()
}

// HandleFrame dispatches one incoming frame.
func (g *Gateway) HandleFrame(ctx context.Context, c *Client, f IncomingFrame) {
	switch f.Type {
	case FrameSubscribe:
		if f.ConvoID == "" {
			c.enqueue(OutgoingFrame{Type: FrameError, Payload: "convo_id required"})
			return
		}
		c.subscribeConvo(f.ConvoID)
		c.enqueue(OutgoingFrame{Type: FrameAck, ConvoID: f.ConvoID})
	case FrameUnsubscribe:
		c.unsubscribeConvo(f.ConvoID)
	case FrameMessage:
		res := g.messages.CreateMessage(ctx, chat.CreateMessageArgs{
			ConvoID:     f.ConvoID,
			Owner:       c.userID,
			Body:        f.Body,
			Attachments: f.Attachments,
		})
		if !res.Success {
			c.enqueue(OutgoingFrame{Type: FrameError, ConvoID: f.ConvoID, Payload: res.Message})
		}
	case FrameTyping:
		if f.ConvoID == "" {
			return
		}
		g.messages.NotifyTyping(ctx, f.ConvoID, c.userID)
	default:
		c.enqueue(OutgoingFrame{Type: FrameError, Payload: "unknown frame type"})
	}
}
