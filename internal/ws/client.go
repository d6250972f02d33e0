package ws

import (
	"bytes"
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/roadmanjs/roadman-chat/internal/event"
	"github.com/roadmanjs/roadman-chat/internal/logger"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBufSize    = 256
)

// bufPool pools bytes.Buffer for JSON encoding in the hot path (writePump).
var bufPool = sync.Pool{
	New: func() any { return new(bytes.Buffer) },
}

// Client is one websocket connection. On Start it is subscribed to the
// user's conversation-update events; per-conversation message and typing
// subscriptions are attached on demand via subscribe frames.
// Lifecycle: NewClient -> Register -> Start(ctx, cancel) -> pumps -> Close.
type Client struct {
	gw     *Gateway
	conn   *websocket.Conn
	send   chan OutgoingFrame
	userID string

	// done guards enqueue against a closed client.
	done   chan struct{}
	cancel context.CancelFunc
	once   sync.Once

	ctx    context.Context
	subsMu sync.Mutex
	subs   map[string][]func() // convoID -> broker unsubscribe funcs
}

func NewClient(gw *Gateway, conn *websocket.Conn, userID string) *Client {
	return &Client{
		gw:     gw,
		conn:   conn,
		send:   make(chan OutgoingFrame, sendBufSize),
		userID: userID,
		done:   make(chan struct{}),
		subs:   make(map[string][]func()),
	}
}

// Start launches the pumps and attaches the always-on convo-update
// subscription. ctx controls the whole connection; cancel is stored for
// Close().
func (c *Client) Start(ctx context.Context, cancel context.CancelFunc) {
	c.ctx = ctx
	c.cancel = cancel
	c.attach(event.TopicConvo, event.Filter{Owner: c.userID})
	go c.writePump(ctx)
	go c.readPump(ctx)
}

// Close signals the client to stop. Safe to call multiple times from any
// goroutine. Broker subscriptions die with the connection context.
func (c *Client) Close() {
	c.once.Do(func() {
		if c.cancel != nil {
			c.cancel()
		}
		close(c.done)
		c.conn.Close()
	})
}

// attach forwards a broker subscription into the send channel until the
// subscription channel closes (context cancellation or unsubscribe).
func (c *Client) attach(topic event.Topic, f event.Filter) func() {
	ch, cancel := c.gw.broker.Subscribe(c.ctx, topic, f)
	go func() {
		for e := range ch {
			c.enqueue(OutgoingFrame{Type: frameTypeFor(e.Topic), ConvoID: e.ConvoID, Payload: e.Payload})
		}
	}()
	return cancel
}

func (c *Client) subscribeConvo(convoID string) {
	c.subsMu.Lock()
	defer c.subsMu.Unlock()
	if _, ok := c.subs[convoID]; ok {
		return
	}
	filter := event.Filter{Owner: c.userID, ConvoID: convoID}
	c.subs[convoID] = []func(){
		c.attach(event.TopicMessage, filter),
		c.attach(event.TopicTyping, filter),
	}
}

func (c *Client) unsubscribeConvo(convoID string) {
	c.subsMu.Lock()
	cancels := c.subs[convoID]
	delete(c.subs, convoID)
	c.subsMu.Unlock()
	for _, cancel := range cancels {
		cancel()
	}
}

// enqueue queues a frame without blocking; a full buffer closes the slow
// client (backpressure rule shared with the broker).
func (c *Client) enqueue(f OutgoingFrame) {
	select {
	case c.send <- f:
	case <-c.done:
	default:
		logger.Errorf("ws send buffer full, closing slow client user=%s", c.userID)
		c.Close()
	}
}

// readPump reads frames from the connection. Exits on read error (triggered
// by conn.Close from Close() or writePump exit).
func (c *Client) readPump(ctx context.Context) {
	defer func() {
		c.gw.Unregister(c)
		c.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		logger.Errorf("ws set read deadline user=%s: %v", c.userID, err)
		return
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Errorf("ws read error user=%s: %v", c.userID, err)
			}
			return
		}

		var f IncomingFrame
		if err := json.Unmarshal(raw, &f); err != nil {
			logger.Errorf("ws unmarshal error user=%s: %v", c.userID, err)
			continue
		}
		c.gw.HandleFrame(ctx, c, f)
	}
}

// writePump writes frames to the connection. Exits on ctx cancellation,
// write error, or connection close.
func (c *Client) writePump(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			if err := c.conn.WriteMessage(websocket.CloseMessage, nil); err != nil {
				logger.Errorf("ws close message user=%s: %v", c.userID, err)
			}
			return
		case f := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				logger.Errorf("ws set write deadline user=%s: %v", c.userID, err)
				return
			}
			buf := bufPool.Get().(*bytes.Buffer)
			buf.Reset()
			enc := json.NewEncoder(buf)
			if err := enc.Encode(f); err != nil {
				bufPool.Put(buf)
				logger.Errorf("ws marshal error user=%s: %v", c.userID, err)
				continue
			}
			data := buf.Bytes()
			// json.Encoder appends '\n'; trim it for websocket text frames.
			if len(data) > 0 && data[len(data)-1] == '\n' {
				data = data[:len(data)-1]
			}
			writeErr := c.conn.WriteMessage(websocket.TextMessage, data)
			bufPool.Put(buf)
			if writeErr != nil {
				return
			}
		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				logger.Errorf("ws set write deadline user=%s: %v", c.userID, err)
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
