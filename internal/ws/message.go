package ws

import "github.com/roadmanjs/roadman-chat/internal/event"

type FrameType string

// Frames the client sends.
const (
	FrameSubscribe   FrameType = "subscribe"   // attach to a conversation's message/typing events
	FrameUnsubscribe FrameType = "unsubscribe" // detach from a conversation
	FrameMessage     FrameType = "message"     // create a message
	FrameTyping      FrameType = "typing"      // typing signal
)

// Frames the server sends.
const (
	FrameEventMessage FrameType = "message"
	FrameEventConvo   FrameType = "convo"
	FrameEventTyping  FrameType = "typing"
	FrameAck          FrameType = "ack"
	FrameError        FrameType = "error"
)

// IncomingFrame is what the client sends to the server.
type IncomingFrame struct {
	Type        FrameType `json:"type"`
	ConvoID     string    `json:"convo_id,omitempty"`
	Body        string    `json:"body,omitempty"`
	Attachments []string  `json:"attachments,omitempty"`
}

// OutgoingFrame is what the server sends to the client. Payload uses the
// broker's typed payloads; no map[string]any on the hot path.
type OutgoingFrame struct {
	Type    FrameType `json:"type"`
	ConvoID string    `json:"convo_id,omitempty"`
	Payload any       `json:"payload,omitempty"`
}

// frameTypeFor maps a broker topic to the outgoing frame type.
func frameTypeFor(t event.Topic) FrameType {
	switch t {
	case event.TopicMessage:
		return FrameEventMessage
	case event.TopicConvo:
		return FrameEventConvo
	case event.TopicTyping:
		return FrameEventTyping
	}
	return FrameError
}
