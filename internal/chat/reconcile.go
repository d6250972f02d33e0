package chat

import (
	"context"
	"time"

	"github.com/roadmanjs/roadman-chat/internal/cursor"
	"github.com/roadmanjs/roadman-chat/internal/logger"
	"github.com/roadmanjs/roadman-chat/internal/storage"
)

const repairQueueSize = 256

// Reconciler repairs conversations whose member copies diverged after a
// partial fan-out failure: it re-reads the newest message and rewrites the
// last-message pointer on every copy that disagrees. Queued convo ids are
// processed by a single background worker; when the queue is full the id is
// dropped (the next message to the convo re-triggers repair).
type Reconciler struct {
	convos   storage.ConvoStore
	messages storage.MessageStore
	queue    chan string
}

func NewReconciler(convos storage.ConvoStore, messages storage.MessageStore) *Reconciler {
	return &Reconciler{
		convos:   convos,
		messages: messages,
		queue:    make(chan string, repairQueueSize),
	}
}

// Enqueue schedules a conversation for repair. Non-blocking.
func (r *Reconciler) Enqueue(convoID string) {
	select {
	case r.queue <- convoID:
	default:
		logger.Errorf("repair queue full, dropping convo=%s", convoID)
	}
}

// Run processes the repair queue until ctx is cancelled.
func (r *Reconciler) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case convoID := <-r.queue:
			opCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			r.repair(opCtx, convoID)
			cancel()
		}
	}
}

func (r *Reconciler) repair(ctx context.Context, convoID string) {
	defer logger.DeferLogDuration("repair.convo", time.Now())()

	// The newest stored message is the authority.
	now := time.Now().UTC()
	rows, err := r.messages.PageByConvo(ctx, convoID, cursor.Resolve(&now, nil, 1))
	if err != nil {
		logger.Errorf("repair convo=%s read messages: %v", convoID, err)
		return
	}
	if len(rows) == 0 {
		return
	}
	latest := rows[0]

	copies, err := r.convos.ListByConvo(ctx, convoID)
	if err != nil {
		logger.Errorf("repair convo=%s list copies: %v", convoID, err)
		return
	}
	for _, c := range copies {
		if c.LastMessageID != nil && *c.LastMessageID == latest.ID {
			continue
		}
		if err := r.convos.SetLastMessage(ctx, convoID, c.Owner, latest.ID, latest.CreatedAt); err != nil {
			logger.Errorf("repair convo=%s member=%s: %v", convoID, c.Owner, err)
		}
	}
}
