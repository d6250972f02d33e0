package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/roadmanjs/roadman-chat/internal/logger"
)

// UnreadRepository keeps unread counters in Postgres. Increment is a single
// upsert with a relative SET, so concurrent senders never lose updates.
type UnreadRepository struct {
	pool *pgxpool.Pool
}

func NewUnreadRepository(pool *pgxpool.Pool) *UnreadRepository {
	return &UnreadRepository{pool: pool}
}

func (r *UnreadRepository) Incr(ctx context.Context, owner, convoID string) error {
	defer logger.DeferLogDuration("unreadRepo.Incr", time.Now())()
	_, err := r.pool.Exec(ctx,
		`INSERT INTO unread_counts (owner, convo_id, count, updated_at)
		 VALUES ($1, $2, 1, now())
		 ON CONFLICT (owner, convo_id)
		 DO UPDATE SET count = unread_counts.count + 1, updated_at = now()`,
		owner, convoID,
	)
	if err != nil {
		return fmt.Errorf("unreadRepo.Incr: %w", err)
	}
	return nil
}

func (r *UnreadRepository) Reset(ctx context.Context, owner, convoID string) (bool, error) {
	defer logger.DeferLogDuration("unreadRepo.Reset", time.Now())()
	tag, err := r.pool.Exec(ctx,
		`UPDATE unread_counts SET count = 0, updated_at = now()
		 WHERE owner = $1 AND convo_id = $2`,
		owner, convoID,
	)
	if err != nil {
		return false, fmt.Errorf("unreadRepo.Reset: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *UnreadRepository) Get(ctx context.Context, owner, convoID string) (int, error) {
	defer logger.DeferLogDuration("unreadRepo.Get", time.Now())()
	var count int
	err := r.pool.QueryRow(ctx,
		`SELECT count FROM unread_counts WHERE owner = $1 AND convo_id = $2`,
		owner, convoID,
	).Scan(&count)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("unreadRepo.Get: %w", err)
	}
	return count, nil
}

// Close is a no-op: the pool is owned by the caller.
func (r *UnreadRepository) Close() error { return nil }
