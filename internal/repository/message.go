package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/roadmanjs/roadman-chat/internal/cursor"
	"github.com/roadmanjs/roadman-chat/internal/logger"
	"github.com/roadmanjs/roadman-chat/internal/model"
	"github.com/roadmanjs/roadman-chat/internal/storage"
)

const messageCols = `id, convo_id, owner, body, attachments, created_at`

type MessageRepository struct {
	pool *pgxpool.Pool
}

func NewMessageRepository(pool *pgxpool.Pool) *MessageRepository {
	return &MessageRepository{pool: pool}
}

func scanMessage(s interface{ Scan(dest ...any) error }, m *model.ChatMessage) error {
	return s.Scan(&m.ID, &m.ConvoID, &m.Owner, &m.Body, &m.Attachments, &m.CreatedAt)
}

func (r *MessageRepository) Insert(ctx context.Context, m *model.ChatMessage) error {
	defer logger.DeferLogDuration("msgRepo.Insert", time.Now())()
	_, err := r.pool.Exec(ctx,
		`INSERT INTO chat_messages (id, convo_id, owner, body, attachments, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		m.ID, m.ConvoID, m.Owner, m.Body, m.Attachments, m.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("msgRepo.Insert: %w", err)
	}
	return nil
}

func (r *MessageRepository) GetByID(ctx context.Context, id string) (*model.ChatMessage, error) {
	defer logger.DeferLogDuration("msgRepo.GetByID", time.Now())()
	m := &model.ChatMessage{}
	row := r.pool.QueryRow(ctx, `SELECT `+messageCols+` FROM chat_messages WHERE id = $1`, id)
	err := scanMessage(row, m)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("msgRepo.GetByID: %w", err)
	}
	return m, nil
}

func (r *MessageRepository) PageByConvo(ctx context.Context, convoID string, q cursor.Query) ([]model.ChatMessage, error) {
	defer logger.DeferLogDuration("msgRepo.PageByConvo", time.Now())()
	// q.Sign() is one of two fixed operators, safe to splice.
	sql := fmt.Sprintf(`SELECT `+messageCols+` FROM chat_messages
		 WHERE convo_id = $1 AND created_at %s $2
		 ORDER BY created_at DESC
		 LIMIT $3`, q.Sign())
	rows, err := r.pool.Query(ctx, sql, convoID, q.Anchor, q.FetchLimit())
	if err != nil {
		return nil, fmt.Errorf("msgRepo.PageByConvo query: %w", err)
	}
	defer rows.Close()

	messages := make([]model.ChatMessage, 0, q.FetchLimit())
	for rows.Next() {
		var m model.ChatMessage
		if err := scanMessage(rows, &m); err != nil {
			return nil, fmt.Errorf("msgRepo.PageByConvo scan: %w", err)
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("msgRepo.PageByConvo rows: %w", err)
	}
	return messages, nil
}
