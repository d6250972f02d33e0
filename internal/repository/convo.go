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

// convoCols selects one member copy together with its last message
// (LEFT JOIN: the pointer is nullable).
const convoCols = `c.id, c.convo_id, c.members, c.is_group, c.owner, c.last_message_id, c.created_at, c.updated_at,
	        lm.id, lm.convo_id, lm.owner, lm.body, lm.attachments, lm.created_at`

const convoFrom = `FROM chat_convos c
	 LEFT JOIN chat_messages lm ON lm.id = c.last_message_id`

type ConvoRepository struct {
	pool *pgxpool.Pool
}

func NewConvoRepository(pool *pgxpool.Pool) *ConvoRepository {
	return &ConvoRepository{pool: pool}
}

// scanConvo scans a row in convoCols order.
func scanConvo(s interface{ Scan(dest ...any) error }, c *model.ChatConvo) error {
	var (
		lmID, lmConvoID, lmOwner, lmBody *string
		lmAttachments                    []string
		lmCreatedAt                      *time.Time
	)
	if err := s.Scan(&c.ID, &c.ConvoID, &c.Members, &c.Group, &c.Owner, &c.LastMessageID, &c.CreatedAt, &c.UpdatedAt,
		&lmID, &lmConvoID, &lmOwner, &lmBody, &lmAttachments, &lmCreatedAt); err != nil {
		return err
	}
	if lmID != nil {
		c.LastMessage = &model.ChatMessage{
			ID:          *lmID,
			ConvoID:     *lmConvoID,
			Owner:       *lmOwner,
			Body:        *lmBody,
			Attachments: lmAttachments,
			CreatedAt:   *lmCreatedAt,
		}
	}
	return nil
}

func (r *ConvoRepository) Insert(ctx context.Context, c *model.ChatConvo) error {
	defer logger.DeferLogDuration("convoRepo.Insert", time.Now())()
	_, err := r.pool.Exec(ctx,
		`INSERT INTO chat_convos (id, convo_id, members, is_group, owner, last_message_id, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		c.ID, c.ConvoID, c.Members, c.Group, c.Owner, c.LastMessageID, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("convoRepo.Insert: %w", err)
	}
	return nil
}

func (r *ConvoRepository) GetByID(ctx context.Context, id string) (*model.ChatConvo, error) {
	defer logger.DeferLogDuration("convoRepo.GetByID", time.Now())()
	c := &model.ChatConvo{}
	row := r.pool.QueryRow(ctx, `SELECT `+convoCols+` `+convoFrom+` WHERE c.id = $1`, id)
	err := scanConvo(row, c)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("convoRepo.GetByID: %w", err)
	}
	return c, nil
}

func (r *ConvoRepository) GetByConvoAndOwner(ctx context.Context, convoID, owner string) (*model.ChatConvo, error) {
	defer logger.DeferLogDuration("convoRepo.GetByConvoAndOwner", time.Now())()
	c := &model.ChatConvo{}
	row := r.pool.QueryRow(ctx,
		`SELECT `+convoCols+` `+convoFrom+` WHERE c.convo_id = $1 AND c.owner = $2`, convoID, owner)
	err := scanConvo(row, c)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("convoRepo.GetByConvoAndOwner: %w", err)
	}
	return c, nil
}

func (r *ConvoRepository) ListByConvo(ctx context.Context, convoID string) ([]model.ChatConvo, error) {
	defer logger.DeferLogDuration("convoRepo.ListByConvo", time.Now())()
	rows, err := r.pool.Query(ctx,
		`SELECT `+convoCols+` `+convoFrom+` WHERE c.convo_id = $1 ORDER BY c.owner`, convoID)
	if err != nil {
		return nil, fmt.Errorf("convoRepo.ListByConvo query: %w", err)
	}
	defer rows.Close()

	convos := make([]model.ChatConvo, 0, 8)
	for rows.Next() {
		var c model.ChatConvo
		if err := scanConvo(rows, &c); err != nil {
			return nil, fmt.Errorf("convoRepo.ListByConvo scan: %w", err)
		}
		convos = append(convos, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("convoRepo.ListByConvo rows: %w", err)
	}
	return convos, nil
}

func (r *ConvoRepository) FindDirect(ctx context.Context, memberA, memberB, owner string) (*model.ChatConvo, error) {
	defer logger.DeferLogDuration("convoRepo.FindDirect", time.Now())()
	c := &model.ChatConvo{}
	row := r.pool.QueryRow(ctx,
		`SELECT `+convoCols+` `+convoFrom+`
		 WHERE c.is_group = false
		   AND c.owner = $3
		   AND c.members @> ARRAY[$1, $2]::text[]
		   AND cardinality(c.members) = 2
		 LIMIT 1`,
		memberA, memberB, owner)
	err := scanConvo(row, c)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("convoRepo.FindDirect: %w", err)
	}
	return c, nil
}

func (r *ConvoRepository) PageByOwner(ctx context.Context, owner string, q cursor.Query) ([]model.ChatConvo, error) {
	defer logger.DeferLogDuration("convoRepo.PageByOwner", time.Now())()
	// q.Sign() is one of two fixed operators, safe to splice.
	sql := fmt.Sprintf(`SELECT `+convoCols+` `+convoFrom+`
		 WHERE c.owner = $1 AND c.updated_at %s $2
		 ORDER BY c.updated_at DESC
		 LIMIT $3`, q.Sign())
	rows, err := r.pool.Query(ctx, sql, owner, q.Anchor, q.FetchLimit())
	if err != nil {
		return nil, fmt.Errorf("convoRepo.PageByOwner query: %w", err)
	}
	defer rows.Close()

	convos := make([]model.ChatConvo, 0, q.FetchLimit())
	for rows.Next() {
		var c model.ChatConvo
		if err := scanConvo(rows, &c); err != nil {
			return nil, fmt.Errorf("convoRepo.PageByOwner scan: %w", err)
		}
		convos = append(convos, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("convoRepo.PageByOwner rows: %w", err)
	}
	return convos, nil
}

func (r *ConvoRepository) SetLastMessage(ctx context.Context, convoID, owner, messageID string, at time.Time) error {
	defer logger.DeferLogDuration("convoRepo.SetLastMessage", time.Now())()
	tag, err := r.pool.Exec(ctx,
		`UPDATE chat_convos SET last_message_id = $1, updated_at = $2
		 WHERE convo_id = $3 AND owner = $4`,
		messageID, at, convoID, owner,
	)
	if err != nil {
		return fmt.Errorf("convoRepo.SetLastMessage: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}
