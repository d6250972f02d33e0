// Package chat implements the conversation and message domain logic on top
// of the storage contracts. Conversations are materialized once per member;
// the multi-record writes here are independent and non-transactional, so a
// partial failure leaves divergent copies that the reconciler repairs.
package chat

import (
	"context"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/roadmanjs/roadman-chat/internal/cursor"
	"github.com/roadmanjs/roadman-chat/internal/logger"
	"github.com/roadmanjs/roadman-chat/internal/model"
	"github.com/roadmanjs/roadman-chat/internal/storage"
)

// pairLockStripes bounds the memory spent on direct-convo dedup locks.
const pairLockStripes = 64

type ConvoService struct {
	convos storage.ConvoStore
	// pairMu serializes StartConvo per (sorted pair, owner) within this
	// process. Check-then-create across processes can still race; see
	// DESIGN.md.
	pairMu [pairLockStripes]sync.Mutex
}

func NewConvoService(convos storage.ConvoStore) *ConvoService {
	return &ConvoService{convos: convos}
}

func (s *ConvoService) pairLock(a, b, owner string) *sync.Mutex {
	if a > b {
		a, b = b, a
	}
	h := fnv.New32a()
	h.Write([]byte(a + "|" + b + "|" + owner))
	return &s.pairMu[h.Sum32()%pairLockStripes]
}

// dedupeMembers drops duplicate ids preserving order.
func dedupeMembers(members []string) []string {
	seen := make(map[string]struct{}, len(members))
	out := make([]string, 0, len(members))
	for _, m := range members {
		if m == "" {
			continue
		}
		if _, ok := seen[m]; ok {
			continue
		}
		seen[m] = struct{}{}
		out = append(out, m)
	}
	return out
}

// createFanout materializes one conversation record per member. Writes are
// independent: a failure part-way leaves earlier members' copies in place
// (not rolled back) and returns the error.
func (s *ConvoService) createFanout(ctx context.Context, members []string, group bool) ([]model.ChatConvo, error) {
	members = dedupeMembers(members)
	if len(members) < 2 {
		return nil, fmt.Errorf("%w: a conversation needs at least 2 members", ErrValidation)
	}

	convoID := uuid.New().String()
	now := time.Now().UTC()
	created := make([]model.ChatConvo, 0, len(members))
	for _, member := range members {
		c := model.ChatConvo{
			ID:        uuid.New().String(),
			ConvoID:   convoID,
			Members:   members,
			Group:     group,
			Owner:     member,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := s.convos.Insert(ctx, &c); err != nil {
			return created, fmt.Errorf("%w: insert convo for %s: %v", ErrPersistence, member, err)
		}
		created = append(created, c)
	}
	return created, nil
}

// CreateConvo creates a conversation and returns every member's materialized
// copy.
func (s *ConvoService) CreateConvo(ctx context.Context, members []string, group bool) model.ResType {
	defer logger.DeferLogDuration("convo.CreateConvo", time.Now())()
	created, err := s.createFanout(ctx, members, group)
	if err != nil {
		logger.Errorf("create convo: %v", err)
		return model.ResType{Success: false, Message: err.Error()}
	}
	return model.ResType{Success: true, Data: created}
}

// StartConvo returns the requesting owner's direct conversation with the
// other member, creating it when none exists. Only valid for non-group,
// exactly-two-member conversations.
func (s *ConvoService) StartConvo(ctx context.Context, members []string, owner string) model.ResType {
	defer logger.DeferLogDuration("convo.StartConvo", time.Now())()
	members = dedupeMembers(members)
	if len(members) != 2 {
		return model.ResType{Success: false, Message: "direct conversations need exactly 2 members"}
	}
	if owner != members[0] && owner != members[1] {
		return model.ResType{Success: false, Message: "owner must be one of the members"}
	}

	lock := s.pairLock(members[0], members[1], owner)
	lock.Lock()
	defer lock.Unlock()

	existing, err := s.convos.FindDirect(ctx, members[0], members[1], owner)
	if err == nil {
		return model.ResType{Success: true, Data: existing}
	}
	if err != storage.ErrNotFound {
		logger.Errorf("start convo lookup: %v", err)
		return model.ResType{Success: false, Message: "failed to look up conversation"}
	}

	created, err := s.createFanout(ctx, members, false)
	if err != nil {
		logger.Errorf("start convo create: %v", err)
		return model.ResType{Success: false, Message: err.Error()}
	}
	for i := range created {
		if created[i].Owner == owner {
			return model.ResType{Success: true, Data: &created[i]}
		}
	}
	// Owner is always one of the members, so this copy must exist.
	return model.ResType{Success: true, Data: &created[0]}
}

// ConvoByID resolves one materialized record by its storage id. Returns nil
// when the record does not exist or the lookup fails.
func (s *ConvoService) ConvoByID(ctx context.Context, id string) *model.ChatConvo {
	defer logger.DeferLogDuration("convo.ConvoByID", time.Now())()
	c, err := s.convos.GetByID(ctx, id)
	if err != nil {
		if err != storage.ErrNotFound {
			logger.Errorf("convo by id %s: %v", id, err)
		}
		return nil
	}
	return c
}

// ConvoForOwner resolves the owner's copy of a logical conversation. Returns
// nil when the owner has no copy (not a member) or the lookup fails.
func (s *ConvoService) ConvoForOwner(ctx context.Context, convoID, owner string) *model.ChatConvo {
	defer logger.DeferLogDuration("convo.ConvoForOwner", time.Now())()
	c, err := s.convos.GetByConvoAndOwner(ctx, convoID, owner)
	if err != nil {
		if err != storage.ErrNotFound {
			logger.Errorf("convo %s for %s: %v", convoID, owner, err)
		}
		return nil
	}
	return c
}

// PaginateConvos lists an owner's conversations, newest activity first.
// Query failures degrade to an empty page.
func (s *ConvoService) PaginateConvos(ctx context.Context, owner string, before, after *time.Time, limit int) model.ConvoPagination {
	defer logger.DeferLogDuration("convo.PaginateConvos", time.Now())()
	q := cursor.Resolve(before, after, limit)
	params := model.PageParams{Owner: owner, Before: before, After: after, Limit: q.Limit}

	rows, err := s.convos.PageByOwner(ctx, owner, q)
	if err != nil {
		logger.Errorf("paginate convos owner=%s: %v", owner, err)
		return model.ConvoPagination{Items: []model.ChatConvo{}, HasNext: false, Params: params}
	}
	items, hasNext := cursor.Trim(rows, q.Limit)
	return model.ConvoPagination{Items: items, HasNext: hasNext, Params: params}
}
