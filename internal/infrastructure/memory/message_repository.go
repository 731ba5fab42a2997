package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/openshelf/lending-hub/internal/domain/loan"
	"github.com/openshelf/lending-hub/internal/domain/message"
)

var nowUTC = func() time.Time { return time.Now().UTC() }

// MessageRepository keeps messages in insertion order.
type MessageRepository struct {
	mu       sync.RWMutex
	messages []*message.Message
	byID     map[uuid.UUID]*message.Message
}

func NewMessageRepository() *MessageRepository {
	return &MessageRepository{byID: make(map[uuid.UUID]*message.Message)}
}

func (r *MessageRepository) Create(ctx context.Context, msg *message.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[msg.MessageID]; ok {
		return loan.Conflictf("message %s already exists", msg.MessageID)
	}
	cp := *msg
	cp.ID = int64(len(r.messages) + 1)
	msg.ID = cp.ID
	r.messages = append(r.messages, &cp)
	r.byID[cp.MessageID] = &cp
	return nil
}

func (r *MessageRepository) GetByID(ctx context.Context, messageID uuid.UUID) (*message.Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.byID[messageID]
	if !ok {
		return nil, nil
	}
	cp := *m
	return &cp, nil
}

func (r *MessageRepository) ListForUser(ctx context.Context, userID string, limit, offset int) ([]*message.Message, error) {
	out := r.collect(func(m *message.Message) bool {
		return m.SenderID == userID || m.RecipientID == userID
	})
	sort.SliceStable(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return page(out, limit, offset), nil
}

func (r *MessageRepository) Conversation(ctx context.Context, userID, otherID string, limit, offset int) ([]*message.Message, error) {
	key := message.ThreadKey(userID, otherID)
	out := r.collect(func(m *message.Message) bool { return m.ThreadKey() == key })
	return page(out, limit, offset), nil
}

func (r *MessageRepository) MarkRead(ctx context.Context, recipientID string, messageIDs []uuid.UUID) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, id := range messageIDs {
		m, ok := r.byID[id]
		if !ok || m.RecipientID != recipientID || m.Read {
			continue
		}
		m.Read = true
		n++
	}
	return n, nil
}

func (r *MessageRepository) CountUnread(ctx context.Context, recipientID string) (int, error) {
	return len(r.collect(func(m *message.Message) bool {
		return m.RecipientID == recipientID && !m.Read
	})), nil
}

func (r *MessageRepository) collect(keep func(m *message.Message) bool) []*message.Message {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*message.Message, 0)
	for _, m := range r.messages {
		if keep(m) {
			cp := *m
			out = append(out, &cp)
		}
	}
	return out
}

func page(items []*message.Message, limit, offset int) []*message.Message {
	if offset >= len(items) {
		return []*message.Message{}
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
