package gormstore

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/openshelf/lending-hub/internal/domain/message"
)

// MessageRepository implements message.Repository.
type MessageRepository struct {
	db *gorm.DB
}

func NewMessageRepository(db *gorm.DB) *MessageRepository {
	return &MessageRepository{db: db}
}

func (r *MessageRepository) Create(ctx context.Context, m *message.Message) error {
	rec := toMessageRecord(m)
	if err := r.db.WithContext(ctx).Create(rec).Error; err != nil {
		return translate(err)
	}
	m.ID = rec.ID
	return nil
}

func (r *MessageRepository) GetByID(ctx context.Context, messageID uuid.UUID) (*message.Message, error) {
	var rec messageRecord
	err := r.db.WithContext(ctx).Where("message_id = ?", messageID.String()).Take(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, translate(err)
	}
	return rec.toDomain()
}

func (r *MessageRepository) ListForUser(ctx context.Context, userID string, limit, offset int) ([]*message.Message, error) {
	q := r.db.WithContext(ctx).
		Where("sender_id = ? OR recipient_id = ?", userID, userID).
		Order("created_at DESC").Order("id DESC")
	return r.find(q, limit, offset)
}

func (r *MessageRepository) Conversation(ctx context.Context, userID, otherID string, limit, offset int) ([]*message.Message, error) {
	q := r.db.WithContext(ctx).
		Where("(sender_id = ? AND recipient_id = ?) OR (sender_id = ? AND recipient_id = ?)", userID, otherID, otherID, userID).
		Order("created_at ASC").Order("id ASC")
	return r.find(q, limit, offset)
}

func (r *MessageRepository) MarkRead(ctx context.Context, recipientID string, messageIDs []uuid.UUID) (int, error) {
	ids := make([]string, len(messageIDs))
	for i, id := range messageIDs {
		ids[i] = id.String()
	}
	res := r.db.WithContext(ctx).Model(&messageRecord{}).
		Where("recipient_id = ? AND message_id IN ? AND read = ?", recipientID, ids, false).
		Update("read", true)
	if res.Error != nil {
		return 0, translate(res.Error)
	}
	return int(res.RowsAffected), nil
}

func (r *MessageRepository) CountUnread(ctx context.Context, recipientID string) (int, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&messageRecord{}).
		Where("recipient_id = ? AND read = ?", recipientID, false).
		Count(&n).Error
	if err != nil {
		return 0, translate(err)
	}
	return int(n), nil
}

func (r *MessageRepository) find(q *gorm.DB, limit, offset int) ([]*message.Message, error) {
	if limit > 0 {
		q = q.Limit(limit)
	}
	if offset > 0 {
		q = q.Offset(offset)
	}
	var recs []messageRecord
	if err := q.Find(&recs).Error; err != nil {
		return nil, translate(err)
	}
	out := make([]*message.Message, 0, len(recs))
	for i := range recs {
		m, err := recs[i].toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}
