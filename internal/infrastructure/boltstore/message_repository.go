package boltstore

import (
	"context"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"

	"github.com/openshelf/lending-hub/internal/domain/loan"
	"github.com/openshelf/lending-hub/internal/domain/message"
)

type messageRecord struct {
	Seq int64 `json:"seq"`
	*message.Message
}

// MessageRepository keys messages by sequence so cursor order is insertion order.
type MessageRepository struct {
	db *bolt.DB
}

func NewMessageRepository(db *bolt.DB) *MessageRepository {
	return &MessageRepository{db: db}
}

func (r *MessageRepository) Create(ctx context.Context, m *message.Message) error {
	return r.db.Update(func(tx *bolt.Tx) error {
		idx := tx.Bucket(bucketMsgIndex)
		if idx.Get([]byte(m.MessageID.String())) != nil {
			return loan.Conflictf("message %s already exists", m.MessageID)
		}
		b := tx.Bucket(bucketMessages)
		seq, err := b.NextSequence()
		if err != nil {
			return loan.Unavailable(err)
		}
		m.ID = int64(seq)
		if err := putJSON(b, itob(seq), messageRecord{Seq: m.ID, Message: m}); err != nil {
			return err
		}
		return idx.Put([]byte(m.MessageID.String()), itob(seq))
	})
}

func (r *MessageRepository) GetByID(ctx context.Context, messageID uuid.UUID) (*message.Message, error) {
	var out *message.Message
	err := r.db.View(func(tx *bolt.Tx) error {
		key := tx.Bucket(bucketMsgIndex).Get([]byte(messageID.String()))
		if key == nil {
			return nil
		}
		var err error
		out, err = decodeMessage(tx.Bucket(bucketMessages).Get(key))
		return err
	})
	return out, err
}

func (r *MessageRepository) ListForUser(ctx context.Context, userID string, limit, offset int) ([]*message.Message, error) {
	return r.scan(true, limit, offset, func(m *message.Message) bool {
		return m.SenderID == userID || m.RecipientID == userID
	})
}

func (r *MessageRepository) Conversation(ctx context.Context, userID, otherID string, limit, offset int) ([]*message.Message, error) {
	key := message.ThreadKey(userID, otherID)
	return r.scan(false, limit, offset, func(m *message.Message) bool {
		return m.ThreadKey() == key
	})
}

func (r *MessageRepository) MarkRead(ctx context.Context, recipientID string, messageIDs []uuid.UUID) (int, error) {
	n := 0
	err := r.db.Update(func(tx *bolt.Tx) error {
		idx := tx.Bucket(bucketMsgIndex)
		b := tx.Bucket(bucketMessages)
		for _, id := range messageIDs {
			key := idx.Get([]byte(id.String()))
			if key == nil {
				continue
			}
			m, err := decodeMessage(b.Get(key))
			if err != nil {
				return err
			}
			if m.RecipientID != recipientID || m.Read {
				continue
			}
			m.Read = true
			if err := putJSON(b, key, messageRecord{Seq: m.ID, Message: m}); err != nil {
				return err
			}
			n++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}

func (r *MessageRepository) CountUnread(ctx context.Context, recipientID string) (int, error) {
	out, err := r.scan(false, 0, 0, func(m *message.Message) bool {
		return m.RecipientID == recipientID && !m.Read
	})
	return len(out), err
}

func (r *MessageRepository) scan(newestFirst bool, limit, offset int, keep func(m *message.Message) bool) ([]*message.Message, error) {
	out := make([]*message.Message, 0)
	err := r.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketMessages).Cursor()
		first, next := c.First, c.Next
		if newestFirst {
			first, next = c.Last, c.Prev
		}
		skipped := 0
		for k, v := first(); k != nil; k, v = next() {
			m, err := decodeMessage(v)
			if err != nil {
				return err
			}
			if !keep(m) {
				continue
			}
			if skipped < offset {
				skipped++
				continue
			}
			out = append(out, m)
			if limit > 0 && len(out) == limit {
				break
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func decodeMessage(raw []byte) (*message.Message, error) {
	rec := messageRecord{Message: &message.Message{}}
	if err := codec.Unmarshal(raw, &rec); err != nil {
		return nil, loan.Unavailable(err)
	}
	rec.Message.ID = rec.Seq
	return rec.Message, nil
}
