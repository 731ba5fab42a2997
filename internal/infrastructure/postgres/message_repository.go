package postgres

import (
	"context"
	"errors"

	"github.com/doug-martin/goqu/v9"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/openshelf/lending-hub/internal/domain/message"
)

const (
	tableMessages  = "messages"
	colSenderID    = "sender_id"
	colRecipientID = "recipient_id"
	colCreatedAt   = "created_at"
)

var messageColumns = []interface{}{
	"id", "message_id", colSenderID, colRecipientID, "content", "related_book_id", "related_loan_id", "read", colCreatedAt,
}

// MessageRepository implements message.Repository.
type MessageRepository struct {
	db querier
}

func NewMessageRepository(pool *pgxpool.Pool) *MessageRepository {
	return &MessageRepository{db: pool}
}

func (r *MessageRepository) Create(ctx context.Context, m *message.Message) error {
	row := r.db.QueryRow(ctx, `
		INSERT INTO messages (message_id, sender_id, recipient_id, content, related_book_id, related_loan_id, read, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		RETURNING id
	`, m.MessageID, m.SenderID, m.RecipientID, m.Content, m.RelatedBookID, m.RelatedLoanID, m.Read, m.CreatedAt)
	if err := row.Scan(&m.ID); err != nil {
		return translate(err)
	}
	return nil
}

func (r *MessageRepository) GetByID(ctx context.Context, messageID uuid.UUID) (*message.Message, error) {
	query, args, err := dialect().From(tableMessages).Prepared(true).
		Select(messageColumns...).
		Where(goqu.C("message_id").Eq(messageID)).
		ToSQL()
	if err != nil {
		return nil, err
	}
	m, err := scanMessage(r.db.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, translate(err)
	}
	return m, nil
}

func (r *MessageRepository) ListForUser(ctx context.Context, userID string, limit, offset int) ([]*message.Message, error) {
	stmt := dialect().From(tableMessages).Prepared(true).
		Select(messageColumns...).
		Where(goqu.Or(goqu.C(colSenderID).Eq(userID), goqu.C(colRecipientID).Eq(userID))).
		Order(goqu.I(colCreatedAt).Desc(), goqu.I("id").Desc()).
		Limit(uint(limit)).
		Offset(uint(offset))
	return r.query(ctx, stmt)
}

func (r *MessageRepository) Conversation(ctx context.Context, userID, otherID string, limit, offset int) ([]*message.Message, error) {
	stmt := dialect().From(tableMessages).Prepared(true).
		Select(messageColumns...).
		Where(goqu.Or(
			goqu.And(goqu.C(colSenderID).Eq(userID), goqu.C(colRecipientID).Eq(otherID)),
			goqu.And(goqu.C(colSenderID).Eq(otherID), goqu.C(colRecipientID).Eq(userID)),
		)).
		Order(goqu.I(colCreatedAt).Asc(), goqu.I("id").Asc()).
		Limit(uint(limit)).
		Offset(uint(offset))
	return r.query(ctx, stmt)
}

func (r *MessageRepository) MarkRead(ctx context.Context, recipientID string, messageIDs []uuid.UUID) (int, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE messages SET read = TRUE
		WHERE recipient_id=$1 AND message_id = ANY($2::uuid[]) AND NOT read
	`, recipientID, uuidStrings(messageIDs))
	if err != nil {
		return 0, translate(err)
	}
	return int(tag.RowsAffected()), nil
}

func (r *MessageRepository) CountUnread(ctx context.Context, recipientID string) (int, error) {
	var n int
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM messages WHERE recipient_id=$1 AND NOT read`, recipientID).Scan(&n)
	if err != nil {
		return 0, translate(err)
	}
	return n, nil
}

func (r *MessageRepository) query(ctx context.Context, stmt *goqu.SelectDataset) ([]*message.Message, error) {
	query, args, err := stmt.ToSQL()
	if err != nil {
		return nil, err
	}
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, translate(err)
	}
	defer rows.Close()

	out := make([]*message.Message, 0)
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, translate(err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, translate(err)
	}
	return out, nil
}

func scanMessage(row pgx.Row) (*message.Message, error) {
	var m message.Message
	if err := row.Scan(&m.ID, &m.MessageID, &m.SenderID, &m.RecipientID, &m.Content, &m.RelatedBookID, &m.RelatedLoanID, &m.Read, &m.CreatedAt); err != nil {
		return nil, err
	}
	return &m, nil
}

func uuidStrings(ids []uuid.UUID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}
