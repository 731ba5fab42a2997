package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/openshelf/lending-hub/internal/domain/book"
	"github.com/openshelf/lending-hub/internal/domain/loan"
)

// BookLedger implements book.Ledger.
type BookLedger struct {
	db querier
}

func NewBookLedger(pool *pgxpool.Pool) *BookLedger {
	return &BookLedger{db: pool}
}

func (l *BookLedger) Register(ctx context.Context, b *book.Book) error {
	if err := book.ValidateAvailability(b.Availability); err != nil {
		return loan.ErrInvalidInput
	}
	row := l.db.QueryRow(ctx, `
		INSERT INTO book_ledger (book_id, owner_id, availability, updated_at)
		VALUES ($1,$2,$3,$4)
		ON CONFLICT (book_id) DO UPDATE SET book_id = EXCLUDED.book_id
		RETURNING id, owner_id
	`, b.BookID, b.OwnerID, b.Availability, b.UpdatedAt)
	var ownerID string
	if err := row.Scan(&b.ID, &ownerID); err != nil {
		return translate(err)
	}
	if ownerID != b.OwnerID {
		return loan.Conflictf("book %s is owned by another user", b.BookID)
	}
	return nil
}

func (l *BookLedger) Get(ctx context.Context, bookID string) (*book.Book, error) {
	row := l.db.QueryRow(ctx, `
		SELECT id, book_id, owner_id, availability, updated_at FROM book_ledger WHERE book_id=$1
	`, bookID)
	var b book.Book
	if err := row.Scan(&b.ID, &b.BookID, &b.OwnerID, &b.Availability, &b.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, translate(err)
	}
	return &b, nil
}

func (l *BookLedger) SetAvailability(ctx context.Context, bookID string, expected, status book.Availability) error {
	if err := book.ValidateAvailability(status); err != nil {
		return loan.ErrInvalidInput
	}
	tag, err := l.db.Exec(ctx, `
		UPDATE book_ledger SET availability=$1, updated_at=NOW()
		WHERE book_id=$2 AND availability=$3
	`, status, bookID, expected)
	if err != nil {
		return translate(err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	existing, err := l.Get(ctx, bookID)
	if err != nil {
		return err
	}
	if existing == nil {
		return loan.ErrNotFound
	}
	return loan.Conflictf("book %s is %s, expected %s", bookID, existing.Availability, expected)
}
