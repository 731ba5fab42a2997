package boltstore

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	bolt "go.etcd.io/bbolt"

	"github.com/openshelf/lending-hub/internal/domain/book"
	"github.com/openshelf/lending-hub/internal/domain/loan"
	"github.com/openshelf/lending-hub/internal/domain/message"
)

func openTestDB(t *testing.T) *bolt.DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "lending.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestLoans_VersionedWrites(t *testing.T) {
	ctx := context.Background()
	store := NewStore(openTestDB(t))

	l := loan.NewLoan("book-1", "lender", "borrower", nil, time.Now())
	require.NoError(t, store.Loans().Create(ctx, l))
	assert.Equal(t, int64(1), l.ID)

	got, err := store.Loans().GetByID(ctx, l.LoanID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, l.ID, got.ID)
	assert.Equal(t, "borrower", got.BorrowerID)

	next := got.Clone()
	next.Status = loan.StatusApproved
	next.Version = 2
	require.NoError(t, store.Loans().Update(ctx, next, 1))
	assert.ErrorIs(t, store.Loans().Update(ctx, next, 1), loan.ErrConflict)

	got, err = store.Loans().GetByID(ctx, l.LoanID)
	require.NoError(t, err)
	assert.Equal(t, loan.StatusApproved, got.Status)
	assert.Equal(t, int64(1), got.ID)

	assert.ErrorIs(t, store.Loans().Delete(ctx, l.LoanID, 1), loan.ErrConflict)
	require.NoError(t, store.Loans().Delete(ctx, l.LoanID, 2))
	assert.ErrorIs(t, store.Loans().Delete(ctx, l.LoanID, 2), loan.ErrConflict)

	missing, err := store.Loans().GetByID(ctx, uuid.New())
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestLoans_ActiveRequestIsUnique(t *testing.T) {
	ctx := context.Background()
	store := NewStore(openTestDB(t))

	require.NoError(t, store.Loans().Create(ctx, loan.NewLoan("book-1", "lender", "borrower", nil, time.Now())))
	err := store.Loans().Create(ctx, loan.NewLoan("book-1", "lender", "borrower", nil, time.Now()))
	assert.ErrorIs(t, err, loan.ErrConflict)

	require.NoError(t, store.Loans().Create(ctx, loan.NewLoan("book-1", "lender", "someone-else", nil, time.Now())))
}

func TestLoans_ListFilters(t *testing.T) {
	ctx := context.Background()
	store := NewStore(openTestDB(t))
	base := time.Now().Add(-time.Hour)

	older := loan.NewLoan("book-1", "alice", "bob", nil, base)
	newer := loan.NewLoan("book-2", "bob", "alice", nil, base.Add(time.Minute))
	other := loan.NewLoan("book-3", "carol", "dave", nil, base)
	for _, l := range []*loan.Loan{older, newer, other} {
		require.NoError(t, store.Loans().Create(ctx, l))
	}

	all, err := store.Loans().List(ctx, loan.Filter{UserID: "alice"})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, newer.LoanID, all[0].LoanID)
	assert.Equal(t, older.LoanID, all[1].LoanID)

	lending, err := store.Loans().List(ctx, loan.Filter{UserID: "alice", Role: loan.RoleLender})
	require.NoError(t, err)
	require.Len(t, lending, 1)
	assert.Equal(t, older.LoanID, lending[0].LoanID)

	approved := loan.StatusApproved
	none, err := store.Loans().List(ctx, loan.Filter{UserID: "alice", Status: &approved})
	require.NoError(t, err)
	assert.Empty(t, none)

	everyone, err := store.Loans().List(ctx, loan.Filter{})
	require.NoError(t, err)
	assert.Len(t, everyone, 3)
}

func TestLedger_CompareAndSet(t *testing.T) {
	ctx := context.Background()
	store := NewStore(openTestDB(t))

	require.NoError(t, store.Books().Register(ctx, book.NewBook("book-1", "alice")))
	require.NoError(t, store.Books().Register(ctx, book.NewBook("book-1", "alice")))
	assert.ErrorIs(t, store.Books().Register(ctx, book.NewBook("book-1", "mallory")), loan.ErrConflict)

	require.NoError(t, store.Books().SetAvailability(ctx, "book-1", book.AvailabilityAvailable, book.AvailabilityLentOut))
	err := store.Books().SetAvailability(ctx, "book-1", book.AvailabilityAvailable, book.AvailabilityLentOut)
	assert.ErrorIs(t, err, loan.ErrConflict)
	assert.ErrorIs(t, store.Books().SetAvailability(ctx, "nope", book.AvailabilityAvailable, book.AvailabilityLentOut), loan.ErrNotFound)

	got, err := store.Books().Get(ctx, "book-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, book.AvailabilityLentOut, got.Availability)
	assert.Equal(t, "alice", got.OwnerID)
	assert.Equal(t, int64(1), got.ID)
}

func TestAtomic_RollsBackOnError(t *testing.T) {
	ctx := context.Background()
	store := NewStore(openTestDB(t))
	require.NoError(t, store.Books().Register(ctx, book.NewBook("book-1", "alice")))

	l := loan.NewLoan("book-1", "alice", "bob", nil, time.Now())
	boom := errors.New("boom")
	err := store.Atomic(ctx, func(loans loan.Repository, books book.Ledger) error {
		if err := loans.Create(ctx, l); err != nil {
			return err
		}
		if err := books.SetAvailability(ctx, "book-1", book.AvailabilityAvailable, book.AvailabilityLentOut); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	got, err := store.Loans().GetByID(ctx, l.LoanID)
	require.NoError(t, err)
	assert.Nil(t, got)
	b, err := store.Books().Get(ctx, "book-1")
	require.NoError(t, err)
	assert.Equal(t, book.AvailabilityAvailable, b.Availability)
}

func TestAtomic_CancelledContext(t *testing.T) {
	store := NewStore(openTestDB(t))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := store.Atomic(ctx, func(loans loan.Repository, books book.Ledger) error { return nil })
	assert.ErrorIs(t, err, loan.ErrUnavailable)
}

func TestMessageRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewMessageRepository(openTestDB(t))

	first, err := message.NewMessage("alice", "bob", "hello", nil, nil)
	require.NoError(t, err)
	second, err := message.NewMessage("bob", "alice", "hi back", nil, nil)
	require.NoError(t, err)
	third, err := message.NewMessage("carol", "bob", "unrelated", nil, nil)
	require.NoError(t, err)
	for _, m := range []*message.Message{first, second, third} {
		require.NoError(t, repo.Create(ctx, m))
	}
	assert.ErrorIs(t, repo.Create(ctx, first), loan.ErrConflict)

	got, err := repo.GetByID(ctx, second.MessageID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "hi back", got.Content)

	thread, err := repo.Conversation(ctx, "bob", "alice", 10, 0)
	require.NoError(t, err)
	require.Len(t, thread, 2)
	assert.Equal(t, first.MessageID, thread[0].MessageID)

	inbox, err := repo.ListForUser(ctx, "bob", 2, 0)
	require.NoError(t, err)
	require.Len(t, inbox, 2)
	assert.Equal(t, third.MessageID, inbox[0].MessageID)

	paged, err := repo.ListForUser(ctx, "bob", 10, 2)
	require.NoError(t, err)
	require.Len(t, paged, 1)
	assert.Equal(t, first.MessageID, paged[0].MessageID)

	unread, err := repo.CountUnread(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, 2, unread)

	n, err := repo.MarkRead(ctx, "bob", []uuid.UUID{first.MessageID, second.MessageID, uuid.New()})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	unread, err = repo.CountUnread(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, 1, unread)
}
