package lending

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/openshelf/lending-hub/internal/domain/book"
	"github.com/openshelf/lending-hub/internal/domain/loan"
	"github.com/openshelf/lending-hub/internal/infrastructure/memory"
)

// plainStore runs units without any atomicity, like a document store without
// multi-document transactions.
type plainStore struct {
	loans loan.Repository
	books book.Ledger
}

func (p *plainStore) Loans() loan.Repository { return p.loans }
func (p *plainStore) Books() book.Ledger     { return p.books }
func (p *plainStore) Atomic(_ context.Context, fn TxFunc) error {
	return fn(p.loans, p.books)
}

type failingLedger struct {
	book.Ledger
	err error
}

func (f *failingLedger) SetAvailability(context.Context, string, book.Availability, book.Availability) error {
	return f.err
}

func TestCompensatingStore_RevertsLoanWhenLedgerFails(t *testing.T) {
	ctx := context.Background()
	mem := memory.NewStore()
	registerBook(t, mem)

	seed, seedHub := newTestService(t, mem)
	seedHub.EXPECT().PublishLoanRequested(gomock.Any())
	seedHub.EXPECT().PublishLoanStatusChanged(gomock.Any())
	l, err := seed.RequestLoan(ctx, bookID, borrowerID, nil)
	require.NoError(t, err)
	_, err = seed.ApplyTransition(ctx, l.LoanID, loan.StatusApproved, lenderID, TransitionPayload{})
	require.NoError(t, err)

	base := &plainStore{
		loans: mem.Loans(),
		books: &failingLedger{Ledger: mem.Books(), err: loan.Unavailable(errors.New("ledger offline"))},
	}
	svc, _ := newTestService(t, NewCompensatingStore(base, zerolog.Nop()))

	_, err = svc.ApplyTransition(ctx, l.LoanID, loan.StatusLent, lenderID, dueIn(24*time.Hour))
	require.ErrorIs(t, err, loan.ErrConflict)

	stored, err := mem.Loans().GetByID(ctx, l.LoanID)
	require.NoError(t, err)
	assert.Equal(t, loan.StatusApproved, stored.Status)
	assert.Nil(t, stored.LendDate)
	assert.Equal(t, int64(4), stored.Version)
	assert.Equal(t, book.AvailabilityAvailable, availability(t, mem))
}

func TestCompensatingStore_BookAlreadyOut(t *testing.T) {
	ctx := context.Background()
	mem := memory.NewStore()
	registerBook(t, mem)

	seed, seedHub := newTestService(t, mem)
	seedHub.EXPECT().PublishLoanRequested(gomock.Any())
	seedHub.EXPECT().PublishLoanStatusChanged(gomock.Any())
	l, err := seed.RequestLoan(ctx, bookID, borrowerID, nil)
	require.NoError(t, err)
	_, err = seed.ApplyTransition(ctx, l.LoanID, loan.StatusApproved, lenderID, TransitionPayload{})
	require.NoError(t, err)

	require.NoError(t, mem.Books().SetAvailability(ctx, bookID, book.AvailabilityAvailable, book.AvailabilityLentOut))

	svc, _ := newTestService(t, NewCompensatingStore(&plainStore{loans: mem.Loans(), books: mem.Books()}, zerolog.Nop()))
	_, err = svc.ApplyTransition(ctx, l.LoanID, loan.StatusLent, lenderID, dueIn(24*time.Hour))
	require.ErrorIs(t, err, loan.ErrConflict)

	stored, err := mem.Loans().GetByID(ctx, l.LoanID)
	require.NoError(t, err)
	assert.Equal(t, loan.StatusApproved, stored.Status)
}

func TestCompensatingStore_SuccessKeepsWrites(t *testing.T) {
	ctx := context.Background()
	mem := memory.NewStore()
	registerBook(t, mem)

	svc, hub := newTestService(t, NewCompensatingStore(&plainStore{loans: mem.Loans(), books: mem.Books()}, zerolog.Nop()))
	hub.EXPECT().PublishLoanRequested(gomock.Any())
	hub.EXPECT().PublishLoanStatusChanged(gomock.Any()).Times(2)

	l, err := svc.RequestLoan(ctx, bookID, borrowerID, nil)
	require.NoError(t, err)
	_, err = svc.ApplyTransition(ctx, l.LoanID, loan.StatusApproved, lenderID, TransitionPayload{})
	require.NoError(t, err)
	_, err = svc.ApplyTransition(ctx, l.LoanID, loan.StatusLent, lenderID, dueIn(24*time.Hour))
	require.NoError(t, err)

	assert.Equal(t, book.AvailabilityLentOut, availability(t, mem))
}

func TestCompensatingStore_AnyLedgerFailureReportsConflict(t *testing.T) {
	ctx := context.Background()
	mem := memory.NewStore()
	registerBook(t, mem)

	seed, seedHub := newTestService(t, mem)
	seedHub.EXPECT().PublishLoanRequested(gomock.Any())
	seedHub.EXPECT().PublishLoanStatusChanged(gomock.Any())
	l, err := seed.RequestLoan(ctx, bookID, borrowerID, nil)
	require.NoError(t, err)
	_, err = seed.ApplyTransition(ctx, l.LoanID, loan.StatusApproved, lenderID, TransitionPayload{})
	require.NoError(t, err)

	base := &plainStore{
		loans: mem.Loans(),
		books: &failingLedger{Ledger: mem.Books(), err: loan.ErrNotFound},
	}
	svc, _ := newTestService(t, NewCompensatingStore(base, zerolog.Nop()))

	_, err = svc.ApplyTransition(ctx, l.LoanID, loan.StatusLent, lenderID, dueIn(24*time.Hour))
	assert.ErrorIs(t, err, loan.ErrConflict)
	assert.ErrorIs(t, err, loan.ErrNotFound)

	stored, err := mem.Loans().GetByID(ctx, l.LoanID)
	require.NoError(t, err)
	assert.Equal(t, loan.StatusApproved, stored.Status)
}
