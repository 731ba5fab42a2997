package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/openshelf/lending-hub/internal/domain/book"
	"github.com/openshelf/lending-hub/internal/domain/loan"
)

// Store couples loan and ledger writes in one Postgres transaction.
type Store struct {
	pool  *pgxpool.Pool
	loans *LoanRepository
	books *BookLedger
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{
		pool:  pool,
		loans: NewLoanRepository(pool),
		books: NewBookLedger(pool),
	}
}

func (s *Store) Loans() loan.Repository { return s.loans }

func (s *Store) Books() book.Ledger { return s.books }

// Atomic runs fn in a read-committed transaction; the versioned updates provide
// the isolation the state machine needs.
func (s *Store) Atomic(ctx context.Context, fn func(loans loan.Repository, books book.Ledger) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return loan.Unavailable(err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(&LoanRepository{db: tx}, &BookLedger{db: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return translate(err)
	}
	return nil
}
