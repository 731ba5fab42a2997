package lending

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/openshelf/lending-hub/internal/domain/book"
	"github.com/openshelf/lending-hub/internal/domain/loan"
)

// CompensatingStore gives a non-transactional backend an atomic unit by undoing
// completed writes, newest first, when a later write in the same unit fails.
// Undo writes are versioned, so a concurrent writer that got in between makes
// the compensation fail loudly instead of clobbering its change.
type CompensatingStore struct {
	base   Store
	logger zerolog.Logger
}

// NewCompensatingStore wraps base. The base's own Atomic is never used.
func NewCompensatingStore(base Store, logger zerolog.Logger) *CompensatingStore {
	return &CompensatingStore{
		base:   base,
		logger: logger.With().Str("component", "compensating_store").Logger(),
	}
}

func (c *CompensatingStore) Loans() loan.Repository { return c.base.Loans() }

func (c *CompensatingStore) Books() book.Ledger { return c.base.Books() }

// Atomic runs fn and compensates its writes if it fails.
func (c *CompensatingStore) Atomic(ctx context.Context, fn TxFunc) error {
	j := &journal{}
	loans := &journalLoans{Repository: c.base.Loans(), journal: j}
	books := &journalBooks{Ledger: c.base.Books(), journal: j}

	err := fn(loans, books)
	if err == nil {
		return nil
	}
	if len(j.undo) == 0 {
		return err
	}

	for i := len(j.undo) - 1; i >= 0; i-- {
		step := j.undo[i]
		if uerr := step.run(ctx); uerr != nil {
			c.logger.Error().Err(uerr).Str("step", step.name).Msg("compensation failed")
			return errors.Join(err, fmt.Errorf("%w: compensation %s failed: %v", loan.ErrConflict, step.name, uerr))
		}
		c.logger.Warn().Str("step", step.name).Err(err).Msg("write compensated")
	}
	if errors.Is(err, loan.ErrConflict) {
		return err
	}
	return errors.Join(loan.ErrConflict, err)
}

type undoStep struct {
	name string
	run  func(ctx context.Context) error
}

type journal struct {
	undo []undoStep
}

func (j *journal) push(name string, run func(ctx context.Context) error) {
	j.undo = append(j.undo, undoStep{name: name, run: run})
}

type journalLoans struct {
	loan.Repository
	journal *journal
}

func (r *journalLoans) Create(ctx context.Context, l *loan.Loan) error {
	if err := r.Repository.Create(ctx, l); err != nil {
		return err
	}
	id, version := l.LoanID, l.Version
	r.journal.push("delete created loan", func(ctx context.Context) error {
		return r.Repository.Delete(ctx, id, version)
	})
	return nil
}

func (r *journalLoans) Update(ctx context.Context, l *loan.Loan, expectedVersion int64) error {
	prev, err := r.Repository.GetByID(ctx, l.LoanID)
	if err != nil {
		return err
	}
	if prev == nil {
		return loan.ErrNotFound
	}
	if err := r.Repository.Update(ctx, l, expectedVersion); err != nil {
		return err
	}
	written := l.Version
	r.journal.push("revert loan update", func(ctx context.Context) error {
		restore := prev.Clone()
		restore.Version = written + 1
		return r.Repository.Update(ctx, restore, written)
	})
	return nil
}

func (r *journalLoans) Delete(ctx context.Context, loanID uuid.UUID, expectedVersion int64) error {
	prev, err := r.Repository.GetByID(ctx, loanID)
	if err != nil {
		return err
	}
	if err := r.Repository.Delete(ctx, loanID, expectedVersion); err != nil {
		return err
	}
	if prev != nil {
		r.journal.push("restore deleted loan", func(ctx context.Context) error {
			return r.Repository.Create(ctx, prev.Clone())
		})
	}
	return nil
}

type journalBooks struct {
	book.Ledger
	journal *journal
}

func (l *journalBooks) SetAvailability(ctx context.Context, bookID string, expected, status book.Availability) error {
	if err := l.Ledger.SetAvailability(ctx, bookID, expected, status); err != nil {
		return err
	}
	l.journal.push("revert book availability", func(ctx context.Context) error {
		return l.Ledger.SetAvailability(ctx, bookID, status, expected)
	})
	return nil
}
