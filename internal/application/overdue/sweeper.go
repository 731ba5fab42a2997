package overdue

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/openshelf/lending-hub/internal/application/lending"
	"github.com/openshelf/lending-hub/internal/domain/loan"
)

// DefaultInterval is how often the sweeper looks for overdue loans.
const DefaultInterval = 15 * time.Minute

// Transitioner applies status changes through the state machine.
type Transitioner interface {
	ApplyTransition(ctx context.Context, loanID uuid.UUID, target loan.Status, actorID string, payload lending.TransitionPayload) (*loan.Loan, error)
}

// Sweeper marks lent loans Overdue on their lender's behalf. It owns no state
// of its own: every change goes through the state machine.
type Sweeper struct {
	loans    loan.Repository
	lending  Transitioner
	policy   *Policy
	interval time.Duration
	now      func() time.Time
	logger   zerolog.Logger
}

// NewSweeper creates a sweeper.
func NewSweeper(loans loan.Repository, lending Transitioner, policy *Policy, interval time.Duration, logger zerolog.Logger) *Sweeper {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Sweeper{
		loans:    loans,
		lending:  lending,
		policy:   policy,
		interval: interval,
		now:      time.Now,
		logger:   logger.With().Str("service", "overdue").Logger(),
	}
}

// Result summarizes one sweep.
type Result struct {
	Checked int
	Marked  int
	Skipped int
}

// Sweep checks every lent loan once.
func (s *Sweeper) Sweep(ctx context.Context) (Result, error) {
	var res Result
	lent := loan.StatusLent
	loans, err := s.loans.List(ctx, loan.Filter{Status: &lent})
	if err != nil {
		return res, err
	}

	now := s.now().UTC()
	for _, l := range loans {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if l.DueDate == nil {
			continue
		}
		res.Checked++

		overdue, err := s.policy.Evaluate(params(l, now))
		if err != nil {
			s.logger.Warn().Err(err).Str("loan_id", l.LoanID.String()).Str("policy", s.policy.String()).Msg("policy evaluation failed")
			res.Skipped++
			continue
		}
		if !overdue {
			continue
		}

		_, err = s.lending.ApplyTransition(ctx, l.LoanID, loan.StatusOverdue, l.LenderID, lending.TransitionPayload{})
		switch {
		case err == nil:
			res.Marked++
		case errors.Is(err, loan.ErrConflict), errors.Is(err, loan.ErrInvalidTransition), errors.Is(err, loan.ErrNotFound):
			s.logger.Debug().Err(err).Str("loan_id", l.LoanID.String()).Msg("loan changed before it could be marked overdue")
			res.Skipped++
		default:
			return res, err
		}
	}
	return res, nil
}

// Run sweeps immediately and then on every interval until ctx is done.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		res, err := s.Sweep(ctx)
		if err != nil && ctx.Err() == nil {
			s.logger.Error().Err(err).Msg("overdue sweep failed")
		} else if res.Marked > 0 || res.Skipped > 0 {
			s.logger.Info().Int("checked", res.Checked).Int("marked", res.Marked).Int("skipped", res.Skipped).Msg("overdue sweep finished")
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func params(l *loan.Loan, now time.Time) map[string]interface{} {
	pastDue := now.Sub(*l.DueDate)
	var loanDays float64
	if l.LendDate != nil {
		loanDays = now.Sub(*l.LendDate).Hours() / 24
	}
	return map[string]interface{}{
		"hoursPastDue": pastDue.Hours(),
		"daysPastDue":  pastDue.Hours() / 24,
		"loanDays":     loanDays,
		"lenderId":     l.LenderID,
		"borrowerId":   l.BorrowerID,
		"bookId":       l.BookID,
	}
}
