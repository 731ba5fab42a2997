package lending

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/openshelf/lending-hub/internal/domain/book"
	"github.com/openshelf/lending-hub/internal/domain/loan"
	"github.com/openshelf/lending-hub/internal/domain/notification"
)

// TransitionPayload carries the optional fields of a status change.
type TransitionPayload struct {
	DueDate *time.Time
	Notes   *string
}

// Service runs the loan lifecycle.
type Service struct {
	store  Store
	hub    notification.Publisher
	now    func() time.Time
	logger zerolog.Logger
}

// NewService creates a lending service.
func NewService(store Store, hub notification.Publisher, logger zerolog.Logger) *Service {
	return &Service{
		store:  store,
		hub:    hub,
		now:    time.Now,
		logger: logger.With().Str("service", "lending").Logger(),
	}
}

// RequestLoan creates a loan in the Requested state and tells the lender.
func (s *Service) RequestLoan(ctx context.Context, bookID, borrowerID string, notes *string) (*loan.Loan, error) {
	bookID = strings.TrimSpace(bookID)
	if bookID == "" || borrowerID == "" {
		return nil, fmt.Errorf("%w: book id and borrower are required", loan.ErrInvalidInput)
	}

	var created *loan.Loan
	err := s.store.Atomic(ctx, func(loans loan.Repository, books book.Ledger) error {
		b, err := books.Get(ctx, bookID)
		if err != nil {
			return err
		}
		if b == nil {
			return fmt.Errorf("%w: book %s", loan.ErrNotFound, bookID)
		}
		if b.OwnerID == borrowerID {
			return loan.ErrForbidden
		}
		if !b.IsAvailable() {
			return loan.Conflictf("book %s is %s", bookID, b.Availability)
		}

		existing, err := loans.List(ctx, loan.Filter{UserID: borrowerID, Role: loan.RoleBorrower, BookID: &bookID})
		if err != nil {
			return err
		}
		for _, l := range existing {
			if l.IsActiveRequest() {
				return loan.Conflictf("an active request for book %s already exists", bookID)
			}
		}

		created = loan.NewLoan(bookID, b.OwnerID, borrowerID, notes, s.now())
		return loans.Create(ctx, created)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("loan_id", created.LoanID.String()).
		Str("book_id", bookID).
		Str("borrower_id", borrowerID).
		Msg("loan requested")
	s.hub.PublishLoanRequested(created)
	return created, nil
}

// ApplyTransition moves a loan to target on behalf of actorID. The loan write and
// any availability change commit together; the status change is announced only
// after the commit. A competing write between load and commit yields ErrConflict.
func (s *Service) ApplyTransition(ctx context.Context, loanID uuid.UUID, target loan.Status, actorID string, payload TransitionPayload) (*loan.Loan, error) {
	if _, err := loan.ParseStatus(string(target)); err != nil {
		return nil, fmt.Errorf("%w: unknown status %q", loan.ErrInvalidInput, target)
	}

	prev, err := s.store.Loans().GetByID(ctx, loanID)
	if err != nil {
		return nil, err
	}
	if prev == nil {
		return nil, loan.ErrNotFound
	}
	if prev.LenderID != actorID {
		return nil, loan.ErrUnauthorized
	}
	if !prev.CanTransitionTo(target) {
		return nil, loan.NewTransitionError(prev.Status, target)
	}

	now := s.now().UTC()
	next := prev.Clone()
	next.Status = target
	next.Version = prev.Version + 1
	switch target {
	case loan.StatusApproved:
		next.ApprovalDate = &now
	case loan.StatusLent:
		if payload.DueDate == nil {
			return nil, fmt.Errorf("%w: due date is required when lending a book", loan.ErrInvalidInput)
		}
		due := payload.DueDate.UTC()
		if !due.After(now) {
			return nil, fmt.Errorf("%w: due date must be in the future", loan.ErrInvalidInput)
		}
		next.LendDate = &now
		next.DueDate = &due
	case loan.StatusReturned:
		next.ReturnDate = &now
	}
	if payload.Notes != nil {
		n := *payload.Notes
		next.Notes = &n
	}

	// The version check on Update serializes competing transitions of one loan.
	err = s.store.Atomic(ctx, func(loans loan.Repository, books book.Ledger) error {
		if err := loans.Update(ctx, next, prev.Version); err != nil {
			return err
		}
		if expected, status, ok := availabilityChange(prev.Status, target); ok {
			return books.SetAvailability(ctx, prev.BookID, expected, status)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("loan_id", loanID.String()).
		Str("from", string(prev.Status)).
		Str("to", string(next.Status)).
		Int64("version", next.Version).
		Msg("loan status changed")
	s.hub.PublishLoanStatusChanged(&loan.StatusChanged{
		LoanID:         next.LoanID,
		PreviousStatus: prev.Status,
		NewStatus:      next.Status,
		BookID:         next.BookID,
		LenderID:       next.LenderID,
		BorrowerID:     next.BorrowerID,
		Version:        next.Version,
		Timestamp:      s.now().UTC(),
	})
	return next, nil
}

// CancelRequest deletes a Requested or Approved loan on behalf of its borrower.
func (s *Service) CancelRequest(ctx context.Context, loanID uuid.UUID, actorID string) error {
	current, err := s.store.Loans().GetByID(ctx, loanID)
	if err != nil {
		return err
	}
	if current == nil {
		return loan.ErrNotFound
	}
	if current.BorrowerID != actorID {
		return loan.ErrUnauthorized
	}
	if !current.IsActiveRequest() {
		return loan.NewTransitionError(current.Status, loan.StatusCancelled)
	}
	err = s.store.Atomic(ctx, func(loans loan.Repository, _ book.Ledger) error {
		return loans.Delete(ctx, loanID, current.Version)
	})
	if err != nil {
		return err
	}

	s.logger.Info().Str("loan_id", loanID.String()).Str("borrower_id", actorID).Msg("loan request cancelled")
	s.hub.PublishLoanCancelled(current, actorID)
	return nil
}

// GetLoan returns a loan visible to actorID.
func (s *Service) GetLoan(ctx context.Context, loanID uuid.UUID, actorID string) (*loan.Loan, error) {
	l, err := s.store.Loans().GetByID(ctx, loanID)
	if err != nil {
		return nil, err
	}
	if l == nil {
		return nil, loan.ErrNotFound
	}
	if !l.IsParty(actorID) {
		return nil, loan.ErrUnauthorized
	}
	return l, nil
}

// ListLoans lists the actor's loans, newest request first.
func (s *Service) ListLoans(ctx context.Context, actorID string, role loan.Role, status *loan.Status) ([]*loan.Loan, error) {
	if actorID == "" {
		return nil, loan.ErrUnauthorized
	}
	switch role {
	case loan.RoleAny, loan.RoleLender, loan.RoleBorrower:
	default:
		return nil, fmt.Errorf("%w: unknown role %q", loan.ErrInvalidInput, role)
	}
	return s.store.Loans().List(ctx, loan.Filter{UserID: actorID, Role: role, Status: status})
}

// RegisterBook records ownerID as the owner of bookID in the ledger. Registering
// an already owned book again is a no-op for the same owner.
func (s *Service) RegisterBook(ctx context.Context, bookID, ownerID string) (*book.Book, error) {
	bookID = strings.TrimSpace(bookID)
	if bookID == "" || ownerID == "" {
		return nil, fmt.Errorf("%w: book id and owner are required", loan.ErrInvalidInput)
	}

	existing, err := s.store.Books().Get(ctx, bookID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		if existing.OwnerID != ownerID {
			return nil, loan.ErrUnauthorized
		}
		return existing, nil
	}

	b := book.NewBook(bookID, ownerID)
	b.UpdatedAt = s.now().UTC()
	if err := s.store.Books().Register(ctx, b); err != nil {
		if errors.Is(err, loan.ErrConflict) {
			raced, getErr := s.GetBook(ctx, bookID)
			if getErr != nil {
				return nil, getErr
			}
			if raced.OwnerID != ownerID {
				return nil, loan.ErrUnauthorized
			}
			return raced, nil
		}
		return nil, err
	}
	s.logger.Info().Str("book_id", bookID).Str("owner_id", ownerID).Msg("book registered")
	return b, nil
}

// GetBook reads a ledger entry.
func (s *Service) GetBook(ctx context.Context, bookID string) (*book.Book, error) {
	b, err := s.store.Books().Get(ctx, bookID)
	if err != nil {
		return nil, err
	}
	if b == nil {
		return nil, fmt.Errorf("%w: book %s", loan.ErrNotFound, bookID)
	}
	return b, nil
}

// availabilityChange reports the ledger write a transition requires. Overdue
// books stay Lent Out.
func availabilityChange(from, to loan.Status) (expected, status book.Availability, ok bool) {
	switch to {
	case loan.StatusLent:
		return book.AvailabilityAvailable, book.AvailabilityLentOut, true
	case loan.StatusReturned:
		if from == loan.StatusLent || from == loan.StatusOverdue {
			return book.AvailabilityLentOut, book.AvailabilityAvailable, true
		}
	}
	return "", "", false
}
