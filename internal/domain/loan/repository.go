package loan

//go:generate go run go.uber.org/mock/mockgen -destination=mocks/mock_repository.go -package=mocks . Repository

import (
	"context"

	"github.com/google/uuid"
)

// Repository defines loan persistence.
//
// GetByID returns (nil, nil) when the loan does not exist. Update and Delete are
// optimistic: they only apply when the stored version equals expectedVersion and
// report ErrConflict otherwise. Create reports ErrConflict when the borrower already
// holds a Requested or Approved loan for the same book.
type Repository interface {
	Create(ctx context.Context, loan *Loan) error
	GetByID(ctx context.Context, loanID uuid.UUID) (*Loan, error)
	List(ctx context.Context, filter Filter) ([]*Loan, error)
	Update(ctx context.Context, loan *Loan, expectedVersion int64) error
	Delete(ctx context.Context, loanID uuid.UUID, expectedVersion int64) error
}
