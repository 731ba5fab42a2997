package book

//go:generate go run go.uber.org/mock/mockgen -destination=mocks/mock_ledger.go -package=mocks . Ledger

import "context"

// Ledger defines persistence of the availability flag.
//
// Get returns (nil, nil) for unknown books. SetAvailability is a compare-and-set:
// it writes status only while the stored availability equals expected and reports
// loan.ErrConflict otherwise. Register creates the entry, or is a no-op when the
// same owner registers it again.
type Ledger interface {
	Register(ctx context.Context, book *Book) error
	Get(ctx context.Context, bookID string) (*Book, error)
	SetAvailability(ctx context.Context, bookID string, expected, status Availability) error
}
