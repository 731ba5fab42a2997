package lending

import (
	"context"

	"github.com/openshelf/lending-hub/internal/domain/book"
	"github.com/openshelf/lending-hub/internal/domain/loan"
)

// TxFunc runs against repositories bound to one atomic unit.
type TxFunc = func(loans loan.Repository, books book.Ledger) error

// Store gives the service its repositories and the atomic unit that couples a
// loan write with the book ledger write.
//
// Atomic must either commit every write made by fn or none of them. Backends
// without transactions are wrapped in a CompensatingStore.
type Store interface {
	Loans() loan.Repository
	Books() book.Ledger
	Atomic(ctx context.Context, fn TxFunc) error
}
