// Package memory keeps loans, the book ledger and messages in process memory.
// It backs tests and single-process demos.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/openshelf/lending-hub/internal/domain/book"
	"github.com/openshelf/lending-hub/internal/domain/loan"
)

type state struct {
	loans map[uuid.UUID]*loan.Loan
	books map[string]*book.Book
}

func (s *state) clone() *state {
	c := &state{
		loans: make(map[uuid.UUID]*loan.Loan, len(s.loans)),
		books: make(map[string]*book.Book, len(s.books)),
	}
	for id, l := range s.loans {
		c.loans[id] = l.Clone()
	}
	for id, b := range s.books {
		cp := *b
		c.books[id] = &cp
	}
	return c
}

// Store is the in-memory loan store. Atomic holds the store lock for the whole
// unit and works on a copy that replaces the live state only when fn succeeds.
type Store struct {
	mu     sync.Mutex
	st     *state
	nextID int64
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{st: &state{
		loans: make(map[uuid.UUID]*loan.Loan),
		books: make(map[string]*book.Book),
	}}
}

func (s *Store) Loans() loan.Repository { return &loanRepo{store: s} }

func (s *Store) Books() book.Ledger { return &bookLedger{store: s} }

// Atomic runs fn against a private copy of the state and publishes the copy on success.
func (s *Store) Atomic(ctx context.Context, fn func(loans loan.Repository, books book.Ledger) error) error {
	if err := ctx.Err(); err != nil {
		return loan.Unavailable(err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := s.st.clone()
	if err := fn(&loanRepo{store: s, tx: tx}, &bookLedger{store: s, tx: tx}); err != nil {
		return err
	}
	s.st = tx
	return nil
}

// with runs fn on the transaction state when bound to one, or on the live state
// under the store lock.
func (s *Store) with(tx *state, fn func(st *state) error) error {
	if tx != nil {
		return fn(tx)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.st)
}

type loanRepo struct {
	store *Store
	tx    *state
}

func (r *loanRepo) Create(ctx context.Context, l *loan.Loan) error {
	return r.store.with(r.tx, func(st *state) error {
		if _, ok := st.loans[l.LoanID]; ok {
			return loan.Conflictf("loan %s already exists", l.LoanID)
		}
		if l.IsActiveRequest() {
			for _, other := range st.loans {
				if other.BookID == l.BookID && other.BorrowerID == l.BorrowerID && other.IsActiveRequest() {
					return loan.Conflictf("an active request for book %s already exists", l.BookID)
				}
			}
		}
		r.store.nextID++
		l.ID = r.store.nextID
		st.loans[l.LoanID] = l.Clone()
		return nil
	})
}

func (r *loanRepo) GetByID(ctx context.Context, loanID uuid.UUID) (*loan.Loan, error) {
	var out *loan.Loan
	err := r.store.with(r.tx, func(st *state) error {
		out = st.loans[loanID].Clone()
		return nil
	})
	return out, err
}

func (r *loanRepo) List(ctx context.Context, filter loan.Filter) ([]*loan.Loan, error) {
	out := make([]*loan.Loan, 0)
	err := r.store.with(r.tx, func(st *state) error {
		for _, l := range st.loans {
			if matches(l, filter) {
				out = append(out, l.Clone())
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool {
		if out[i].RequestDate.Equal(out[j].RequestDate) {
			return out[i].ID > out[j].ID
		}
		return out[i].RequestDate.After(out[j].RequestDate)
	})
	return out, err
}

func (r *loanRepo) Update(ctx context.Context, l *loan.Loan, expectedVersion int64) error {
	return r.store.with(r.tx, func(st *state) error {
		current, ok := st.loans[l.LoanID]
		if !ok || current.Version != expectedVersion {
			return loan.Conflictf("loan %s changed concurrently", l.LoanID)
		}
		next := l.Clone()
		next.ID = current.ID
		st.loans[l.LoanID] = next
		return nil
	})
}

func (r *loanRepo) Delete(ctx context.Context, loanID uuid.UUID, expectedVersion int64) error {
	return r.store.with(r.tx, func(st *state) error {
		current, ok := st.loans[loanID]
		if !ok || current.Version != expectedVersion {
			return loan.Conflictf("loan %s changed concurrently", loanID)
		}
		delete(st.loans, loanID)
		return nil
	})
}

func matches(l *loan.Loan, f loan.Filter) bool {
	if f.UserID != "" {
		switch f.Role {
		case loan.RoleLender:
			if l.LenderID != f.UserID {
				return false
			}
		case loan.RoleBorrower:
			if l.BorrowerID != f.UserID {
				return false
			}
		default:
			if !l.IsParty(f.UserID) {
				return false
			}
		}
	}
	if f.Status != nil && l.Status != *f.Status {
		return false
	}
	if f.BookID != nil && l.BookID != *f.BookID {
		return false
	}
	return true
}

type bookLedger struct {
	store *Store
	tx    *state
}

func (b *bookLedger) Register(ctx context.Context, entry *book.Book) error {
	if err := book.ValidateAvailability(entry.Availability); err != nil {
		return loan.ErrInvalidInput
	}
	return b.store.with(b.tx, func(st *state) error {
		if existing, ok := st.books[entry.BookID]; ok {
			if existing.OwnerID != entry.OwnerID {
				return loan.Conflictf("book %s is owned by another user", entry.BookID)
			}
			return nil
		}
		b.store.nextID++
		cp := *entry
		cp.ID = b.store.nextID
		st.books[entry.BookID] = &cp
		return nil
	})
}

func (b *bookLedger) Get(ctx context.Context, bookID string) (*book.Book, error) {
	var out *book.Book
	err := b.store.with(b.tx, func(st *state) error {
		if existing, ok := st.books[bookID]; ok {
			cp := *existing
			out = &cp
		}
		return nil
	})
	return out, err
}

func (b *bookLedger) SetAvailability(ctx context.Context, bookID string, expected, status book.Availability) error {
	if err := book.ValidateAvailability(status); err != nil {
		return loan.ErrInvalidInput
	}
	return b.store.with(b.tx, func(st *state) error {
		existing, ok := st.books[bookID]
		if !ok {
			return loan.ErrNotFound
		}
		if existing.Availability != expected {
			return loan.Conflictf("book %s is %s, expected %s", bookID, existing.Availability, expected)
		}
		cp := *existing
		cp.Availability = status
		cp.UpdatedAt = nowUTC()
		st.books[bookID] = &cp
		return nil
	})
}
