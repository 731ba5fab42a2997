// Package boltstore keeps loans, the book ledger and messages in a bbolt file.
package boltstore

import (
	"context"
	"encoding/binary"
	"sort"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	bolt "go.etcd.io/bbolt"

	"github.com/openshelf/lending-hub/internal/domain/book"
	"github.com/openshelf/lending-hub/internal/domain/loan"
)

var (
	bucketLoans    = []byte("loans")
	bucketBooks    = []byte("books")
	bucketMessages = []byte("messages")
	bucketMsgIndex = []byte("message_ids")

	codec = jsoniter.ConfigCompatibleWithStandardLibrary
)

// Open opens or creates the database file and its buckets.
func Open(path string) (*bolt.DB, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, err
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketLoans, bucketBooks, bucketMessages, bucketMsgIndex} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// runner executes fn in a transaction: its own one, or the unit's when bound.
type runner func(writable bool, fn func(tx *bolt.Tx) error) error

func dbRunner(db *bolt.DB) runner {
	return func(writable bool, fn func(tx *bolt.Tx) error) error {
		var err error
		if writable {
			err = db.Update(fn)
		} else {
			err = db.View(fn)
		}
		return err
	}
}

func txRunner(tx *bolt.Tx) runner {
	return func(_ bool, fn func(tx *bolt.Tx) error) error {
		return fn(tx)
	}
}

// Store implements the lending store; Atomic is one bbolt Update transaction.
type Store struct {
	db *bolt.DB
}

func NewStore(db *bolt.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Loans() loan.Repository { return &loanRepo{run: dbRunner(s.db)} }

func (s *Store) Books() book.Ledger { return &bookLedger{run: dbRunner(s.db)} }

func (s *Store) Atomic(ctx context.Context, fn func(loans loan.Repository, books book.Ledger) error) error {
	if err := ctx.Err(); err != nil {
		return loan.Unavailable(err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		run := txRunner(tx)
		return fn(&loanRepo{run: run}, &bookLedger{run: run})
	})
}

// loanRecord carries the sequence id that the JSON form of loan.Loan omits.
type loanRecord struct {
	Seq int64 `json:"seq"`
	*loan.Loan
}

type bookRecord struct {
	Seq int64 `json:"seq"`
	*book.Book
}

type loanRepo struct {
	run runner
}

func (r *loanRepo) Create(ctx context.Context, l *loan.Loan) error {
	return r.run(true, func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketLoans)
		key := []byte(l.LoanID.String())
		if b.Get(key) != nil {
			return loan.Conflictf("loan %s already exists", l.LoanID)
		}
		if l.IsActiveRequest() {
			err := eachLoan(b, func(other *loan.Loan) error {
				if other.BookID == l.BookID && other.BorrowerID == l.BorrowerID && other.IsActiveRequest() {
					return loan.Conflictf("an active request for book %s already exists", l.BookID)
				}
				return nil
			})
			if err != nil {
				return err
			}
		}
		seq, err := b.NextSequence()
		if err != nil {
			return loan.Unavailable(err)
		}
		l.ID = int64(seq)
		return putJSON(b, key, loanRecord{Seq: l.ID, Loan: l})
	})
}

func (r *loanRepo) GetByID(ctx context.Context, loanID uuid.UUID) (*loan.Loan, error) {
	var out *loan.Loan
	err := r.run(false, func(tx *bolt.Tx) error {
		var err error
		out, err = getLoan(tx.Bucket(bucketLoans), loanID)
		return err
	})
	return out, err
}

func (r *loanRepo) List(ctx context.Context, filter loan.Filter) ([]*loan.Loan, error) {
	out := make([]*loan.Loan, 0)
	err := r.run(false, func(tx *bolt.Tx) error {
		return eachLoan(tx.Bucket(bucketLoans), func(l *loan.Loan) error {
			if matches(l, filter) {
				out = append(out, l)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].RequestDate.Equal(out[j].RequestDate) {
			return out[i].ID > out[j].ID
		}
		return out[i].RequestDate.After(out[j].RequestDate)
	})
	return out, nil
}

func (r *loanRepo) Update(ctx context.Context, l *loan.Loan, expectedVersion int64) error {
	return r.run(true, func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketLoans)
		current, err := getLoan(b, l.LoanID)
		if err != nil {
			return err
		}
		if current == nil || current.Version != expectedVersion {
			return loan.Conflictf("loan %s changed concurrently", l.LoanID)
		}
		l.ID = current.ID
		return putJSON(b, []byte(l.LoanID.String()), loanRecord{Seq: current.ID, Loan: l})
	})
}

func (r *loanRepo) Delete(ctx context.Context, loanID uuid.UUID, expectedVersion int64) error {
	return r.run(true, func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketLoans)
		current, err := getLoan(b, loanID)
		if err != nil {
			return err
		}
		if current == nil || current.Version != expectedVersion {
			return loan.Conflictf("loan %s changed concurrently", loanID)
		}
		return b.Delete([]byte(loanID.String()))
	})
}

func getLoan(b *bolt.Bucket, loanID uuid.UUID) (*loan.Loan, error) {
	raw := b.Get([]byte(loanID.String()))
	if raw == nil {
		return nil, nil
	}
	return decodeLoan(raw)
}

func decodeLoan(raw []byte) (*loan.Loan, error) {
	rec := loanRecord{Loan: &loan.Loan{}}
	if err := codec.Unmarshal(raw, &rec); err != nil {
		return nil, loan.Unavailable(err)
	}
	rec.Loan.ID = rec.Seq
	return rec.Loan, nil
}

func eachLoan(b *bolt.Bucket, fn func(l *loan.Loan) error) error {
	return b.ForEach(func(_, v []byte) error {
		l, err := decodeLoan(v)
		if err != nil {
			return err
		}
		return fn(l)
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
	run runner
}

func (l *bookLedger) Register(ctx context.Context, entry *book.Book) error {
	if err := book.ValidateAvailability(entry.Availability); err != nil {
		return loan.ErrInvalidInput
	}
	return l.run(true, func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketBooks)
		existing, err := getBook(b, entry.BookID)
		if err != nil {
			return err
		}
		if existing != nil {
			if existing.OwnerID != entry.OwnerID {
				return loan.Conflictf("book %s is owned by another user", entry.BookID)
			}
			entry.ID = existing.ID
			return nil
		}
		seq, err := b.NextSequence()
		if err != nil {
			return loan.Unavailable(err)
		}
		entry.ID = int64(seq)
		return putJSON(b, []byte(entry.BookID), bookRecord{Seq: entry.ID, Book: entry})
	})
}

func (l *bookLedger) Get(ctx context.Context, bookID string) (*book.Book, error) {
	var out *book.Book
	err := l.run(false, func(tx *bolt.Tx) error {
		var err error
		out, err = getBook(tx.Bucket(bucketBooks), bookID)
		return err
	})
	return out, err
}

func (l *bookLedger) SetAvailability(ctx context.Context, bookID string, expected, status book.Availability) error {
	if err := book.ValidateAvailability(status); err != nil {
		return loan.ErrInvalidInput
	}
	return l.run(true, func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketBooks)
		existing, err := getBook(b, bookID)
		if err != nil {
			return err
		}
		if existing == nil {
			return loan.ErrNotFound
		}
		if existing.Availability != expected {
			return loan.Conflictf("book %s is %s, expected %s", bookID, existing.Availability, expected)
		}
		existing.Availability = status
		existing.UpdatedAt = time.Now().UTC()
		return putJSON(b, []byte(bookID), bookRecord{Seq: existing.ID, Book: existing})
	})
}

func getBook(b *bolt.Bucket, bookID string) (*book.Book, error) {
	raw := b.Get([]byte(bookID))
	if raw == nil {
		return nil, nil
	}
	rec := bookRecord{Book: &book.Book{}}
	if err := codec.Unmarshal(raw, &rec); err != nil {
		return nil, loan.Unavailable(err)
	}
	rec.Book.ID = rec.Seq
	return rec.Book, nil
}

func putJSON(b *bolt.Bucket, key []byte, v interface{}) error {
	raw, err := codec.Marshal(v)
	if err != nil {
		return err
	}
	return b.Put(key, raw)
}

func itob(v uint64) []byte {
	out := make([]byte, 8)
	binary.BigEndian.PutUint64(out, v)
	return out
}
