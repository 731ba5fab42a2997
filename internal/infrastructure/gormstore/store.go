// Package gormstore persists loans, the book ledger and messages through gorm.
// SQLite serves embedded deployments and tests; Postgres is supported through
// the same models.
package gormstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/openshelf/lending-hub/internal/domain/book"
	"github.com/openshelf/lending-hub/internal/domain/loan"
)

const (
	DialectSQLite   = "sqlite"
	DialectPostgres = "postgres"
)

// Open connects and migrates the schema.
func Open(dialect, dsn string) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch dialect {
	case DialectSQLite:
		dialector = sqlite.Open(dsn)
	case DialectPostgres:
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported gorm dialect %q", dialect)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if dialect == DialectSQLite {
		// one writer keeps sqlite from reporting SQLITE_BUSY under concurrent units
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxOpenConns(25)
		sqlDB.SetMaxIdleConns(10)
		sqlDB.SetConnMaxLifetime(5 * time.Minute)
	}

	if err := Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

// Migrate creates the tables and partial unique indexes.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&bookRecord{}, &loanRecord{}, &messageRecord{}); err != nil {
		return err
	}
	for _, stmt := range partialIndexes {
		if err := db.Exec(stmt).Error; err != nil {
			return err
		}
	}
	return nil
}

// Store implements the lending store on gorm transactions.
type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Loans() loan.Repository { return &LoanRepository{db: s.db} }

func (s *Store) Books() book.Ledger { return &BookLedger{db: s.db} }

// Atomic runs fn inside db.Transaction.
func (s *Store) Atomic(ctx context.Context, fn func(loans loan.Repository, books book.Ledger) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&LoanRepository{db: tx}, &BookLedger{db: tx})
	})
}

// LoanRepository implements loan.Repository.
type LoanRepository struct {
	db *gorm.DB
}

func (r *LoanRepository) Create(ctx context.Context, l *loan.Loan) error {
	rec := toLoanRecord(l)
	rec.ID = 0
	if err := r.db.WithContext(ctx).Create(rec).Error; err != nil {
		return translate(err)
	}
	l.ID = rec.ID
	return nil
}

func (r *LoanRepository) GetByID(ctx context.Context, loanID uuid.UUID) (*loan.Loan, error) {
	var rec loanRecord
	err := r.db.WithContext(ctx).Where("loan_id = ?", loanID.String()).Take(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, translate(err)
	}
	return rec.toDomain()
}

func (r *LoanRepository) List(ctx context.Context, filter loan.Filter) ([]*loan.Loan, error) {
	q := r.db.WithContext(ctx).Model(&loanRecord{})
	if filter.UserID != "" {
		switch filter.Role {
		case loan.RoleLender:
			q = q.Where("lender_id = ?", filter.UserID)
		case loan.RoleBorrower:
			q = q.Where("borrower_id = ?", filter.UserID)
		default:
			q = q.Where("lender_id = ? OR borrower_id = ?", filter.UserID, filter.UserID)
		}
	}
	if filter.Status != nil {
		q = q.Where("status = ?", string(*filter.Status))
	}
	if filter.BookID != nil {
		q = q.Where("book_id = ?", *filter.BookID)
	}

	var recs []loanRecord
	if err := q.Order("request_date DESC").Order("id DESC").Find(&recs).Error; err != nil {
		return nil, translate(err)
	}
	out := make([]*loan.Loan, 0, len(recs))
	for i := range recs {
		l, err := recs[i].toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, nil
}

func (r *LoanRepository) Update(ctx context.Context, l *loan.Loan, expectedVersion int64) error {
	res := r.db.WithContext(ctx).Model(&loanRecord{}).
		Where("loan_id = ? AND version = ?", l.LoanID.String(), expectedVersion).
		Updates(map[string]interface{}{
			"status":        string(l.Status),
			"approval_date": l.ApprovalDate,
			"lend_date":     l.LendDate,
			"due_date":      l.DueDate,
			"return_date":   l.ReturnDate,
			"notes":         l.Notes,
			"version":       l.Version,
		})
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return loan.Conflictf("loan %s changed concurrently", l.LoanID)
	}
	return nil
}

func (r *LoanRepository) Delete(ctx context.Context, loanID uuid.UUID, expectedVersion int64) error {
	res := r.db.WithContext(ctx).
		Where("loan_id = ? AND version = ?", loanID.String(), expectedVersion).
		Delete(&loanRecord{})
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return loan.Conflictf("loan %s changed concurrently", loanID)
	}
	return nil
}

// BookLedger implements book.Ledger.
type BookLedger struct {
	db *gorm.DB
}

func (l *BookLedger) Register(ctx context.Context, b *book.Book) error {
	if err := book.ValidateAvailability(b.Availability); err != nil {
		return loan.ErrInvalidInput
	}
	rec := &bookRecord{
		BookID:       b.BookID,
		OwnerID:      b.OwnerID,
		Availability: string(b.Availability),
		UpdatedAt:    b.UpdatedAt,
	}
	err := l.db.WithContext(ctx).Create(rec).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		existing, gerr := l.Get(ctx, b.BookID)
		if gerr != nil {
			return gerr
		}
		if existing != nil && existing.OwnerID == b.OwnerID {
			b.ID = existing.ID
			return nil
		}
		return loan.Conflictf("book %s is owned by another user", b.BookID)
	}
	if err != nil {
		return translate(err)
	}
	b.ID = rec.ID
	return nil
}

func (l *BookLedger) Get(ctx context.Context, bookID string) (*book.Book, error) {
	var rec bookRecord
	err := l.db.WithContext(ctx).Where("book_id = ?", bookID).Take(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, translate(err)
	}
	return rec.toDomain(), nil
}

func (l *BookLedger) SetAvailability(ctx context.Context, bookID string, expected, status book.Availability) error {
	if err := book.ValidateAvailability(status); err != nil {
		return loan.ErrInvalidInput
	}
	res := l.db.WithContext(ctx).Model(&bookRecord{}).
		Where("book_id = ? AND availability = ?", bookID, string(expected)).
		Updates(map[string]interface{}{
			"availability": string(status),
			"updated_at":   time.Now().UTC(),
		})
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 1 {
		return nil
	}
	existing, err := l.Get(ctx, bookID)
	if err != nil {
		return err
	}
	if existing == nil {
		return loan.ErrNotFound
	}
	return loan.Conflictf("book %s is %s, expected %s", bookID, existing.Availability, expected)
}

func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return loan.Conflictf("%v", err)
	case errors.Is(err, gorm.ErrForeignKeyViolated):
		return errors.Join(loan.ErrNotFound, err)
	default:
		return loan.Unavailable(err)
	}
}
