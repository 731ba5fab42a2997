package gormstore

import (
	"time"

	"github.com/google/uuid"

	"github.com/openshelf/lending-hub/internal/domain/book"
	"github.com/openshelf/lending-hub/internal/domain/loan"
	"github.com/openshelf/lending-hub/internal/domain/message"
)

type bookRecord struct {
	ID           int64     `gorm:"primaryKey"`
	BookID       string    `gorm:"size:128;uniqueIndex;not null"`
	OwnerID      string    `gorm:"size:128;not null"`
	Availability string    `gorm:"size:20;not null;default:'Available'"`
	UpdatedAt    time.Time `gorm:"not null"`
}

func (bookRecord) TableName() string { return "book_ledger" }

type loanRecord struct {
	ID           int64  `gorm:"primaryKey"`
	LoanID       string `gorm:"size:36;uniqueIndex;not null"`
	BookID       string `gorm:"size:128;not null;index"`
	LenderID     string `gorm:"size:128;not null;index"`
	BorrowerID   string `gorm:"size:128;not null;index"`
	Status       string `gorm:"size:20;not null;index"`
	RequestDate  time.Time
	ApprovalDate *time.Time
	LendDate     *time.Time
	DueDate      *time.Time
	ReturnDate   *time.Time
	Notes        *string
	Version      int64 `gorm:"not null;default:1"`
}

func (loanRecord) TableName() string { return "loans" }

type messageRecord struct {
	ID            int64   `gorm:"primaryKey"`
	MessageID     string  `gorm:"size:36;uniqueIndex;not null"`
	SenderID      string  `gorm:"size:128;not null;index"`
	RecipientID   string  `gorm:"size:128;not null;index"`
	Content       string  `gorm:"not null"`
	RelatedBookID *string `gorm:"size:128"`
	RelatedLoanID *string `gorm:"size:36"`
	Read          bool    `gorm:"not null;default:false"`
	CreatedAt     time.Time
}

func (messageRecord) TableName() string { return "messages" }

// partialIndexes are not expressible as gorm tags.
var partialIndexes = []string{
	`CREATE UNIQUE INDEX IF NOT EXISTS loans_active_request_uniq ON loans (book_id, borrower_id) WHERE status IN ('Requested', 'Approved')`,
	`CREATE UNIQUE INDEX IF NOT EXISTS loans_out_uniq ON loans (book_id) WHERE status IN ('Lent', 'Overdue')`,
}

func toLoanRecord(l *loan.Loan) *loanRecord {
	return &loanRecord{
		ID:           l.ID,
		LoanID:       l.LoanID.String(),
		BookID:       l.BookID,
		LenderID:     l.LenderID,
		BorrowerID:   l.BorrowerID,
		Status:       string(l.Status),
		RequestDate:  l.RequestDate,
		ApprovalDate: l.ApprovalDate,
		LendDate:     l.LendDate,
		DueDate:      l.DueDate,
		ReturnDate:   l.ReturnDate,
		Notes:        l.Notes,
		Version:      l.Version,
	}
}

func (r *loanRecord) toDomain() (*loan.Loan, error) {
	id, err := uuid.Parse(r.LoanID)
	if err != nil {
		return nil, err
	}
	return &loan.Loan{
		ID:           r.ID,
		LoanID:       id,
		BookID:       r.BookID,
		LenderID:     r.LenderID,
		BorrowerID:   r.BorrowerID,
		Status:       loan.Status(r.Status),
		RequestDate:  r.RequestDate.UTC(),
		ApprovalDate: utcPtr(r.ApprovalDate),
		LendDate:     utcPtr(r.LendDate),
		DueDate:      utcPtr(r.DueDate),
		ReturnDate:   utcPtr(r.ReturnDate),
		Notes:        r.Notes,
		Version:      r.Version,
	}, nil
}

func (r *bookRecord) toDomain() *book.Book {
	return &book.Book{
		ID:           r.ID,
		BookID:       r.BookID,
		OwnerID:      r.OwnerID,
		Availability: book.Availability(r.Availability),
		UpdatedAt:    r.UpdatedAt.UTC(),
	}
}

func toMessageRecord(m *message.Message) *messageRecord {
	rec := &messageRecord{
		MessageID:     m.MessageID.String(),
		SenderID:      m.SenderID,
		RecipientID:   m.RecipientID,
		Content:       m.Content,
		RelatedBookID: m.RelatedBookID,
		Read:          m.Read,
		CreatedAt:     m.CreatedAt,
	}
	if m.RelatedLoanID != nil {
		s := m.RelatedLoanID.String()
		rec.RelatedLoanID = &s
	}
	return rec
}

func (r *messageRecord) toDomain() (*message.Message, error) {
	id, err := uuid.Parse(r.MessageID)
	if err != nil {
		return nil, err
	}
	m := &message.Message{
		ID:            r.ID,
		MessageID:     id,
		SenderID:      r.SenderID,
		RecipientID:   r.RecipientID,
		Content:       r.Content,
		RelatedBookID: r.RelatedBookID,
		Read:          r.Read,
		CreatedAt:     r.CreatedAt.UTC(),
	}
	if r.RelatedLoanID != nil {
		loanID, err := uuid.Parse(*r.RelatedLoanID)
		if err != nil {
			return nil, err
		}
		m.RelatedLoanID = &loanID
	}
	return m, nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}
