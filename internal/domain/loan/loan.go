package loan

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Status represents loan status.
type Status string

const (
	StatusRequested Status = "Requested"
	StatusApproved  Status = "Approved"
	StatusDenied    Status = "Denied"
	StatusLent      Status = "Lent"
	StatusReturned  Status = "Returned"
	StatusOverdue   Status = "Overdue"

	// StatusCancelled names the borrower's withdrawal in errors and events. It is
	// never stored: cancelling deletes the loan.
	StatusCancelled Status = "Cancelled"
)

// Role selects which side of a loan a listing is filtered to.
type Role string

const (
	RoleAny      Role = ""
	RoleLender   Role = "lender"
	RoleBorrower Role = "borrower"
)

// transitions is the loan lifecycle. Cancellation is not a status: it deletes the loan.
var transitions = map[Status][]Status{
	StatusRequested: {StatusApproved, StatusDenied},
	StatusApproved:  {StatusLent},
	StatusLent:      {StatusReturned, StatusOverdue},
	StatusOverdue:   {StatusReturned},
	StatusDenied:    {},
	StatusReturned:  {},
}

// Loan tracks one borrow transaction for one book.
type Loan struct {
	ID           int64      `json:"-"`
	LoanID       uuid.UUID  `json:"loanId"`
	BookID       string     `json:"bookId"`
	LenderID     string     `json:"lenderId"`
	BorrowerID   string     `json:"borrowerId"`
	Status       Status     `json:"status"`
	RequestDate  time.Time  `json:"requestDate"`
	ApprovalDate *time.Time `json:"approvalDate,omitempty"`
	LendDate     *time.Time `json:"lendDate,omitempty"`
	DueDate      *time.Time `json:"dueDate,omitempty"`
	ReturnDate   *time.Time `json:"returnDate,omitempty"`
	Notes        *string    `json:"notes,omitempty"`
	Version      int64      `json:"version"`
}

// NewLoan creates a loan request in the Requested state.
func NewLoan(bookID, lenderID, borrowerID string, notes *string, now time.Time) *Loan {
	return &Loan{
		LoanID:      uuid.New(),
		BookID:      bookID,
		LenderID:    lenderID,
		BorrowerID:  borrowerID,
		Status:      StatusRequested,
		RequestDate: now.UTC(),
		Notes:       notes,
		Version:     1,
	}
}

// ParseStatus validates a client supplied status.
func ParseStatus(s string) (Status, error) {
	st := Status(strings.TrimSpace(s))
	if _, ok := transitions[st]; !ok {
		return "", ErrInvalidInput
	}
	return st, nil
}

// AllowedTransitions returns the statuses reachable from the given one.
func AllowedTransitions(from Status) []Status {
	next := transitions[from]
	out := make([]Status, len(next))
	copy(out, next)
	return out
}

// CanTransitionTo validates loan status transition.
func (l *Loan) CanTransitionTo(target Status) bool {
	for _, s := range transitions[l.Status] {
		if s == target {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further status change is possible.
func (l *Loan) IsTerminal() bool {
	return len(transitions[l.Status]) == 0
}

// IsActiveRequest reports whether the loan blocks a new request for the same book and borrower.
func (l *Loan) IsActiveRequest() bool {
	return l.Status == StatusRequested || l.Status == StatusApproved
}

// IsOut reports whether the book is physically with the borrower.
func (l *Loan) IsOut() bool {
	return l.Status == StatusLent || l.Status == StatusOverdue
}

// IsParty reports whether the user is the lender or the borrower.
func (l *Loan) IsParty(userID string) bool {
	return userID != "" && (userID == l.LenderID || userID == l.BorrowerID)
}

// CounterpartyOf returns the other side of the loan.
func (l *Loan) CounterpartyOf(userID string) string {
	if userID == l.LenderID {
		return l.BorrowerID
	}
	return l.LenderID
}

// Clone returns a deep copy, used to keep a pre-image for rollback and compensation.
func (l *Loan) Clone() *Loan {
	if l == nil {
		return nil
	}
	c := *l
	c.ApprovalDate = cloneTime(l.ApprovalDate)
	c.LendDate = cloneTime(l.LendDate)
	c.DueDate = cloneTime(l.DueDate)
	c.ReturnDate = cloneTime(l.ReturnDate)
	if l.Notes != nil {
		n := *l.Notes
		c.Notes = &n
	}
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// Filter controls loan listing. An empty UserID lists loans of every user.
type Filter struct {
	UserID string
	Role   Role
	Status *Status
	BookID *string
}

// StatusChanged is emitted after a transition has been committed.
type StatusChanged struct {
	LoanID         uuid.UUID `json:"loanId"`
	PreviousStatus Status    `json:"previousStatus"`
	NewStatus      Status    `json:"newStatus"`
	BookID         string    `json:"bookId"`
	LenderID       string    `json:"lenderId"`
	BorrowerID     string    `json:"borrowerId"`
	Version        int64     `json:"version"`
	Timestamp      time.Time `json:"timestamp"`
}
