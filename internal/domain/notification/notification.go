package notification

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/openshelf/lending-hub/internal/domain/loan"
	"github.com/openshelf/lending-hub/internal/domain/message"
)

// EventType names an outbound real-time event.
type EventType string

const (
	EventLoanStatusChanged EventType = "loanStatusChanged"
	EventLoanRequested     EventType = "loanRequested"
	EventLoanCancelled     EventType = "loanCancelled"
	EventNewMessage        EventType = "newMessage"
	EventMessageSent       EventType = "messageSent"
)

var (
	ErrChannelClosed = errors.New("channel closed")
	ErrChannelFull   = errors.New("channel buffer full")
)

// Event is a message relayed to a user's live channels.
//
// EntityKey and Seq identify the loan version or thread position an event reports.
// Channels deliver in publish order and never filter on Seq; a client that sees
// a Seq at or below one it already holds for the key can ignore the event.
// Seq 0 marks an unsequenced event.
type Event struct {
	ID        string          `json:"id"`
	Type      EventType       `json:"event"`
	EntityKey string          `json:"entity,omitempty"`
	Seq       int64           `json:"seq,omitempty"`
	Data      json.RawMessage `json:"data"`
	Timestamp time.Time       `json:"timestamp"`
}

// NewEvent creates an event around an encoded payload.
func NewEvent(eventType EventType, entityKey string, seq int64, data json.RawMessage) *Event {
	return &Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		EntityKey: entityKey,
		Seq:       seq,
		Data:      data,
		Timestamp: time.Now().UTC(),
	}
}

// IsSequenced reports whether the event carries an entity position.
func (e *Event) IsSequenced() bool {
	return e.EntityKey != "" && e.Seq > 0
}

func LoanEntityKey(loanID uuid.UUID) string {
	return "loan:" + loanID.String()
}

func ThreadEntityKey(a, b string) string {
	return "thread:" + message.ThreadKey(a, b)
}

// LoanUpdate is the payload of a relayed loanUpdate, carrying no authority of its own.
type LoanUpdate struct {
	LoanID  uuid.UUID   `json:"loanId"`
	Status  loan.Status `json:"status"`
	Relayed bool        `json:"relayed"`
}

// LoanCancelled is sent to the lender when a borrower withdraws a request.
type LoanCancelled struct {
	LoanID         uuid.UUID   `json:"loanId"`
	BookID         string      `json:"bookId"`
	PreviousStatus loan.Status `json:"previousStatus"`
	CancelledBy    string      `json:"cancelledBy"`
	Timestamp      time.Time   `json:"timestamp"`
}
