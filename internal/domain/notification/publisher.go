package notification

//go:generate go run go.uber.org/mock/mockgen -destination=mocks/mock_publisher.go -package=mocks . Publisher

import (
	"github.com/google/uuid"

	"github.com/openshelf/lending-hub/internal/domain/loan"
	"github.com/openshelf/lending-hub/internal/domain/message"
)

// Publisher relays events to the live channels of users. It never persists and
// never blocks on slow consumers; the boolean results report whether at least one
// channel accepted the event.
type Publisher interface {
	Publish(userID string, ev *Event) bool
	PublishLoanStatusChanged(change *loan.StatusChanged)
	PublishLoanRequested(l *loan.Loan)
	PublishLoanCancelled(l *loan.Loan, cancelledBy string)
	PublishMessage(msg *message.Message)
	RelayLoanUpdate(loanID uuid.UUID, status loan.Status, userID string) bool
}
