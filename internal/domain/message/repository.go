package message

//go:generate go run go.uber.org/mock/mockgen -destination=mocks/mock_repository.go -package=mocks . Repository

import (
	"context"

	"github.com/google/uuid"
)

// Repository defines message persistence.
type Repository interface {
	Create(ctx context.Context, msg *Message) error
	GetByID(ctx context.Context, messageID uuid.UUID) (*Message, error)
	// ListForUser returns messages sent or received by the user, newest first.
	ListForUser(ctx context.Context, userID string, limit, offset int) ([]*Message, error)
	// Conversation returns messages between two users, oldest first.
	Conversation(ctx context.Context, userID, otherID string, limit, offset int) ([]*Message, error)
	// MarkRead flags unread messages addressed to recipientID and returns how many changed.
	MarkRead(ctx context.Context, recipientID string, messageIDs []uuid.UUID) (int, error)
	CountUnread(ctx context.Context, recipientID string) (int, error)
}
