package messaging

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/openshelf/lending-hub/internal/domain/loan"
	"github.com/openshelf/lending-hub/internal/domain/message"
	"github.com/openshelf/lending-hub/internal/domain/notification"
)

const (
	defaultLimit = 50
	maxLimit     = 200
)

// SendInput is a message as submitted by its sender.
type SendInput struct {
	RecipientID   string
	Content       string
	RelatedBookID *string
	RelatedLoanID *uuid.UUID
}

// Service persists messages and hands them to the hub.
type Service struct {
	messages message.Repository
	loans    loan.Repository
	hub      notification.Publisher
	logger   zerolog.Logger
}

// NewService creates a messaging service.
func NewService(messages message.Repository, loans loan.Repository, hub notification.Publisher, logger zerolog.Logger) *Service {
	return &Service{
		messages: messages,
		loans:    loans,
		hub:      hub,
		logger:   logger.With().Str("service", "messaging").Logger(),
	}
}

// Send stores a message and publishes newMessage to the recipient and messageSent
// to the sender. A message tied to a loan must be between its two parties.
func (s *Service) Send(ctx context.Context, senderID string, in SendInput) (*message.Message, error) {
	msg, err := message.NewMessage(senderID, in.RecipientID, in.Content, in.RelatedBookID, in.RelatedLoanID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", loan.ErrInvalidInput, err)
	}

	if in.RelatedLoanID != nil {
		l, err := s.loans.GetByID(ctx, *in.RelatedLoanID)
		if err != nil {
			return nil, err
		}
		if l == nil {
			return nil, fmt.Errorf("%w: loan %s", loan.ErrNotFound, *in.RelatedLoanID)
		}
		if !l.IsParty(msg.SenderID) || l.CounterpartyOf(msg.SenderID) != msg.RecipientID {
			return nil, loan.ErrUnauthorized
		}
	}

	if err := s.messages.Create(ctx, msg); err != nil {
		return nil, err
	}
	s.logger.Debug().
		Str("message_id", msg.MessageID.String()).
		Str("sender_id", msg.SenderID).
		Str("recipient_id", msg.RecipientID).
		Msg("message stored")
	s.hub.PublishMessage(msg)
	return msg, nil
}

// List returns the user's messages, newest first.
func (s *Service) List(ctx context.Context, userID string, limit, offset int) ([]*message.Message, error) {
	limit, offset = normalizePage(limit, offset)
	return s.messages.ListForUser(ctx, userID, limit, offset)
}

// Conversation returns the messages between two users, oldest first.
func (s *Service) Conversation(ctx context.Context, userID, otherID string, limit, offset int) ([]*message.Message, error) {
	if otherID == "" {
		return nil, fmt.Errorf("%w: user id is required", loan.ErrInvalidInput)
	}
	limit, offset = normalizePage(limit, offset)
	return s.messages.Conversation(ctx, userID, otherID, limit, offset)
}

// MarkRead flags the given messages read. Only messages addressed to the user change.
func (s *Service) MarkRead(ctx context.Context, userID string, messageIDs []uuid.UUID) (int, error) {
	if len(messageIDs) == 0 {
		return 0, fmt.Errorf("%w: message ids are required", loan.ErrInvalidInput)
	}
	return s.messages.MarkRead(ctx, userID, messageIDs)
}

// UnreadCount counts unread messages addressed to the user.
func (s *Service) UnreadCount(ctx context.Context, userID string) (int, error) {
	return s.messages.CountUnread(ctx, userID)
}

func normalizePage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
