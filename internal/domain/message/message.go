package message

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

const MaxContentLength = 4000

var (
	ErrEmptyContent   = errors.New("content is required")
	ErrContentTooLong = errors.New("content is too long")
	ErrMissingParty   = errors.New("sender and recipient are required")
	ErrSelfAddressed  = errors.New("cannot send a message to yourself")
)

// Message is one entry of a conversation between two users.
type Message struct {
	ID            int64      `json:"-"`
	MessageID     uuid.UUID  `json:"messageId"`
	SenderID      string     `json:"senderId"`
	RecipientID   string     `json:"recipientId"`
	Content       string     `json:"content"`
	RelatedBookID *string    `json:"relatedBookId,omitempty"`
	RelatedLoanID *uuid.UUID `json:"relatedLoanId,omitempty"`
	Read          bool       `json:"read"`
	CreatedAt     time.Time  `json:"createdAt"`
}

// NewMessage validates and creates an unread message.
func NewMessage(senderID, recipientID, content string, relatedBookID *string, relatedLoanID *uuid.UUID) (*Message, error) {
	senderID = strings.TrimSpace(senderID)
	recipientID = strings.TrimSpace(recipientID)
	if senderID == "" || recipientID == "" {
		return nil, ErrMissingParty
	}
	if senderID == recipientID {
		return nil, ErrSelfAddressed
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, ErrEmptyContent
	}
	if len(content) > MaxContentLength {
		return nil, ErrContentTooLong
	}
	return &Message{
		MessageID:     uuid.New(),
		SenderID:      senderID,
		RecipientID:   recipientID,
		Content:       content,
		RelatedBookID: relatedBookID,
		RelatedLoanID: relatedLoanID,
		CreatedAt:     time.Now().UTC(),
	}, nil
}

// ThreadKey identifies the conversation between two users independent of direction.
func ThreadKey(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return a + "|" + b
}

func (m *Message) ThreadKey() string {
	return ThreadKey(m.SenderID, m.RecipientID)
}
