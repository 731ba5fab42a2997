package book

import (
	"errors"
	"strings"
	"time"
)

// Availability mirrors whether the physical book is on its owner's shelf.
type Availability string

const (
	AvailabilityAvailable Availability = "Available"
	AvailabilityLentOut   Availability = "Lent Out"
	AvailabilityBorrowed  Availability = "Borrowed"
)

var ErrInvalidAvailability = errors.New("invalid availability")

// Book is the ledger entry for one physical book. Metadata lives with the external
// catalogue; the ledger only knows who owns the book and whether it is out.
type Book struct {
	ID           int64        `json:"-"`
	BookID       string       `json:"bookId"`
	OwnerID      string       `json:"ownerId"`
	Availability Availability `json:"availability"`
	UpdatedAt    time.Time    `json:"updatedAt"`
}

// NewBook creates an available ledger entry.
func NewBook(bookID, ownerID string) *Book {
	return &Book{
		BookID:       strings.TrimSpace(bookID),
		OwnerID:      ownerID,
		Availability: AvailabilityAvailable,
		UpdatedAt:    time.Now().UTC(),
	}
}

func (b *Book) IsAvailable() bool {
	return b.Availability == AvailabilityAvailable
}

func ValidateAvailability(a Availability) error {
	switch a {
	case AvailabilityAvailable, AvailabilityLentOut, AvailabilityBorrowed:
		return nil
	default:
		return ErrInvalidAvailability
	}
}
