package loan

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrUnauthorized      = errors.New("actor is not allowed to perform this action")
	ErrForbidden         = errors.New("you cannot borrow your own book")
	ErrInvalidTransition = errors.New("invalid loan status transition")
	ErrConflict          = errors.New("conflicting update")
	ErrUnavailable       = errors.New("store unavailable")
	ErrInvalidInput      = errors.New("invalid input")
)

// TransitionError describes a rejected transition together with the legal next states.
type TransitionError struct {
	From    Status
	To      Status
	Allowed []Status
}

func (e *TransitionError) Error() string {
	allowed := make([]string, 0, len(e.Allowed))
	for _, s := range e.Allowed {
		allowed = append(allowed, string(s))
	}
	if len(allowed) == 0 {
		return fmt.Sprintf("cannot move loan from %s to %s: %s is terminal", e.From, e.To, e.From)
	}
	return fmt.Sprintf("cannot move loan from %s to %s (allowed: %s)", e.From, e.To, strings.Join(allowed, ", "))
}

func (e *TransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}

// NewTransitionError builds the error for an unreachable target.
func NewTransitionError(from, to Status) *TransitionError {
	return &TransitionError{From: from, To: to, Allowed: AllowedTransitions(from)}
}

// Conflictf wraps ErrConflict with a reason.
func Conflictf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrConflict, fmt.Sprintf(format, args...))
}

// Unavailable wraps a storage or transport failure.
func Unavailable(cause error) error {
	if cause == nil {
		return nil
	}
	return errors.Join(ErrUnavailable, cause)
}
