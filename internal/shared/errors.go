package shared

import (
	"errors"
	"fmt"
)

// ErrNotFound indicates resource not found.
var ErrNotFound = errors.New("not found")

// ValidationError reports malformed or out-of-range input. An empty
// Field means the request as a whole was rejected.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation: " + e.Message
	}
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Message)
}

// NewValidationError builds a ValidationError for a single field.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// InvalidStateError reports a document transition attempted from a
// disallowed state.
type InvalidStateError struct {
	Entity   string
	ID       int64
	Current  string
	Required string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("%s %d: invalid state %s, requires %s", e.Entity, e.ID, e.Current, e.Required)
}

// IsInvalidState reports whether err is an InvalidStateError.
func IsInvalidState(err error) bool {
	var se *InvalidStateError
	return errors.As(err, &se)
}

// InsufficientStockError reports that FIFO consumption cannot be
// satisfied from the available lots. Nothing partial was applied.
type InsufficientStockError struct {
	ItemID    int64
	Requested string
	Available string
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("item %d: insufficient stock: requested %s, available %s", e.ItemID, e.Requested, e.Available)
}

// IsInsufficientStock reports whether err is an InsufficientStockError.
func IsInsufficientStock(err error) bool {
	var ie *InsufficientStockError
	return errors.As(err, &ie)
}

// ConcurrentModificationError reports an optimistic-lock conflict.
// The operation committed nothing and is safe to retry.
type ConcurrentModificationError struct {
	Entity string
	ID     int64
}

func (e *ConcurrentModificationError) Error() string {
	return fmt.Sprintf("%s %d: modified concurrently, retry", e.Entity, e.ID)
}

// IsConcurrentModification reports whether err is a
// ConcurrentModificationError.
func IsConcurrentModification(err error) bool {
	var ce *ConcurrentModificationError
	return errors.As(err, &ce)
}
