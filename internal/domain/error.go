package domain

import (
	"errors"
	"fmt"
)

var (
	// Store and encoding failures
	ErrStore         = errors.New("store unavailable")
	ErrSerialization = errors.New("malformed persisted data")
	ErrDataTooLarge  = errors.New("data too large")

	// Booking lifecycle
	ErrSlotTaken       = errors.New("time slot already taken")
	ErrAlreadyPaid     = errors.New("booking already paid")
	ErrCannotCancel    = errors.New("booking cannot be cancelled")
	ErrNoActiveSession = errors.New("no active session")

	// Common domain errors
	ErrNotFound        = errors.New("entity not found")
	ErrAlreadyExists   = errors.New("entity already exists")
	ErrInvalidArgument = errors.New("invalid argument")
)

// FieldTooLargeError names the field that exceeded its ceiling.
// It unwraps to ErrDataTooLarge.
type FieldTooLargeError struct {
	Field string
	Size  int
	Limit int
}

func (e *FieldTooLargeError) Error() string {
	return fmt.Sprintf("%s is %d bytes, limit %d", e.Field, e.Size, e.Limit)
}

func (e *FieldTooLargeError) Unwrap() error { return ErrDataTooLarge }

// Kind returns a stable label for logs and metrics.
func Kind(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, ErrDataTooLarge):
		return "data_too_large"
	case errors.Is(err, ErrSerialization):
		return "serialization"
	case errors.Is(err, ErrSlotTaken):
		return "slot_taken"
	case errors.Is(err, ErrAlreadyPaid):
		return "already_paid"
	case errors.Is(err, ErrCannotCancel):
		return "cannot_cancel"
	case errors.Is(err, ErrNoActiveSession):
		return "no_active_session"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrAlreadyExists):
		return "already_exists"
	case errors.Is(err, ErrInvalidArgument):
		return "invalid_argument"
	case errors.Is(err, ErrStore):
		return "store"
	default:
		return "internal"
	}
}
