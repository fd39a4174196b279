// Package domain holds the error taxonomy shared by the booking core.
package domain

import (
	"errors"
	"fmt"
)

var (
	ErrValidation          = errors.New("validation error")
	ErrInvalidSlot         = errors.New("invalid slot (must match system fixed timings)")
	ErrSlotClosed          = errors.New("slot is not open for booking")
	ErrSlotAlreadyBooked   = errors.New("this slot is already booked")
	ErrResourceNotApproved = errors.New("ground is not approved")
	ErrInvalidSignature    = errors.New("invalid signature")
	ErrAmountMismatch      = errors.New("paid amount does not match")
	ErrNotFound            = errors.New("not found")
	ErrForbidden           = errors.New("forbidden")
	ErrInvalidTransition   = errors.New("invalid reservation state transition")
)

// ValidationError describes malformed input. It unwraps to ErrValidation.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// Invalid builds a ValidationError.
func Invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err is any kind of rejected input: a
// ValidationError, an invalid slot or a closed slot.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInvalidSlot) ||
		errors.Is(err, ErrSlotClosed)
}
