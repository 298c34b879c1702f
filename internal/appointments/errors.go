package appointments

import (
	"errors"
	"fmt"
)

var (
	// ErrSlotConflict means the requested time was taken before the booking
	// committed. Nothing was written; the caller should pick another time.
	ErrSlotConflict = errors.New("appointments: slot already taken")
	// ErrStoreUnavailable wraps transient store failures. Nothing was written
	// and the request may be retried.
	ErrStoreUnavailable = errors.New("appointments: store unavailable")
	// ErrInvalidInput is matched by every validation failure.
	ErrInvalidInput = errors.New("appointments: invalid input")
	// ErrDoctorNotFound is an invalid-input error for unknown doctors.
	ErrDoctorNotFound = fmt.Errorf("%w: doctor not found", ErrInvalidInput)
	// ErrAppointmentNotFound indicates no record exists for the id.
	ErrAppointmentNotFound = errors.New("appointments: appointment not found")
	// ErrNotOwner is returned when a user touches someone else's appointment.
	ErrNotOwner = errors.New("appointments: appointment belongs to another user")

	// errStaleOwnership marks a cancel whose slot is held by a different
	// appointment. It never leaves this package.
	errStaleOwnership = errors.New("appointments: slot owned by another appointment")
)

// ValidationError describes which request field was rejected.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("appointments: invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrInvalidInput }

func invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}
