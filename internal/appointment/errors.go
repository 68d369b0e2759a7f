package appointment

import (
	"errors"
	"fmt"
)

// Error kinds. Every error returned by the service for a business outcome wraps exactly one
// of these, so callers can branch on the kind with errors.Is.
var (
	ErrNotFound     = errors.New("not found")
	ErrValidation   = errors.New("validation failed")
	ErrUnauthorized = errors.New("unauthorized")
	ErrInvalidState = errors.New("invalid state")
)

var (
	ErrPatientNotFound      = fmt.Errorf("%w: patient profile not found", ErrNotFound)
	ErrDoctorNotFound       = fmt.Errorf("%w: doctor profile not found", ErrNotFound)
	ErrAppointmentNotFound  = fmt.Errorf("%w: appointment not found", ErrNotFound)
	ErrAvailabilityNotFound = fmt.Errorf("%w: availability not found", ErrNotFound)

	ErrSlotNotInSchedule = fmt.Errorf("%w: slot not in schedule", ErrValidation)
	ErrSlotAlreadyBooked = fmt.Errorf("%w: slot already booked", ErrValidation)
	ErrSlotInPast        = fmt.Errorf("%w: slot is in the past", ErrValidation)
	ErrInvalidTimeRange  = fmt.Errorf("%w: end time must be after start time", ErrValidation)
	ErrNotOwner          = fmt.Errorf("%w: not authorized for this resource", ErrValidation)

	ErrMissingIdentity = fmt.Errorf("%w: caller identity missing", ErrUnauthorized)

	ErrInvalidStatusTransition = fmt.Errorf("%w: invalid status transition", ErrInvalidState)
)

// ErrSlotBeingBooked is transient: another request holds the day lock. It carries no kind
// and is never retried by the service.
var ErrSlotBeingBooked = errors.New("slot is currently being booked, please retry")

// validationError carries field-level detail while still matching ErrValidation.
type validationError struct {
	msg string
}

func (e *validationError) Error() string { return ErrValidation.Error() + ": " + e.msg }
func (e *validationError) Unwrap() error { return ErrValidation }

func newValidationError(format string, args ...any) error {
	return &validationError{msg: fmt.Sprintf(format, args...)}
}
