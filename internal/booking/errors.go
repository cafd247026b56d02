package booking

import (
	"errors"
	"fmt"
)

var (
	// ErrSlotUnavailable: an occupying appointment overlaps the requested
	// interval. Recoverable by re-fetching availability and retrying.
	ErrSlotUnavailable = errors.New("slot unavailable")

	// ErrInvalidTransition: the appointment's current status does not admit
	// the requested transition. Never auto-corrected.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrConcurrentModification: the transaction lost a serialization race
	// more times than the retry budget allows.
	ErrConcurrentModification = errors.New("concurrent modification")

	ErrNotFound = errors.New("appointment not found")
)

// ValidationError rejects malformed or rule-breaking input before any
// storage write happens.
type ValidationError struct {
	msg string
}

func (e *ValidationError) Error() string {
	return e.msg
}

func validationf(format string, args ...any) error {
	return &ValidationError{msg: fmt.Sprintf(format, args...)}
}

func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
