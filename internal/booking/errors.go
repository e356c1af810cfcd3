package booking

import "errors"

// The four failure classes the commit protocol can surface. UI behavior
// differs per class, so callers must be able to tell them apart:
// conflicts ask for another slot, validation errors name the field,
// transient errors invite a retry, not-found is terminal for the id.
var (
	ErrConflict = errors.New("time slot already booked or overlapping")
	ErrNotFound = errors.New("booking not found")
)

// ValidationError reports malformed or missing input. Never retried.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Reason
}

func invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// TransientError wraps a storage failure that is safe to retry with backoff.
// The request was never committed, so an identical resubmit is safe.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	return "storage temporarily unavailable: " + e.Err.Error()
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}
