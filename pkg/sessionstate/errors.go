package sessionstate

import (
	"errors"
	"fmt"
)

// Sentinel errors.
var (
	// ErrSessionNotFound indicates a write required a session that doesn't exist.
	ErrSessionNotFound = errors.New("session not found")

	// ErrInvalidTransition indicates a status change the state machine forbids.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrPhaseHistoryRewrite indicates an update that would drop or reorder
	// completed phases.
	ErrPhaseHistoryRewrite = errors.New("completed phases can only be extended")
)

// ValidationError reports malformed input. It is returned before the store
// is touched, except for checks that need the stored record (transitions and
// phase history).
type ValidationError struct {
	// Field is the offending input.
	Field string
	// Message describes the problem.
	Message string
	// Err is an optional sentinel for errors.Is.
	Err error
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// Unwrap returns the sentinel, if any.
func (e *ValidationError) Unwrap() error {
	return e.Err
}

// StoreError wraps a failure of the backing store.
type StoreError struct {
	// Op is the operation that failed.
	Op string
	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *StoreError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *StoreError) Unwrap() error {
	return e.Err
}

// IsValidationError reports whether err is or wraps a *ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsStoreError reports whether err is or wraps a *StoreError.
func IsStoreError(err error) bool {
	var se *StoreError
	return errors.As(err, &se)
}

// wrapStoreErr leaves caller-facing errors alone and wraps everything else
// in a StoreError.
func wrapStoreErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if IsValidationError(err) || IsStoreError(err) || errors.Is(err, ErrSessionNotFound) {
		return err
	}
	return &StoreError{Op: op, Err: err}
}

func invalid(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}
