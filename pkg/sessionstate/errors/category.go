// Package errors classifies storage failures and retries the transient ones.
//
// The backing store reports two kinds of failure:
//   - Transient: lock contention (SQLITE_BUSY, SQLITE_LOCKED). Another
//     writer holds the database; trying again shortly will succeed.
//   - Permanent: everything else (disk full, corruption, constraint
//     violations, closed store). Retrying cannot help and the error must be
//     surfaced to the caller unchanged.
//
// WithRetryContext and Handler retry only transient failures, with
// exponential backoff and jitter.
package errors

import (
	"context"
	"errors"
	"fmt"
)

// Category represents how an error should be handled.
type Category int

const (
	// CategoryTransient indicates retry will likely help.
	// Examples: database locked by another writer, busy timeout.
	CategoryTransient Category = iota

	// CategoryPermanent indicates retry won't help.
	// Examples: disk full, corrupt database file, constraint violations.
	CategoryPermanent
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case CategoryTransient:
		return "transient"
	case CategoryPermanent:
		return "permanent"
	default:
		return "unknown"
	}
}

// CategorizedError wraps an error with its category and context.
type CategorizedError struct {
	// Err is the underlying error.
	Err error

	// Category indicates how this error should be handled.
	Category Category

	// Retries is the number of attempts that have been made.
	Retries int

	// Context describes what operation was being attempted.
	Context string
}

// Error implements the error interface.
func (e *CategorizedError) Error() string {
	if e.Context != "" {
		return fmt.Sprintf("%s: %s (category: %s, attempts: %d)",
			e.Context, e.Err, e.Category, e.Retries)
	}
	return fmt.Sprintf("%s (category: %s, attempts: %d)",
		e.Err, e.Category, e.Retries)
}

// Unwrap returns the underlying error.
func (e *CategorizedError) Unwrap() error {
	return e.Err
}

// Categorize determines how an error should be handled.
func Categorize(err error) Category {
	if err == nil {
		return CategoryPermanent // shouldn't happen, fail safe
	}

	var catErr *CategorizedError
	if errors.As(err, &catErr) {
		return catErr.Category
	}

	var busyErr *BusyError
	if errors.As(err, &busyErr) {
		return CategoryTransient
	}

	// The caller gave up; retrying against a dead context is pointless.
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return CategoryPermanent
	}

	// Unknown errors are permanent (fail safe)
	return CategoryPermanent
}

// IsRetryable reports whether the error should be retried.
func IsRetryable(err error) bool {
	return Categorize(err) == CategoryTransient
}
