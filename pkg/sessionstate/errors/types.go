package errors

import "fmt"

// BusyError indicates the database was locked by another writer.
type BusyError struct {
	// Op is the store operation that hit the lock.
	Op string
	// Err is the driver error.
	Err error
}

// Error implements the error interface.
func (e *BusyError) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("database busy during %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("database busy: %v", e.Err)
}

// Unwrap returns the driver error.
func (e *BusyError) Unwrap() error {
	return e.Err
}
