package store

import (
	"errors"
	"fmt"
)

// Common store errors used across all record store implementations.
var (
	// ErrMalformedRecord is returned when the output log contains a line or
	// row that does not decode to a record object.
	ErrMalformedRecord = errors.New("malformed record")

	// ErrReadOnly is returned by Append on a location that only supports
	// reading, such as a gzip-compressed log.
	ErrReadOnly = errors.New("record store is read-only")

	// ErrInvalidRecord is returned when a record fails validation before
	// being stored, for example when it lacks the identifier field.
	ErrInvalidRecord = errors.New("invalid record")

	// ErrLockFailed is returned when the exclusive append lock cannot be
	// acquired or released.
	ErrLockFailed = errors.New("record store lock failed")

	// ErrTransactionFailed is returned when a database transaction fails
	// to commit or when an operation within a transaction fails.
	ErrTransactionFailed = errors.New("transaction failed")
)

// StoreError is a custom error type for store-specific errors with additional context.
type StoreError struct {
	Location  string // The output location (e.g., file path)
	Operation string // The operation that failed (e.g., "append", "read")
	Message   string // Error message
	Err       error  // Original error
}

// Error implements the error interface for StoreError.
func (e *StoreError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s on %s failed: %s: %v", e.Operation, e.Location, e.Message, e.Err)
	}
	return fmt.Sprintf("%s on %s failed: %s", e.Operation, e.Location, e.Message)
}

// Unwrap returns the wrapped error to support errors.Is/errors.As.
func (e *StoreError) Unwrap() error {
	return e.Err
}

// NewStoreError creates a new StoreError with the given location, operation, message, and wrapped error.
func NewStoreError(location, operation, message string, err error) *StoreError {
	return &StoreError{
		Location:  location,
		Operation: operation,
		Message:   message,
		Err:       err,
	}
}

// IsMalformed reports whether err signals an undecodable output log.
func IsMalformed(err error) bool {
	return errors.Is(err, ErrMalformedRecord)
}
