package generation

import (
	"errors"
	"fmt"
)

// Common errors returned by the generation package
var (
	// ErrRateLimited is returned when the provider rejects a request because
	// of rate or quota limits. It is retryable.
	ErrRateLimited = errors.New("completion rate limited")

	// ErrTimeout is returned when a completion does not finish within the
	// per-attempt timeout. It is retryable.
	ErrTimeout = errors.New("completion timed out")

	// ErrCompletionFailed wraps any non-retryable provider failure.
	ErrCompletionFailed = errors.New("completion failed")

	// ErrCompletionExhausted is matched by CompletionExhaustedError.
	ErrCompletionExhausted = errors.New("completion attempts exhausted")

	// ErrInvalidResponse is returned when the provider response carries no
	// usable content.
	ErrInvalidResponse = errors.New("invalid response from language model")

	// ErrInvalidConfig is returned when the caller or a completer is
	// misconfigured.
	ErrInvalidConfig = errors.New("invalid generation configuration")
)

// IsRetryable reports whether err is a rate-limit or timeout failure.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrRateLimited) || errors.Is(err, ErrTimeout)
}

// CompletionExhaustedError is returned when every attempt of a call failed
// with a retryable error.
type CompletionExhaustedError struct {
	CallID   string // identifies the work item the call was made for
	Attempts int    // number of attempts made
	LastErr  error  // failure of the final attempt
}

// Error implements the error interface.
func (e *CompletionExhaustedError) Error() string {
	return fmt.Sprintf("call %q: %s after %d attempts: %v",
		e.CallID, ErrCompletionExhausted.Error(), e.Attempts, e.LastErr)
}

// Is makes errors.Is(err, ErrCompletionExhausted) hold.
func (e *CompletionExhaustedError) Is(target error) bool {
	return target == ErrCompletionExhausted
}

// Unwrap returns the last attempt's error.
func (e *CompletionExhaustedError) Unwrap() error {
	return e.LastErr
}
