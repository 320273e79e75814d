package automation

import (
	"errors"
	"fmt"
)

// RetryableError marks a dispatch failure worth re-attempting with backoff:
// transient provider errors and exhausted credits (the organization may top
// up later; blocked automations keep their place, they are not cancelled).
type RetryableError struct {
	Err error
}

func (e *RetryableError) Error() string {
	return fmt.Sprintf("retryable dispatch failure: %v", e.Err)
}

func (e *RetryableError) Unwrap() error {
	return e.Err
}

// FatalError marks a dispatch failure that no retry can fix: the entity is
// gone, opted out, or the provider permanently rejected the request.
type FatalError struct {
	Err error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("fatal dispatch failure: %v", e.Err)
}

func (e *FatalError) Unwrap() error {
	return e.Err
}

// Retryable wraps err as a RetryableError.
func Retryable(err error) error {
	return &RetryableError{Err: err}
}

// Fatal wraps err as a FatalError.
func Fatal(err error) error {
	return &FatalError{Err: err}
}

// IsRetryable reports whether err is a retryable dispatch failure.
func IsRetryable(err error) bool {
	var re *RetryableError
	return errors.As(err, &re)
}

// IsFatal reports whether err is a fatal dispatch failure.
func IsFatal(err error) bool {
	var fe *FatalError
	return errors.As(err, &fe)
}
