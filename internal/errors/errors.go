package errors

import (
	"context"
	"errors"
)

// Common error types
var (
	ErrInvalidInput     = errors.New("invalid input")
	ErrStoreUnavailable = errors.New("store unavailable")
	ErrNotGroupChat     = errors.New("not a group chat")
)

// StoreUnavailable marks err as a retryable storage failure while keeping the cause reachable.
func StoreUnavailable(err error) error {
	if err == nil {
		return nil
	}
	return &storeError{cause: err}
}

// IsRetryable reports whether the caller may retry the operation that produced err.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	return errors.Is(err, ErrStoreUnavailable)
}

type storeError struct {
	cause error
}

func (e *storeError) Error() string {
	return ErrStoreUnavailable.Error() + ": " + e.cause.Error()
}

func (e *storeError) Unwrap() []error {
	return []error{ErrStoreUnavailable, e.cause}
}
