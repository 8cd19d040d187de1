package handlers

import (
	"context"
	"time"

	"github.com/pkg/errors"

	apperr "github.com/iamwavecut/emojibot/internal/errors"
)

const (
	storeMaxRetries = 3
	storeRetryStep  = 150 * time.Millisecond
)

// withRetry repeats fn on retryable store failures with a linear backoff.
func withRetry[T any](ctx context.Context, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	var lastErr error
	for attempt := range storeMaxRetries {
		res, err := fn(ctx)
		if err == nil {
			return res, nil
		}
		lastErr = err
		if !apperr.IsRetryable(err) || attempt == storeMaxRetries-1 {
			break
		}

		backoff := time.Duration(attempt+1) * storeRetryStep
		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(backoff):
		}
	}
	return zero, errors.Wrapf(lastErr, "%s failed", op)
}
