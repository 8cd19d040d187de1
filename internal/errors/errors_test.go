package errors

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestStoreUnavailableKeepsCause(t *testing.T) {
	t.Parallel()

	cause := errors.New("database is locked")
	err := fmt.Errorf("credit: %w", StoreUnavailable(cause))

	if !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable in chain: %v", err)
	}
	if !errors.Is(err, cause) {
		t.Fatalf("expected cause in chain: %v", err)
	}
	if !IsRetryable(err) {
		t.Fatalf("expected retryable error")
	}
}

func TestIsRetryable(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "plain", err: errors.New("boom"), want: false},
		{name: "invalid-input", err: ErrInvalidInput, want: false},
		{name: "store", err: StoreUnavailable(errors.New("timeout")), want: true},
		{name: "canceled", err: StoreUnavailable(context.Canceled), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := IsRetryable(tt.err); got != tt.want {
				t.Fatalf("IsRetryable(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}

	if StoreUnavailable(nil) != nil {
		t.Fatalf("expected nil for nil cause")
	}
}
