package events

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRetryPolicy_Do(t *testing.T) {
	transient := errors.New("db down")

	tests := []struct {
		name      string
		failures  int
		err       error
		wantCalls int
		wantErr   bool
	}{
		{"succeeds first time", 0, nil, 1, false},
		{"succeeds on retry", 2, transient, 3, false},
		{"exhausts attempts", 5, transient, 3, true},
		{"non-retriable stops immediately", 5, NonRetriable(transient), 1, true},
		{"wrapped non-retriable stops immediately", 5, fmt.Errorf("stage fetch: %w", NonRetriable(transient)), 1, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			policy := RetryPolicy{MaxAttempts: 3, Backoff: time.Millisecond}
			calls := 0
			err := policy.Do(context.Background(), func(_ context.Context, attempt int) error {
				calls++
				assert.Equal(t, calls, attempt)
				if calls <= tt.failures {
					return tt.err
				}
				return nil
			})
			assert.Equal(t, tt.wantCalls, calls)
			assert.Equal(t, tt.wantErr, err != nil)
		})
	}
}

func TestRetryPolicy_stopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	policy := RetryPolicy{MaxAttempts: 5, Backoff: time.Hour}

	calls := 0
	err := policy.Do(ctx, func(context.Context, int) error {
		calls++
		cancel()
		return errors.New("boom")
	})
	assert.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestIsRetriable(t *testing.T) {
	assert.False(t, IsRetriable(nil))
	assert.True(t, IsRetriable(errors.New("x")))
	assert.False(t, IsRetriable(NonRetriable(errors.New("x"))))
	assert.Nil(t, NonRetriable(nil))

	base := errors.New("ticket missing")
	assert.ErrorIs(t, NonRetriable(base), base)
}

func TestDefaultRetryPolicy(t *testing.T) {
	p := DefaultRetryPolicy()
	assert.Equal(t, 3, p.MaxAttempts)
	assert.Equal(t, time.Second, p.Backoff)
}
