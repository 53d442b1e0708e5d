package events

import (
	"context"
	"errors"
	"time"
)

// RetryPolicy bounds how often a failed handler is re-run.
type RetryPolicy struct {
	MaxAttempts int
	Backoff     time.Duration
}

// DefaultRetryPolicy is one run plus two retries with a 1s linear backoff.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, Backoff: time.Second}
}

type nonRetriableError struct {
	err error
}

func (e *nonRetriableError) Error() string { return e.err.Error() }
func (e *nonRetriableError) Unwrap() error { return e.err }

// NonRetriable marks err as permanent. Nil stays nil.
func NonRetriable(err error) error {
	if err == nil {
		return nil
	}
	return &nonRetriableError{err: err}
}

// IsRetriable reports whether err is worth another attempt.
func IsRetriable(err error) bool {
	if err == nil {
		return false
	}
	var nr *nonRetriableError
	return !errors.As(err, &nr)
}

// Do runs fn until it succeeds, returns a non-retriable error, the attempts
// run out or ctx is cancelled. The last error is returned.
func (p RetryPolicy) Do(ctx context.Context, fn func(ctx context.Context, attempt int) error) error {
	attempts := p.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = fn(ctx, attempt)
		if err == nil || !IsRetriable(err) || attempt == attempts {
			return err
		}

		wait := time.Duration(attempt) * p.Backoff
		if wait <= 0 {
			if ctx.Err() != nil {
				return err
			}
			continue
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return err
		case <-timer.C:
		}
	}
	return err
}
