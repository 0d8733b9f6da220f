package util

import (
	"context"
	"errors"
	"time"
)

// RetryPolicy describes how many times an operation is attempted and how
// long to wait between attempts. The wait before retry n (0-based attempt
// that just failed) is BackoffFactor * 2^n.
type RetryPolicy struct {
	MaxAttempts   int
	BackoffFactor time.Duration

	// Sleep waits for d or until ctx is done. Nil means a timer-based wait.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Backoff returns the wait after the given failed attempt.
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	return p.BackoffFactor * time.Duration(1<<attempt)
}

// permanentError marks an error that must not be retried.
type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent wraps err so that Do returns it immediately instead of retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// Do calls fn until it succeeds, returns a Permanent error, or MaxAttempts is
// reached. It returns the number of attempts made and the last error, with
// any Permanent wrapper removed. The function respects context cancellation
// between retries.
func (p RetryPolicy) Do(ctx context.Context, fn func(attempt int) error) (int, error) {
	maxAttempts := max(p.MaxAttempts, 1)
	sleep := p.Sleep
	if sleep == nil {
		sleep = sleepContext
	}

	var err error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		err = fn(attempt)
		if err == nil {
			return attempt + 1, nil
		}

		var perm *permanentError
		if errors.As(err, &perm) {
			return attempt + 1, perm.err
		}

		// Don't sleep after the last failed attempt.
		if attempt < maxAttempts-1 {
			if serr := sleep(ctx, p.Backoff(attempt)); serr != nil {
				return attempt + 1, serr
			}
		}
	}
	return maxAttempts, err
}

// Retry calls fn up to maxAttempts times with exponential backoff starting at
// baseDelay. It returns nil on the first successful call, or the last error
// if all attempts fail.
func Retry(ctx context.Context, maxAttempts int, baseDelay time.Duration, fn func() error) error {
	_, err := RetryPolicy{MaxAttempts: maxAttempts, BackoffFactor: baseDelay}.Do(ctx, func(int) error {
		return fn()
	})
	return err
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
