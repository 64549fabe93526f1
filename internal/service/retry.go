package service

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// RetryPolicy bounds how often a platform call is repeated after a
// transient failure.
type RetryPolicy struct {
	Attempts int
	Initial  time.Duration
	Max      time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Attempts: 3, Initial: 2 * time.Second, Max: 30 * time.Second}
}

// Do runs op until it succeeds, fails permanently or runs out of attempts.
// onRetry is called before each wait with the attempt that just failed.
func (p RetryPolicy) Do(ctx context.Context, op func(attempt int) error, onRetry func(attempt int, err error, wait time.Duration)) error {
	attempts := p.Attempts
	if attempts <= 0 {
		attempts = 1
	}

	b := backoff.NewExponentialBackOff()
	if p.Initial > 0 {
		b.InitialInterval = p.Initial
	}
	if p.Max > 0 {
		b.MaxInterval = p.Max
	}

	var (
		attempt int
		lastErr error
	)
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		attempt++
		err := op(attempt)
		if err == nil {
			return struct{}{}, nil
		}
		lastErr = err
		if !Retryable(err) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(attempts)),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, wait time.Duration) {
			if onRetry != nil {
				onRetry(attempt, err, wait)
			}
		}),
	)
	if err == nil {
		return nil
	}

	var perm *backoff.PermanentError
	if errors.As(err, &perm) {
		return perm.Unwrap()
	}
	// Cancellation during a wait reports the context error; the caller
	// wants the platform's.
	if lastErr != nil && ctx.Err() != nil {
		return lastErr
	}
	return err
}
