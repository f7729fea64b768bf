package retry

import (
	"context"
	"errors"
	"time"

	"paintball-ticketing/internal/apperr"
	"paintball-ticketing/internal/database"

	"github.com/cenkalti/backoff/v4"
)

// Policy bounds an exponential backoff loop.
type Policy struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
	// Retryable decides which errors earn another attempt. Nil means Conflict.
	Retryable func(error) bool
}

// DefaultPolicy is used for order numbers, ticket codes and serialization conflicts.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:     3,
		InitialInterval: 20 * time.Millisecond,
		MaxInterval:     500 * time.Millisecond,
		Multiplier:      2,
	}
}

// Conflict retries typed conflicts plus the database errors a fresh transaction can clear.
func Conflict(err error) bool {
	return apperr.Is(err, apperr.KindConflict) || database.IsRetryable(err)
}

// Do runs fn until it succeeds, fails with a non-retryable error, or the attempt cap
// is reached. Hitting the cap yields a RetryExhausted error wrapping the last failure.
func Do(ctx context.Context, p Policy, fn func(ctx context.Context) error) error {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}
	retryable := p.Retryable
	if retryable == nil {
		retryable = Conflict
	}

	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = p.InitialInterval
	if p.MaxInterval > 0 {
		exp.MaxInterval = p.MaxInterval
	}
	if p.Multiplier > 0 {
		exp.Multiplier = p.Multiplier
	}
	exp.MaxElapsedTime = 0

	b := backoff.WithContext(backoff.WithMaxRetries(exp, uint64(p.MaxAttempts-1)), ctx)

	var last error
	err := backoff.Retry(func() error {
		last = fn(ctx)
		if last == nil {
			return nil
		}
		if !retryable(last) {
			return backoff.Permanent(last)
		}
		return last
	}, b)

	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if last != nil && retryable(last) {
		return apperr.RetryExhausted("operation failed after retries, please try again", last)
	}
	return err
}
