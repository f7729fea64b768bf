package retry_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"paintball-ticketing/internal/apperr"
	"paintball-ticketing/internal/retry"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastPolicy() retry.Policy {
	p := retry.DefaultPolicy()
	p.InitialInterval = time.Millisecond
	p.MaxInterval = 2 * time.Millisecond
	return p
}

func TestDoSucceedsAfterConflicts(t *testing.T) {
	calls := 0
	err := retry.Do(context.Background(), fastPolicy(), func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return apperr.Conflict("order number taken", nil)
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDoStopsAtCapWithRetryExhausted(t *testing.T) {
	calls := 0
	collision := apperr.Conflict("order number taken", nil)
	err := retry.Do(context.Background(), fastPolicy(), func(ctx context.Context) error {
		calls++
		return collision
	})

	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, apperr.KindRetryExhausted, apperr.KindOf(err))
	assert.ErrorIs(t, err, collision)
}

func TestDoDoesNotRetryPermanentErrors(t *testing.T) {
	calls := 0
	invalid := apperr.Validation("quantity must be between 1 and 100")
	err := retry.Do(context.Background(), fastPolicy(), func(ctx context.Context) error {
		calls++
		return invalid
	})

	assert.Equal(t, 1, calls)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestDoRetriesSQLiteUniqueViolation(t *testing.T) {
	calls := 0
	err := retry.Do(context.Background(), fastPolicy(), func(ctx context.Context) error {
		calls++
		if calls == 1 {
			return errors.New("constraint failed: UNIQUE constraint failed: orders.order_number (2067)")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestDoHonoursCustomRetryable(t *testing.T) {
	transient := errors.New("transient")
	p := fastPolicy()
	p.MaxAttempts = 5
	p.Retryable = func(err error) bool { return errors.Is(err, transient) }

	calls := 0
	err := retry.Do(context.Background(), p, func(ctx context.Context) error {
		calls++
		return transient
	})
	assert.Equal(t, 5, calls)
	assert.Equal(t, apperr.KindRetryExhausted, apperr.KindOf(err))
}

func TestDoStopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := fastPolicy()
	p.InitialInterval = time.Second
	err := retry.Do(ctx, p, func(ctx context.Context) error {
		return apperr.Conflict("taken", nil)
	})
	assert.ErrorIs(t, err, context.Canceled)
}
