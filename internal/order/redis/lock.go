// Package redis guards payment verification with short-lived Redis locks so a
// webhook and a manual verify for the same reference do not race at the gateway.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"paintball-ticketing/internal/logger"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

const (
	DefaultLockTTL = 30 * time.Second
	keyPrefix      = "payment_lock:"
)

// releaseScript deletes the key only while it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

type PaymentLock struct {
	Client *redis.Client
	TTL    time.Duration
	Logger *logger.Logger
}

func NewPaymentLock(client *redis.Client, ttl time.Duration, log *logger.Logger) *PaymentLock {
	if ttl <= 0 {
		ttl = DefaultLockTTL
	}
	return &PaymentLock{Client: client, TTL: ttl, Logger: log}
}

// Acquire takes the lock for reference. ok is false when another holder has it.
// The returned release is safe to call more than once and after expiry.
func (l *PaymentLock) Acquire(ctx context.Context, reference string) (release func(), ok bool, err error) {
	noop := func() {}
	if l == nil || l.Client == nil {
		return noop, true, nil
	}

	key := keyPrefix + reference
	token := uuid.NewString()
	ok, err = l.Client.SetNX(ctx, key, token, l.TTL).Result()
	if err != nil {
		return noop, false, fmt.Errorf("lock %s: %w", key, err)
	}
	if !ok {
		return noop, false, nil
	}

	return func() {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
		defer cancel()
		if err := releaseScript.Run(ctx, l.Client, []string{key}, token).Err(); err != nil && !errors.Is(err, redis.Nil) {
			l.Logger.Warn("REDIS", fmt.Sprintf("release %s: %v", key, err))
		}
	}, true, nil
}

// Held reports whether a verification for reference is in flight.
func (l *PaymentLock) Held(ctx context.Context, reference string) (bool, error) {
	if l == nil || l.Client == nil {
		return false, nil
	}
	n, err := l.Client.Exists(ctx, keyPrefix+reference).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
