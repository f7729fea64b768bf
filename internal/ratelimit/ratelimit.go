// Package ratelimit throttles requests with a Redis fixed window shared by every
// instance, falling back to an in-process token bucket when Redis is unreachable.
package ratelimit

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"paintball-ticketing/internal/apperr"
	"paintball-ticketing/internal/logger"
	"paintball-ticketing/internal/utils"

	"github.com/go-redis/redis/v8"
	"golang.org/x/time/rate"
)

type Limiter struct {
	client *redis.Client
	limit  int
	window time.Duration
	log    *logger.Logger
	now    func() time.Time

	mu    sync.Mutex
	local map[string]*rate.Limiter
}

func New(client *redis.Client, limit int, window time.Duration, log *logger.Logger) *Limiter {
	if limit < 1 {
		limit = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &Limiter{
		client: client,
		limit:  limit,
		window: window,
		log:    log,
		now:    time.Now,
		local:  make(map[string]*rate.Limiter),
	}
}

// Allow reports whether one more request for key fits in the current window.
func (l *Limiter) Allow(ctx context.Context, key string) bool {
	if l.client != nil {
		allowed, err := l.allowRedis(ctx, key)
		if err == nil {
			return allowed
		}
		l.log.Warn("RATELIMIT", fmt.Sprintf("redis unavailable, using local limiter: %v", err))
	}
	return l.localLimiter(key).Allow()
}

func (l *Limiter) allowRedis(ctx context.Context, key string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, 300*time.Millisecond)
	defer cancel()

	bucket := l.now().UnixNano() / int64(l.window)
	k := "ratelimit:" + key + ":" + strconv.FormatInt(bucket, 10)

	n, err := l.client.Incr(ctx, k).Result()
	if err != nil {
		return false, err
	}
	if n == 1 {
		if err := l.client.Expire(ctx, k, l.window).Err(); err != nil {
			return false, err
		}
	}
	return n <= int64(l.limit), nil
}

func (l *Limiter) localLimiter(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	lim, ok := l.local[key]
	if !ok {
		lim = rate.NewLimiter(rate.Every(l.window/time.Duration(l.limit)), l.limit)
		l.local[key] = lim
	}
	return lim
}

// Middleware limits per client IP and scope.
func (l *Limiter) Middleware(scope string, log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := scope + ":" + clientIP(r)
			if !l.Allow(r.Context(), key) {
				w.Header().Set("Retry-After", strconv.Itoa(int(l.window.Seconds())))
				utils.WriteError(w, log, apperr.RateLimited("too many requests, please slow down"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
