// Package cache is an optional Redis-backed JSON cache. Every failure degrades to a
// miss or a no-op; callers then read straight from the database.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"paintball-ticketing/internal/logger"

	"github.com/go-redis/redis/v8"
)

const (
	opTimeout = 500 * time.Millisecond
	scanBatch = 200
)

type Cache struct {
	client *redis.Client
	prefix string
	log    *logger.Logger
}

// New accepts a nil client, which turns the cache into a permanent miss.
func New(client *redis.Client, prefix string, log *logger.Logger) *Cache {
	return &Cache{client: client, prefix: prefix, log: log}
}

func (c *Cache) key(k string) string {
	return c.prefix + k
}

// Get decodes the cached value into dest and reports whether it was found.
func (c *Cache) Get(ctx context.Context, key string, dest any) bool {
	if c == nil || c.client == nil {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	raw, err := c.client.Get(ctx, c.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return false
	}
	if err != nil {
		c.log.Warn("CACHE", fmt.Sprintf("get %s failed, serving uncached: %v", key, err))
		return false
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		c.log.Warn("CACHE", fmt.Sprintf("corrupt entry %s dropped: %v", key, err))
		c.client.Del(ctx, c.key(key))
		return false
	}
	return true
}

func (c *Cache) Set(ctx context.Context, key string, value any, ttl time.Duration) {
	if c == nil || c.client == nil {
		return
	}
	raw, err := json.Marshal(value)
	if err != nil {
		c.log.Warn("CACHE", fmt.Sprintf("encode %s: %v", key, err))
		return
	}
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if err := c.client.Set(ctx, c.key(key), raw, ttl).Err(); err != nil {
		c.log.Warn("CACHE", fmt.Sprintf("set %s failed: %v", key, err))
	}
}

// DeletePattern removes every key matching a glob pattern using SCAN, never KEYS.
// It returns the error so post-commit invalidation failures are counted.
func (c *Cache) DeletePattern(ctx context.Context, pattern string) error {
	if c == nil || c.client == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 5*opTimeout)
	defer cancel()

	var cursor uint64
	for {
		keys, next, err := c.client.Scan(ctx, cursor, c.key(pattern), scanBatch).Result()
		if err != nil {
			return fmt.Errorf("scan %s: %w", pattern, err)
		}
		if len(keys) > 0 {
			if err := c.client.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("delete %s: %w", pattern, err)
			}
		}
		if next == 0 {
			return nil
		}
		cursor = next
	}
}
