// Package ratelimit provides a fixed-window request limiter backed by Redis.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"op-platform/core/internal/platform/errs"
)

const keyPrefix = "ratelimit:"

// Limiter counts hits per key inside a fixed window. The counter key gets its
// TTL on the first hit of the window; when the TTL lapses the window resets.
type Limiter struct {
	client *redis.Client
	limit  int64
	window time.Duration
}

// NewLimiter returns a Limiter allowing limit hits per window.
func NewLimiter(client *redis.Client, limit int, window time.Duration) *Limiter {
	if limit <= 0 {
		limit = 100
	}
	if window <= 0 {
		window = time.Minute
	}
	return &Limiter{client: client, limit: int64(limit), window: window}
}

// Allow records a hit for key and fails with RateLimitedError once the
// window's budget is spent. RetryAfter carries the window's remaining TTL.
// Redis failures surface as ErrDependencyUnavailable, not as a pass.
func (l *Limiter) Allow(ctx context.Context, key string) error {
	k := keyPrefix + key
	count, err := l.client.Incr(ctx, k).Result()
	if err != nil {
		return errs.Dependency(err)
	}
	if count == 1 {
		if err := l.client.Expire(ctx, k, l.window).Err(); err != nil {
			return errs.Dependency(err)
		}
	}
	if count > l.limit {
		ttl, err := l.client.TTL(ctx, k).Result()
		if err != nil || ttl < 0 {
			ttl = l.window
		}
		return &errs.RateLimitedError{RetryAfter: ttl}
	}
	return nil
}

// RequestKey builds the counter key for an HTTP request.
func RequestKey(remoteAddr, path string) string {
	return fmt.Sprintf("%s:%s", remoteAddr, path)
}
