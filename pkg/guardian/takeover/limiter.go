package takeover

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Limiter bounds takeover attempts per operator. Allow reports whether the
// attempt is within budget and, when it is not, how long until the window
// resets.
type Limiter interface {
	Allow(ctx context.Context, caller string) (allowed bool, retryAfter time.Duration, err error)
}

// Commands is the subset of Redis commands the window limiter needs.
type Commands interface {
	Incr(ctx context.Context, key string) *redis.IntCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
	TTL(ctx context.Context, key string) *redis.DurationCmd
}

// WindowLimiter counts attempts in a rolling window on Redis, so the budget
// holds across coordinator instances.
type WindowLimiter struct {
	rdb    Commands
	limit  int
	window time.Duration
}

func NewWindowLimiter(rdb Commands, limit int, window time.Duration) *WindowLimiter {
	return &WindowLimiter{rdb: rdb, limit: limit, window: window}
}

func (l *WindowLimiter) Allow(ctx context.Context, caller string) (bool, time.Duration, error) {
	key := "guardian:takeover:" + caller
	n, err := l.rdb.Incr(ctx, key).Result()
	if err != nil {
		return false, 0, fmt.Errorf("rate limit incr: %w", err)
	}
	if n == 1 {
		// First attempt in the window starts the expiry clock.
		if _, err := l.rdb.Expire(ctx, key, l.window).Result(); err != nil {
			return false, 0, fmt.Errorf("rate limit expire: %w", err)
		}
	} else if ttl, err := l.rdb.TTL(ctx, key).Result(); err == nil && ttl < 0 {
		// The counter lost its expiry (crash between INCR and EXPIRE, or a
		// Redis restart). Re-arm it so the key cannot 429 the caller forever.
		if _, err := l.rdb.Expire(ctx, key, l.window).Result(); err != nil {
			return false, 0, fmt.Errorf("rate limit expire: %w", err)
		}
	}
	if n <= int64(l.limit) {
		return true, 0, nil
	}

	retryAfter := l.window
	if ttl, err := l.rdb.TTL(ctx, key).Result(); err == nil && ttl > 0 {
		retryAfter = ttl
	}
	return false, retryAfter, nil
}
