package rateLimit

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/robertarktes/coworking-booking-engine/internal/observability"
)

// RateLimiter is a fixed-window counter per key.
type RateLimiter struct {
	redis *redis.Client
}

func NewRateLimiter(client *redis.Client) *RateLimiter {
	return &RateLimiter{redis: client}
}

// Allow reports whether key is still under rate within the current period.
// It allows the request when redis is unreachable, since it only guards
// advisory traffic.
func (rl *RateLimiter) Allow(ctx context.Context, key string, rate int, period time.Duration) bool {
	fullKey := "rl:" + key

	pipe := rl.redis.Pipeline()
	incr := pipe.Incr(ctx, fullKey)
	pipe.ExpireNX(ctx, fullKey, period)

	if _, err := pipe.Exec(ctx); err != nil {
		return true
	}

	if incr.Val() > int64(rate) {
		observability.RateLimitExceeded.Inc()
		return false
	}
	return true
}
