// Package ratelimit limits stats requests per caller with a Redis-backed
// fixed window.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	extratelimit "github.com/vnmchuo/ratelimiter"
)

// Limiter is a thin wrapper around github.com/vnmchuo/ratelimiter
type Limiter struct {
	store extratelimit.Limiter
}

func NewLimiter(rdb *redis.Client, perMinute int) *Limiter {
	store := extratelimit.NewRedisStore(rdb,
		extratelimit.WithLimit(perMinute),
		extratelimit.WithWindow(time.Minute),
	)
	return &Limiter{store: store}
}

func NewTestLimiter(store extratelimit.Limiter) *Limiter {
	return &Limiter{store: store}
}

func key(subject string) string {
	return fmt.Sprintf("ratelimit:stats:%s", subject)
}

// Allow spends one request for subject, a caller string such as "user:7" or
// "ip:10.0.0.1".
func (l *Limiter) Allow(ctx context.Context, subject string) (*extratelimit.Result, error) {
	return l.store.Allow(ctx, key(subject))
}

func (l *Limiter) Status(ctx context.Context, subject string) (*extratelimit.Result, error) {
	return l.store.Status(ctx, key(subject))
}
