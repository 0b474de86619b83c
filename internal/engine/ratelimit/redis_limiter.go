package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"relay/internal/platform/repositories"
)

// RedisLimiter keeps the per-window counter in Redis while the limit
// configuration stays in the rate_limits table. INCR is atomic, so this
// backend has no read-then-write gap at all.
type RedisLimiter struct {
	rdb  *redis.Client
	repo *repositories.RateLimitRepository
	now  func() time.Time
}

func NewRedisLimiter(rdb *redis.Client, repo *repositories.RateLimitRepository) *RedisLimiter {
	return &RedisLimiter{rdb: rdb, repo: repo, now: time.Now}
}

func (l *RedisLimiter) Check(ctx context.Context, connectionID, limitType string) (*Decision, error) {
	rl, err := l.repo.Get(connectionID, limitType)
	if err != nil {
		return nil, err
	}
	if rl == nil {
		return unlimited(limitType), nil
	}

	window := WindowDuration(rl.LimitType)
	key := fmt.Sprintf("ratelimit:%s:%s", connectionID, limitType)

	count, err := l.rdb.Incr(ctx, key).Result()
	if err != nil {
		return nil, err
	}
	if count == 1 {
		if err := l.rdb.Expire(ctx, key, window).Err(); err != nil {
			return nil, err
		}
	}

	resetAt := l.now().Add(window).Unix()
	if ttl, err := l.rdb.TTL(ctx, key).Result(); err == nil && ttl > 0 {
		resetAt = l.now().Add(ttl).Unix()
	}

	usage := int(count)
	if usage > rl.MaxRequests {
		return &Decision{
			Allowed:      false,
			CurrentUsage: rl.MaxRequests,
			MaxRequests:  rl.MaxRequests,
			Remaining:    0,
			ResetAt:      resetAt,
			LimitType:    rl.LimitType,
		}, nil
	}

	return &Decision{
		Allowed:      true,
		CurrentUsage: usage,
		MaxRequests:  rl.MaxRequests,
		Remaining:    rl.MaxRequests - usage,
		ResetAt:      resetAt,
		LimitType:    rl.LimitType,
	}, nil
}
