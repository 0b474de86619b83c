package ratelimit

import (
	"context"
	"time"

	"relay/internal/platform/repositories"
)

// SQLLimiter keeps windows in the rate_limits table. Increments go through a
// guarded UPDATE, so the persisted counter can never pass max_requests without
// is_exceeded being set, even under concurrent checks.
type SQLLimiter struct {
	repo *repositories.RateLimitRepository
	now  func() time.Time
}

func NewSQLLimiter(repo *repositories.RateLimitRepository) *SQLLimiter {
	return &SQLLimiter{repo: repo, now: time.Now}
}

func (l *SQLLimiter) Check(_ context.Context, connectionID, limitType string) (*Decision, error) {
	rl, err := l.repo.Get(connectionID, limitType)
	if err != nil {
		return nil, err
	}
	if rl == nil {
		return unlimited(limitType), nil
	}

	now := l.now().Unix()

	// Expired window: reset atomically and let this request through without
	// counting it, matching the observed window-rollover behavior.
	if now >= rl.WindowEnd {
		end := now + int64(WindowDuration(rl.LimitType).Seconds())
		if err := l.repo.ResetWindow(rl.ID, now, end); err != nil {
			return nil, err
		}
		return &Decision{
			Allowed:     true,
			MaxRequests: rl.MaxRequests,
			Remaining:   rl.MaxRequests,
			ResetAt:     end,
			LimitType:   rl.LimitType,
		}, nil
	}

	if rl.IsExceeded {
		return &Decision{
			Allowed:      false,
			CurrentUsage: rl.CurrentUsage,
			MaxRequests:  rl.MaxRequests,
			Remaining:    0,
			ResetAt:      rl.WindowEnd,
			LimitType:    rl.LimitType,
		}, nil
	}

	ok, err := l.repo.Increment(rl.ID)
	if err != nil {
		return nil, err
	}
	if !ok {
		// A concurrent check took the last slot between our read and the
		// guarded update.
		return &Decision{
			Allowed:      false,
			CurrentUsage: rl.MaxRequests,
			MaxRequests:  rl.MaxRequests,
			Remaining:    0,
			ResetAt:      rl.WindowEnd,
			LimitType:    rl.LimitType,
		}, nil
	}

	// The request that crosses the threshold still succeeds; only later ones
	// are rejected until the window resets.
	usage := rl.CurrentUsage + 1
	remaining := rl.MaxRequests - usage
	if remaining < 0 {
		remaining = 0
	}

	return &Decision{
		Allowed:      true,
		CurrentUsage: usage,
		MaxRequests:  rl.MaxRequests,
		Remaining:    remaining,
		ResetAt:      rl.WindowEnd,
		LimitType:    rl.LimitType,
	}, nil
}
