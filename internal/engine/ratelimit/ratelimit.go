package ratelimit

import (
	"context"
	"time"
)

// Decision is the outcome of a rate-limit check for one request.
type Decision struct {
	Allowed      bool   `json:"allowed"`
	CurrentUsage int    `json:"current_usage"`
	MaxRequests  int    `json:"max_requests"`
	Remaining    int    `json:"remaining"`
	ResetAt      int64  `json:"reset_at"`
	LimitType    string `json:"limit_type"`
}

// Limiter checks and consumes one request against the (connection, limit_type)
// window. Connections without a configured limit are always allowed.
type Limiter interface {
	Check(ctx context.Context, connectionID, limitType string) (*Decision, error)
}

// WindowDuration maps a limit type to its fixed window length.
func WindowDuration(limitType string) time.Duration {
	switch limitType {
	case "minute":
		return time.Minute
	case "hour":
		return time.Hour
	case "day":
		return 24 * time.Hour
	case "month":
		return 30 * 24 * time.Hour
	default:
		return time.Minute
	}
}

func unlimited(limitType string) *Decision {
	return &Decision{
		Allowed:   true,
		Remaining: -1,
		LimitType: limitType,
	}
}
