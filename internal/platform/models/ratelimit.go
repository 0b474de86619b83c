package models

// Window granularities for rate limits.
const (
	LimitMinute = "minute"
	LimitHour   = "hour"
	LimitDay    = "day"
	LimitMonth  = "month"
)

// One row per (connection, limit_type). is_exceeded is persisted alongside
// the counter: once set, requests are rejected until window_end passes.
type RateLimit struct {
	ID           string `json:"id"`
	ConnectionID string `json:"connection_id"`
	LimitType    string `json:"limit_type"`
	MaxRequests  int    `json:"max_requests"`
	CurrentUsage int    `json:"current_usage"`
	WindowStart  int64  `json:"window_start"`
	WindowEnd    int64  `json:"window_end"`
	IsExceeded   bool   `json:"is_exceeded"`
	UpdatedAt    int64  `json:"updated_at"`
}
