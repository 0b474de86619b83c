package repositories

import (
	"database/sql"
	"time"

	"relay/internal/platform/models"
)

type RateLimitRepository struct {
	db *sql.DB
}

func NewRateLimitRepository(db *sql.DB) *RateLimitRepository {
	return &RateLimitRepository{db: db}
}

func (r *RateLimitRepository) Upsert(rl *models.RateLimit) error {
	rl.UpdatedAt = time.Now().Unix()
	_, err := r.db.Exec(`
		INSERT INTO rate_limits (id, connection_id, limit_type, max_requests, current_usage, window_start, window_end, is_exceeded, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(connection_id, limit_type) DO UPDATE SET
			max_requests = excluded.max_requests,
			updated_at = excluded.updated_at
	`, rl.ID, rl.ConnectionID, rl.LimitType, rl.MaxRequests, rl.CurrentUsage, rl.WindowStart, rl.WindowEnd, rl.IsExceeded, rl.UpdatedAt)
	return err
}

func (r *RateLimitRepository) Get(connectionID, limitType string) (*models.RateLimit, error) {
	rl := &models.RateLimit{}
	err := r.db.QueryRow(`
		SELECT id, connection_id, limit_type, max_requests, current_usage, window_start, window_end, is_exceeded, updated_at
		FROM rate_limits WHERE connection_id = ? AND limit_type = ?
	`, connectionID, limitType).Scan(&rl.ID, &rl.ConnectionID, &rl.LimitType, &rl.MaxRequests, &rl.CurrentUsage, &rl.WindowStart, &rl.WindowEnd, &rl.IsExceeded, &rl.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return rl, nil
}

// ResetWindow zeroes the counter and moves the window boundaries in one
// statement, so expiry and reset are atomic at the store.
func (r *RateLimitRepository) ResetWindow(id string, windowStart, windowEnd int64) error {
	_, err := r.db.Exec(`
		UPDATE rate_limits
		SET current_usage = 0, is_exceeded = 0, window_start = ?, window_end = ?, updated_at = ?
		WHERE id = ?
	`, windowStart, windowEnd, time.Now().Unix(), id)
	return err
}

// Increment bumps the counter with a guarded update: the WHERE clause refuses
// the write once the ceiling is reached, so concurrent requests cannot race
// the counter past max_requests. Returns false when the guard rejected the
// increment (the window is exceeded).
func (r *RateLimitRepository) Increment(id string) (bool, error) {
	res, err := r.db.Exec(`
		UPDATE rate_limits
		SET current_usage = current_usage + 1,
			is_exceeded = CASE WHEN current_usage + 1 >= max_requests THEN 1 ELSE 0 END,
			updated_at = ?
		WHERE id = ? AND is_exceeded = 0 AND current_usage < max_requests
	`, time.Now().Unix(), id)
	if err != nil {
		return false, err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}
