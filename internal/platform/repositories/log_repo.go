package repositories

import (
	"database/sql"

	"relay/internal/platform/models"
)

type IntegrationLogRepository struct {
	db *sql.DB
}

func NewIntegrationLogRepository(db *sql.DB) *IntegrationLogRepository {
	return &IntegrationLogRepository{db: db}
}

func (r *IntegrationLogRepository) Insert(l *models.IntegrationLog) error {
	_, err := r.db.Exec(`
		INSERT INTO integration_logs (id, connection_id, direction, method, endpoint, request_body, response_status, response_body, duration_ms, error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, l.ID, l.ConnectionID, l.Direction, l.Method, l.Endpoint, l.RequestBody, l.ResponseStatus, l.ResponseBody, l.DurationMS, l.Error, l.CreatedAt)
	return err
}

func (r *IntegrationLogRepository) ListByConnection(connectionID string, limit int) ([]*models.IntegrationLog, error) {
	rows, err := r.db.Query(`
		SELECT id, connection_id, direction, method, endpoint, request_body, response_status, response_body, duration_ms, error, created_at
		FROM integration_logs WHERE connection_id = ? ORDER BY created_at DESC LIMIT ?
	`, connectionID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []*models.IntegrationLog
	for rows.Next() {
		l := &models.IntegrationLog{}
		if err := rows.Scan(&l.ID, &l.ConnectionID, &l.Direction, &l.Method, &l.Endpoint, &l.RequestBody, &l.ResponseStatus, &l.ResponseBody, &l.DurationMS, &l.Error, &l.CreatedAt); err != nil {
			return nil, err
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}

func (r *IntegrationLogRepository) DeleteOlderThan(cutoff int64) (int64, error) {
	res, err := r.db.Exec(`DELETE FROM integration_logs WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

type HealthRepository struct {
	db *sql.DB
}

func NewHealthRepository(db *sql.DB) *HealthRepository {
	return &HealthRepository{db: db}
}

func (r *HealthRepository) Insert(h *models.HealthCheck) error {
	_, err := r.db.Exec(`
		INSERT INTO integration_health (id, connection_id, status, response_time_ms, status_code, error, checked_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, h.ID, h.ConnectionID, h.Status, h.ResponseTimeMS, h.StatusCode, h.Error, h.CheckedAt)
	return err
}

func (r *HealthRepository) ListByConnection(connectionID string, limit int) ([]*models.HealthCheck, error) {
	rows, err := r.db.Query(`
		SELECT id, connection_id, status, response_time_ms, status_code, error, checked_at
		FROM integration_health WHERE connection_id = ? ORDER BY checked_at DESC LIMIT ?
	`, connectionID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var checks []*models.HealthCheck
	for rows.Next() {
		h := &models.HealthCheck{}
		if err := rows.Scan(&h.ID, &h.ConnectionID, &h.Status, &h.ResponseTimeMS, &h.StatusCode, &h.Error, &h.CheckedAt); err != nil {
			return nil, err
		}
		checks = append(checks, h)
	}
	return checks, rows.Err()
}

func (r *HealthRepository) DeleteOlderThan(cutoff int64) (int64, error) {
	res, err := r.db.Exec(`DELETE FROM integration_health WHERE checked_at < ?`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

type AnalyticsRepository struct {
	db *sql.DB
}

func NewAnalyticsRepository(db *sql.DB) *AnalyticsRepository {
	return &AnalyticsRepository{db: db}
}

func (r *AnalyticsRepository) Insert(e *models.AnalyticsEvent) error {
	_, err := r.db.Exec(`
		INSERT INTO integration_analytics (id, tenant_id, connection_id, event_type, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, e.ID, e.TenantID, e.ConnectionID, e.EventType, e.Metadata, e.CreatedAt)
	return err
}

func (r *AnalyticsRepository) CountByType(tenantID, eventType string, since int64) (int, error) {
	var count int
	err := r.db.QueryRow(`
		SELECT COUNT(*) FROM integration_analytics WHERE tenant_id = ? AND event_type = ? AND created_at >= ?
	`, tenantID, eventType, since).Scan(&count)
	return count, err
}
