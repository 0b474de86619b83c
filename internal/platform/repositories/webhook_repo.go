package repositories

import (
	"database/sql"
	"time"

	"relay/internal/platform/models"
)

type WebhookEndpointRepository struct {
	db *sql.DB
}

func NewWebhookEndpointRepository(db *sql.DB) *WebhookEndpointRepository {
	return &WebhookEndpointRepository{db: db}
}

func (r *WebhookEndpointRepository) Create(e *models.WebhookEndpoint) error {
	_, err := r.db.Exec(`
		INSERT INTO webhook_endpoints (id, tenant_id, provider, secret, status, trigger_count, success_count, failure_count, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, 0, 0, 0, ?, ?)
	`, e.ID, e.TenantID, e.Provider, e.Secret, e.Status, e.CreatedAt, e.UpdatedAt)
	return err
}

func (r *WebhookEndpointRepository) GetByID(id string) (*models.WebhookEndpoint, error) {
	e := &models.WebhookEndpoint{}
	err := r.db.QueryRow(`
		SELECT id, tenant_id, provider, secret, status, trigger_count, success_count, failure_count, created_at, updated_at
		FROM webhook_endpoints WHERE id = ?
	`, id).Scan(&e.ID, &e.TenantID, &e.Provider, &e.Secret, &e.Status, &e.TriggerCount, &e.SuccessCount, &e.FailureCount, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return e, nil
}

func (r *WebhookEndpointRepository) ListByTenant(tenantID string) ([]*models.WebhookEndpoint, error) {
	rows, err := r.db.Query(`
		SELECT id, tenant_id, provider, secret, status, trigger_count, success_count, failure_count, created_at, updated_at
		FROM webhook_endpoints WHERE tenant_id = ? ORDER BY created_at DESC
	`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var endpoints []*models.WebhookEndpoint
	for rows.Next() {
		e := &models.WebhookEndpoint{}
		if err := rows.Scan(&e.ID, &e.TenantID, &e.Provider, &e.Secret, &e.Status, &e.TriggerCount, &e.SuccessCount, &e.FailureCount, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, err
		}
		endpoints = append(endpoints, e)
	}
	return endpoints, rows.Err()
}

func (r *WebhookEndpointRepository) IncrementTrigger(id string) error {
	_, err := r.db.Exec(`UPDATE webhook_endpoints SET trigger_count = trigger_count + 1, updated_at = ? WHERE id = ?`, time.Now().Unix(), id)
	return err
}

func (r *WebhookEndpointRepository) IncrementSuccess(id string) error {
	_, err := r.db.Exec(`UPDATE webhook_endpoints SET success_count = success_count + 1, updated_at = ? WHERE id = ?`, time.Now().Unix(), id)
	return err
}

func (r *WebhookEndpointRepository) IncrementFailure(id string) error {
	_, err := r.db.Exec(`UPDATE webhook_endpoints SET failure_count = failure_count + 1, updated_at = ? WHERE id = ?`, time.Now().Unix(), id)
	return err
}

type WebhookEventRepository struct {
	db *sql.DB
}

func NewWebhookEventRepository(db *sql.DB) *WebhookEventRepository {
	return &WebhookEventRepository{db: db}
}

func (r *WebhookEventRepository) Create(e *models.WebhookEvent) error {
	_, err := r.db.Exec(`
		INSERT INTO webhook_events (id, endpoint_id, event_id, event_type, payload, processing_status, error_message, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, e.ID, e.EndpointID, e.EventID, e.EventType, string(e.Payload), e.ProcessingStatus, e.ErrorMessage, e.CreatedAt)
	return err
}

// GetByEventID looks up the idempotency key. (nil, nil) means the event has
// never been seen.
func (r *WebhookEventRepository) GetByEventID(eventID string) (*models.WebhookEvent, error) {
	e := &models.WebhookEvent{}
	var payload string
	err := r.db.QueryRow(`
		SELECT id, endpoint_id, event_id, event_type, payload, processing_status, error_message, created_at, processed_at
		FROM webhook_events WHERE event_id = ?
	`, eventID).Scan(&e.ID, &e.EndpointID, &e.EventID, &e.EventType, &payload, &e.ProcessingStatus, &e.ErrorMessage, &e.CreatedAt, &e.ProcessedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	e.Payload = []byte(payload)
	return e, nil
}

func (r *WebhookEventRepository) UpdateStatus(id, status string) error {
	_, err := r.db.Exec(`UPDATE webhook_events SET processing_status = ? WHERE id = ?`, status, id)
	return err
}

func (r *WebhookEventRepository) MarkProcessed(id, status, errorMessage string) error {
	_, err := r.db.Exec(`
		UPDATE webhook_events SET processing_status = ?, error_message = ?, processed_at = ? WHERE id = ?
	`, status, errorMessage, time.Now().Unix(), id)
	return err
}
