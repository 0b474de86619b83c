package repositories

import (
	"database/sql"
	"time"

	"relay/internal/platform/models"
)

type ConnectionRepository struct {
	db *sql.DB
}

func NewConnectionRepository(db *sql.DB) *ConnectionRepository {
	return &ConnectionRepository{db: db}
}

func (r *ConnectionRepository) Create(c *models.IntegrationConnection) error {
	_, err := r.db.Exec(`
		INSERT INTO integration_connections (id, tenant_id, provider, name, base_url, status, health_status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, c.ID, c.TenantID, c.Provider, c.Name, c.BaseURL, c.Status, c.HealthStatus, c.CreatedAt, c.UpdatedAt)
	return err
}

func (r *ConnectionRepository) GetByID(id string) (*models.IntegrationConnection, error) {
	c := &models.IntegrationConnection{}
	err := r.db.QueryRow(`
		SELECT id, tenant_id, provider, name, base_url, status, health_status, last_health_check_at, created_at, updated_at
		FROM integration_connections WHERE id = ?
	`, id).Scan(&c.ID, &c.TenantID, &c.Provider, &c.Name, &c.BaseURL, &c.Status, &c.HealthStatus, &c.LastHealthCheckAt, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return c, nil
}

func (r *ConnectionRepository) ListByTenant(tenantID string) ([]*models.IntegrationConnection, error) {
	return r.list(`WHERE tenant_id = ? ORDER BY created_at DESC`, tenantID)
}

func (r *ConnectionRepository) ListActive() ([]*models.IntegrationConnection, error) {
	return r.list(`WHERE status = ?`, models.ConnectionActive)
}

func (r *ConnectionRepository) list(where string, args ...interface{}) ([]*models.IntegrationConnection, error) {
	rows, err := r.db.Query(`
		SELECT id, tenant_id, provider, name, base_url, status, health_status, last_health_check_at, created_at, updated_at
		FROM integration_connections `+where, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var conns []*models.IntegrationConnection
	for rows.Next() {
		c := &models.IntegrationConnection{}
		if err := rows.Scan(&c.ID, &c.TenantID, &c.Provider, &c.Name, &c.BaseURL, &c.Status, &c.HealthStatus, &c.LastHealthCheckAt, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		conns = append(conns, c)
	}
	return conns, rows.Err()
}

func (r *ConnectionRepository) UpdateStatus(id, status string) error {
	_, err := r.db.Exec(`
		UPDATE integration_connections SET status = ?, updated_at = ? WHERE id = ?
	`, status, time.Now().Unix(), id)
	return err
}

// UpdateHealthStatus is last-check-wins: the monitor overwrites the tier on
// every sweep with no smoothing.
func (r *ConnectionRepository) UpdateHealthStatus(id, healthStatus string, checkedAt int64) error {
	_, err := r.db.Exec(`
		UPDATE integration_connections SET health_status = ?, last_health_check_at = ?, updated_at = ? WHERE id = ?
	`, healthStatus, checkedAt, time.Now().Unix(), id)
	return err
}

func (r *ConnectionRepository) Delete(id string) error {
	_, err := r.db.Exec(`DELETE FROM integration_connections WHERE id = ?`, id)
	return err
}

type CredentialRepository struct {
	db *sql.DB
}

func NewCredentialRepository(db *sql.DB) *CredentialRepository {
	return &CredentialRepository{db: db}
}

func (r *CredentialRepository) Create(c *models.APICredential) error {
	_, err := r.db.Exec(`
		INSERT INTO api_credentials (id, connection_id, credential_type, key_header, secret, expires_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, c.ID, c.ConnectionID, c.CredentialType, c.KeyHeader, c.Secret, c.ExpiresAt, c.CreatedAt)
	return err
}

func (r *CredentialRepository) GetByConnection(connectionID string) (*models.APICredential, error) {
	c := &models.APICredential{}
	err := r.db.QueryRow(`
		SELECT id, connection_id, credential_type, key_header, secret, expires_at, created_at
		FROM api_credentials WHERE connection_id = ? ORDER BY created_at DESC LIMIT 1
	`, connectionID).Scan(&c.ID, &c.ConnectionID, &c.CredentialType, &c.KeyHeader, &c.Secret, &c.ExpiresAt, &c.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return c, nil
}
