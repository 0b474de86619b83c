package repositories

import (
	"database/sql"
	"encoding/json"
	"time"

	"relay/internal/platform/models"
)

type TenantRepository struct {
	db *sql.DB
}

func NewTenantRepository(db *sql.DB) *TenantRepository {
	return &TenantRepository{db: db}
}

func (r *TenantRepository) BeginTx() (*sql.Tx, error) {
	return r.db.Begin()
}

func (r *TenantRepository) Create(t *models.Tenant) error {
	brandingJSON, err := json.Marshal(t.Branding)
	if err != nil {
		return err
	}
	settingsJSON, err := json.Marshal(t.Settings)
	if err != nil {
		return err
	}
	securityJSON, err := json.Marshal(t.Security)
	if err != nil {
		return err
	}

	_, err = r.db.Exec(`
		INSERT INTO tenants (id, slug, name, domain, subdomain, plan_tier, isolation_strategy, db_file_path,
			branding, settings, security, max_users, max_storage_mb, max_orders, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, t.ID, t.Slug, t.Name, t.Domain, t.Subdomain, t.PlanTier, t.IsolationStrategy, t.DBFilePath,
		string(brandingJSON), string(settingsJSON), string(securityJSON),
		t.MaxUsers, t.MaxStorageMB, t.MaxOrders, t.Status, t.CreatedAt, t.UpdatedAt)
	return err
}

func (r *TenantRepository) GetByID(id string) (*models.Tenant, error) {
	return r.get(`WHERE id = ?`, id)
}

func (r *TenantRepository) GetBySlug(slug string) (*models.Tenant, error) {
	return r.get(`WHERE slug = ?`, slug)
}

func (r *TenantRepository) get(where string, arg interface{}) (*models.Tenant, error) {
	t := &models.Tenant{}
	var branding, settings, security string

	err := r.db.QueryRow(`
		SELECT id, slug, name, domain, subdomain, plan_tier, isolation_strategy, db_file_path,
			branding, settings, security, max_users, max_storage_mb, max_orders, status, created_at, updated_at, deleted_at
		FROM tenants `+where,
		arg).Scan(&t.ID, &t.Slug, &t.Name, &t.Domain, &t.Subdomain, &t.PlanTier, &t.IsolationStrategy, &t.DBFilePath,
		&branding, &settings, &security, &t.MaxUsers, &t.MaxStorageMB, &t.MaxOrders, &t.Status, &t.CreatedAt, &t.UpdatedAt, &t.DeletedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}

	json.Unmarshal([]byte(branding), &t.Branding)
	json.Unmarshal([]byte(settings), &t.Settings)
	json.Unmarshal([]byte(security), &t.Security)

	return t, nil
}

func (r *TenantRepository) Update(t *models.Tenant) error {
	brandingJSON, err := json.Marshal(t.Branding)
	if err != nil {
		return err
	}
	settingsJSON, err := json.Marshal(t.Settings)
	if err != nil {
		return err
	}
	securityJSON, err := json.Marshal(t.Security)
	if err != nil {
		return err
	}
	t.UpdatedAt = time.Now().Unix()

	_, err = r.db.Exec(`
		UPDATE tenants
		SET name = ?, domain = ?, subdomain = ?, plan_tier = ?, branding = ?, settings = ?, security = ?,
			max_users = ?, max_storage_mb = ?, max_orders = ?, status = ?, updated_at = ?
		WHERE id = ?
	`, t.Name, t.Domain, t.Subdomain, t.PlanTier, string(brandingJSON), string(settingsJSON), string(securityJSON),
		t.MaxUsers, t.MaxStorageMB, t.MaxOrders, t.Status, t.UpdatedAt, t.ID)
	return err
}

// ArchiveTx copies the tenant row into tenants_archive. The delete itself is
// a separate statement; callers sequence archive steps before deleting.
func (r *TenantRepository) ArchiveTx(tx *sql.Tx, id string) error {
	_, err := tx.Exec(`
		INSERT INTO tenants_archive
		SELECT *, ? AS archived_at FROM tenants WHERE id = ?
	`, time.Now().Unix(), id)
	return err
}

func (r *TenantRepository) DeleteTx(tx *sql.Tx, id string) error {
	if _, err := tx.Exec(`DELETE FROM tenant_usage WHERE tenant_id = ?`, id); err != nil {
		return err
	}
	if _, err := tx.Exec(`DELETE FROM tenant_isolation_policies WHERE tenant_id = ?`, id); err != nil {
		return err
	}
	_, err := tx.Exec(`DELETE FROM tenants WHERE id = ?`, id)
	return err
}

// CreatePrefixedTables runs a DDL statement against the global database,
// used by the schema isolation strategy to lay down per-tenant tables.
func (r *TenantRepository) CreatePrefixedTables(ddl string) error {
	_, err := r.db.Exec(ddl)
	return err
}

func (r *TenantRepository) RecordIsolationPolicy(tenantID, strategy, detail string) error {
	_, err := r.db.Exec(`
		INSERT INTO tenant_isolation_policies (tenant_id, strategy, detail, created_at)
		VALUES (?, ?, ?, ?)
	`, tenantID, strategy, detail, time.Now().Unix())
	return err
}

func (r *TenantRepository) GetUsage(tenantID string) (*models.TenantUsage, error) {
	u := &models.TenantUsage{TenantID: tenantID}
	err := r.db.QueryRow(`
		SELECT users, storage_mb, orders, updated_at FROM tenant_usage WHERE tenant_id = ?
	`, tenantID).Scan(&u.Users, &u.StorageMB, &u.Orders, &u.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return u, nil
}

func (r *TenantRepository) InitUsage(tenantID string) error {
	_, err := r.db.Exec(`
		INSERT INTO tenant_usage (tenant_id, users, storage_mb, orders, updated_at)
		VALUES (?, 0, 0, 0, ?)
	`, tenantID, time.Now().Unix())
	return err
}

func (r *TenantRepository) UpdateUsage(tenantID string, users, storageMB, orders int) error {
	_, err := r.db.Exec(`
		UPDATE tenant_usage SET users = ?, storage_mb = ?, orders = ?, updated_at = ? WHERE tenant_id = ?
	`, users, storageMB, orders, time.Now().Unix(), tenantID)
	return err
}
