package repositories

import (
	"database/sql"
	"encoding/json"
	"time"

	"relay/internal/platform/models"
)

type TenantUserRepository struct {
	db *sql.DB
}

func NewTenantUserRepository(db *sql.DB) *TenantUserRepository {
	return &TenantUserRepository{db: db}
}

func (r *TenantUserRepository) Create(u *models.TenantUser) error {
	rolesJSON, err := json.Marshal(u.Roles)
	if err != nil {
		return err
	}
	permsJSON, err := json.Marshal(u.Permissions)
	if err != nil {
		return err
	}

	_, err = r.db.Exec(`
		INSERT INTO tenant_users (id, tenant_id, email, password_hash, full_name, roles, permissions, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, u.ID, u.TenantID, u.Email, u.PasswordHash, u.FullName, string(rolesJSON), string(permsJSON), u.Status, u.CreatedAt, u.UpdatedAt)
	return err
}

func (r *TenantUserRepository) GetByID(id string) (*models.TenantUser, error) {
	return r.get(`WHERE id = ?`, id)
}

func (r *TenantUserRepository) GetByEmail(tenantID, email string) (*models.TenantUser, error) {
	u := &models.TenantUser{}
	var roles, perms string

	err := r.db.QueryRow(`
		SELECT id, tenant_id, email, password_hash, full_name, roles, permissions, status, last_login_at, created_at, updated_at, deleted_at
		FROM tenant_users WHERE tenant_id = ? AND email = ?
	`, tenantID, email).Scan(&u.ID, &u.TenantID, &u.Email, &u.PasswordHash, &u.FullName, &roles, &perms, &u.Status, &u.LastLoginAt, &u.CreatedAt, &u.UpdatedAt, &u.DeletedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}

	json.Unmarshal([]byte(roles), &u.Roles)
	json.Unmarshal([]byte(perms), &u.Permissions)

	return u, nil
}

func (r *TenantUserRepository) get(where string, arg interface{}) (*models.TenantUser, error) {
	u := &models.TenantUser{}
	var roles, perms string

	err := r.db.QueryRow(`
		SELECT id, tenant_id, email, password_hash, full_name, roles, permissions, status, last_login_at, created_at, updated_at, deleted_at
		FROM tenant_users `+where,
		arg).Scan(&u.ID, &u.TenantID, &u.Email, &u.PasswordHash, &u.FullName, &roles, &perms, &u.Status, &u.LastLoginAt, &u.CreatedAt, &u.UpdatedAt, &u.DeletedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}

	json.Unmarshal([]byte(roles), &u.Roles)
	json.Unmarshal([]byte(perms), &u.Permissions)

	return u, nil
}

func (r *TenantUserRepository) CountByTenant(tenantID string) (int, error) {
	var count int
	err := r.db.QueryRow(`
		SELECT COUNT(*) FROM tenant_users WHERE tenant_id = ? AND deleted_at IS NULL
	`, tenantID).Scan(&count)
	return count, err
}

func (r *TenantUserRepository) UpdateLastLogin(userID string, timestamp int64) error {
	_, err := r.db.Exec(`UPDATE tenant_users SET last_login_at = ? WHERE id = ?`, timestamp, userID)
	return err
}

func (r *TenantUserRepository) ArchiveByTenantTx(tx *sql.Tx, tenantID string) error {
	_, err := tx.Exec(`
		INSERT INTO tenant_users_archive
		SELECT *, ? AS archived_at FROM tenant_users WHERE tenant_id = ?
	`, time.Now().Unix(), tenantID)
	return err
}

func (r *TenantUserRepository) DeleteByTenantTx(tx *sql.Tx, tenantID string) error {
	_, err := tx.Exec(`DELETE FROM tenant_users WHERE tenant_id = ?`, tenantID)
	return err
}
