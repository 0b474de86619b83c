package models

// Isolation strategies for tenant data.
const (
	IsolationRow      = "row"
	IsolationSchema   = "schema"
	IsolationDatabase = "database"
)

type Tenant struct {
	ID                string         `json:"id"`
	Slug              string         `json:"slug"`
	Name              string         `json:"name"`
	Domain            string         `json:"domain"`
	Subdomain         string         `json:"subdomain,omitempty"`
	PlanTier          string         `json:"plan_tier"`
	IsolationStrategy string         `json:"isolation_strategy"`
	DBFilePath        string         `json:"db_file_path,omitempty"`
	Branding          map[string]any `json:"branding,omitempty"` // JSON blob in DB
	Settings          map[string]any `json:"settings,omitempty"` // JSON blob in DB
	Security          SecurityPolicy `json:"security"`           // JSON blob in DB
	MaxUsers          int            `json:"max_users"`
	MaxStorageMB      int            `json:"max_storage_mb"`
	MaxOrders         int            `json:"max_orders"`
	Status            string         `json:"status"` // active, suspended, archived
	CreatedAt         int64          `json:"created_at"`
	UpdatedAt         int64          `json:"updated_at"`
	DeletedAt         *int64         `json:"deleted_at,omitempty"`
}

type SecurityPolicy struct {
	EncryptionEnabled bool           `json:"encryption_enabled"`
	EncryptionKey     string         `json:"encryption_key,omitempty"`
	SessionTimeout    int            `json:"session_timeout"` // minutes
	PasswordPolicy    PasswordPolicy `json:"password_policy"`
}

type PasswordPolicy struct {
	MinLength        int  `json:"min_length"`
	RequireUppercase bool `json:"require_uppercase"`
	RequireNumbers   bool `json:"require_numbers"`
	RequireSymbols   bool `json:"require_symbols"`
}

type Permission struct {
	Resource string `json:"resource"`
	Action   string `json:"action"`
}

type TenantUser struct {
	ID           string       `json:"id"`
	TenantID     string       `json:"tenant_id"`
	Email        string       `json:"email"`
	PasswordHash string       `json:"-"`
	FullName     string       `json:"full_name"`
	Roles        []string     `json:"roles"`       // JSON array in DB
	Permissions  []Permission `json:"permissions"` // direct grants, JSON array in DB
	Status       string       `json:"status"`
	LastLoginAt  *int64       `json:"last_login_at,omitempty"`
	CreatedAt    int64        `json:"created_at"`
	UpdatedAt    int64        `json:"updated_at"`
	DeletedAt    *int64       `json:"deleted_at,omitempty"`
}

type TenantUsage struct {
	TenantID  string `json:"tenant_id"`
	Users     int    `json:"users"`
	StorageMB int    `json:"storage_mb"`
	Orders    int    `json:"orders"`
	UpdatedAt int64  `json:"updated_at"`
}
