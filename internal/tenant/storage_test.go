package tenant

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"relay/internal/platform/config"
	"relay/internal/platform/database"
	"relay/internal/platform/models"
	"relay/internal/platform/repositories"
)

const storageTestSchema = `
CREATE TABLE tenants (
	id TEXT PRIMARY KEY,
	slug TEXT NOT NULL UNIQUE,
	name TEXT NOT NULL,
	domain TEXT,
	subdomain TEXT,
	plan_tier TEXT,
	isolation_strategy TEXT NOT NULL,
	db_file_path TEXT,
	branding TEXT,
	settings TEXT,
	security TEXT,
	max_users INTEGER NOT NULL DEFAULT 0,
	max_storage_mb INTEGER NOT NULL DEFAULT 0,
	max_orders INTEGER NOT NULL DEFAULT 0,
	status TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL,
	deleted_at INTEGER
);
CREATE TABLE tenants_archive (
	id TEXT,
	slug TEXT,
	name TEXT,
	domain TEXT,
	subdomain TEXT,
	plan_tier TEXT,
	isolation_strategy TEXT,
	db_file_path TEXT,
	branding TEXT,
	settings TEXT,
	security TEXT,
	max_users INTEGER,
	max_storage_mb INTEGER,
	max_orders INTEGER,
	status TEXT,
	created_at INTEGER,
	updated_at INTEGER,
	deleted_at INTEGER,
	archived_at INTEGER
);
CREATE TABLE tenant_users (
	id TEXT PRIMARY KEY,
	tenant_id TEXT NOT NULL,
	email TEXT NOT NULL,
	password_hash TEXT NOT NULL,
	full_name TEXT,
	roles TEXT,
	permissions TEXT,
	status TEXT NOT NULL,
	last_login_at INTEGER,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL,
	deleted_at INTEGER
);
CREATE TABLE tenant_users_archive (
	id TEXT,
	tenant_id TEXT,
	email TEXT,
	password_hash TEXT,
	full_name TEXT,
	roles TEXT,
	permissions TEXT,
	status TEXT,
	last_login_at INTEGER,
	created_at INTEGER,
	updated_at INTEGER,
	deleted_at INTEGER,
	archived_at INTEGER
);
CREATE TABLE tenant_isolation_policies (
	tenant_id TEXT NOT NULL,
	strategy TEXT NOT NULL,
	detail TEXT,
	created_at INTEGER NOT NULL
);
CREATE TABLE tenant_usage (
	tenant_id TEXT PRIMARY KEY,
	users INTEGER NOT NULL DEFAULT 0,
	storage_mb INTEGER NOT NULL DEFAULT 0,
	orders INTEGER NOT NULL DEFAULT 0,
	updated_at INTEGER NOT NULL
);`

func newStorageFixture(t *testing.T) (*StorageService, *sql.DB) {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if _, err := db.Exec(storageTestSchema); err != nil {
		t.Fatalf("create schema: %v", err)
	}

	pool := database.NewTenantDBPool(config.TenantDBConfig{MaxConnectionsPerTenant: 2})
	t.Cleanup(pool.CloseAll)

	svc := NewStorageService(
		repositories.NewTenantRepository(db),
		repositories.NewTenantUserRepository(db),
		pool,
		NewCache(time.Minute),
		t.TempDir(),
	)
	return svc, db
}

func testTenant(slug string) *models.Tenant {
	return &models.Tenant{
		Slug:     slug,
		Name:     "Test " + slug,
		PlanTier: "starter",
		Security: models.SecurityPolicy{
			SessionTimeout: 60,
			PasswordPolicy: models.PasswordPolicy{MinLength: 10},
		},
		MaxUsers: 5,
	}
}

func TestCreateRejectsInvalidSecurity(t *testing.T) {
	svc, _ := newStorageFixture(t)

	tn := testTenant("badsec")
	tn.Security.SessionTimeout = 2

	err := svc.Create(context.Background(), tn)
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if verr.Violations[0].Code != CodeInvalidSessionTimeout {
		t.Errorf("expected %s, got %s", CodeInvalidSessionTimeout, verr.Violations[0].Code)
	}
}

func TestCreateRowIsolation(t *testing.T) {
	svc, db := newStorageFixture(t)

	tn := testTenant("acme")
	if err := svc.Create(context.Background(), tn); err != nil {
		t.Fatalf("create: %v", err)
	}
	if tn.ID == "" {
		t.Fatal("expected generated tenant id")
	}

	var strategy string
	err := db.QueryRow(`SELECT strategy FROM tenant_isolation_policies WHERE tenant_id = ?`, tn.ID).Scan(&strategy)
	if err != nil {
		t.Fatalf("isolation policy row: %v", err)
	}
	if strategy != models.IsolationRow {
		t.Errorf("expected row strategy, got %s", strategy)
	}

	var users int
	if err := db.QueryRow(`SELECT users FROM tenant_usage WHERE tenant_id = ?`, tn.ID).Scan(&users); err != nil {
		t.Fatalf("usage row: %v", err)
	}
}

func TestCreateSchemaIsolation(t *testing.T) {
	svc, db := newStorageFixture(t)

	tn := testTenant("north-shop")
	tn.IsolationStrategy = models.IsolationSchema
	if err := svc.Create(context.Background(), tn); err != nil {
		t.Fatalf("create: %v", err)
	}

	// Slug characters outside [a-z0-9] become underscores in the prefix.
	if _, err := db.Exec(`INSERT INTO north_shop_orders (id, amount, currency, status, created_at) VALUES ('ord_1', 10, 'USD', 'paid', 1)`); err != nil {
		t.Fatalf("expected prefixed orders table: %v", err)
	}
}

func TestCreateDatabaseIsolation(t *testing.T) {
	svc, _ := newStorageFixture(t)

	tn := testTenant("island")
	tn.IsolationStrategy = models.IsolationDatabase
	if err := svc.Create(context.Background(), tn); err != nil {
		t.Fatalf("create: %v", err)
	}
	if tn.DBFilePath == "" {
		t.Fatal("expected db file path to be assigned")
	}

	db, err := svc.pool.Get(tn.ID, tn.DBFilePath)
	if err != nil {
		t.Fatalf("pool get: %v", err)
	}
	if _, err := db.Exec(`INSERT INTO orders (id, amount, currency, status, created_at) VALUES ('ord_1', 5, 'USD', 'paid', 1)`); err != nil {
		t.Fatalf("expected orders table in tenant db: %v", err)
	}
}

func TestGetUsesCache(t *testing.T) {
	svc, db := newStorageFixture(t)

	tn := testTenant("cached")
	if err := svc.Create(context.Background(), tn); err != nil {
		t.Fatalf("create: %v", err)
	}

	first, err := svc.Get(context.Background(), tn.ID)
	if err != nil || first == nil {
		t.Fatalf("get: %v %v", first, err)
	}

	// Row goes away underneath; the cache still serves the tenant until the
	// entry expires or is invalidated.
	if _, err := db.Exec(`DELETE FROM tenants WHERE id = ?`, tn.ID); err != nil {
		t.Fatalf("delete row: %v", err)
	}
	second, err := svc.Get(context.Background(), tn.ID)
	if err != nil {
		t.Fatalf("cached get: %v", err)
	}
	if second == nil || second.Slug != "cached" {
		t.Error("expected cached tenant after row deletion")
	}
}

func TestUpdateInvalidatesCache(t *testing.T) {
	svc, _ := newStorageFixture(t)

	tn := testTenant("renamer")
	if err := svc.Create(context.Background(), tn); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := svc.Get(context.Background(), tn.ID); err != nil {
		t.Fatalf("warm cache: %v", err)
	}

	tn.Name = "Renamed"
	if err := svc.Update(context.Background(), tn); err != nil {
		t.Fatalf("update: %v", err)
	}

	got, err := svc.Get(context.Background(), tn.ID)
	if err != nil {
		t.Fatalf("get after update: %v", err)
	}
	if got.Name != "Renamed" {
		t.Errorf("expected fresh read after update, got %q", got.Name)
	}
}

func TestDeleteArchivesTenantAndUsers(t *testing.T) {
	svc, db := newStorageFixture(t)

	tn := testTenant("leaver")
	if err := svc.Create(context.Background(), tn); err != nil {
		t.Fatalf("create: %v", err)
	}

	users := repositories.NewTenantUserRepository(db)
	for i := 0; i < 2; i++ {
		u := &models.TenantUser{
			ID:           fmt.Sprintf("usr_%d", i),
			TenantID:     tn.ID,
			Email:        fmt.Sprintf("u%d@leaver.test", i),
			PasswordHash: "x",
			Status:       "active",
			CreatedAt:    time.Now().Unix(),
			UpdatedAt:    time.Now().Unix(),
		}
		if err := users.Create(u); err != nil {
			t.Fatalf("seed user: %v", err)
		}
	}

	if err := svc.Delete(context.Background(), tn.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}

	got, err := svc.Get(context.Background(), tn.ID)
	if err != nil {
		t.Fatalf("get after delete: %v", err)
	}
	if got != nil {
		t.Error("expected tenant gone after delete")
	}

	var archived int
	if err := db.QueryRow(`SELECT COUNT(*) FROM tenants_archive WHERE id = ?`, tn.ID).Scan(&archived); err != nil || archived != 1 {
		t.Errorf("expected 1 archived tenant row, got %d (%v)", archived, err)
	}
	var archivedUsers int
	if err := db.QueryRow(`SELECT COUNT(*) FROM tenant_users_archive WHERE tenant_id = ?`, tn.ID).Scan(&archivedUsers); err != nil || archivedUsers != 2 {
		t.Errorf("expected 2 archived user rows, got %d (%v)", archivedUsers, err)
	}
	var liveUsers int
	if err := db.QueryRow(`SELECT COUNT(*) FROM tenant_users WHERE tenant_id = ?`, tn.ID).Scan(&liveUsers); err != nil || liveUsers != 0 {
		t.Errorf("expected 0 live user rows, got %d (%v)", liveUsers, err)
	}
}

func TestDeleteMissingTenantIsNoop(t *testing.T) {
	svc, _ := newStorageFixture(t)
	if err := svc.Delete(context.Background(), "tnt_missing"); err != nil {
		t.Fatalf("expected nil for missing tenant, got %v", err)
	}
}

func TestCheckLimits(t *testing.T) {
	svc, db := newStorageFixture(t)

	tn := testTenant("limited")
	tn.MaxUsers = 5
	tn.MaxStorageMB = 100
	tn.MaxOrders = 0 // unlimited
	if err := svc.Create(context.Background(), tn); err != nil {
		t.Fatalf("create: %v", err)
	}

	users := repositories.NewTenantUserRepository(db)
	for i := 0; i < 5; i++ {
		u := &models.TenantUser{
			ID:           fmt.Sprintf("usr_lim_%d", i),
			TenantID:     tn.ID,
			Email:        fmt.Sprintf("u%d@limited.test", i),
			PasswordHash: "x",
			Status:       "active",
			CreatedAt:    time.Now().Unix(),
			UpdatedAt:    time.Now().Unix(),
		}
		if err := users.Create(u); err != nil {
			t.Fatalf("seed user: %v", err)
		}
	}

	report, err := svc.CheckLimits(context.Background(), tn.ID)
	if err != nil {
		t.Fatalf("check limits: %v", err)
	}

	// A count at the ceiling is already exceeded.
	if !report.Users.Exceeded {
		t.Error("expected users limit exceeded at 5/5")
	}
	if report.Users.Current != 5 || report.Users.Limit != 5 {
		t.Errorf("unexpected users status: %+v", report.Users)
	}
	if report.Storage.Exceeded {
		t.Error("storage should not be exceeded at 0/100")
	}
	if report.Orders.Exceeded {
		t.Error("zero limit means unlimited, never exceeded")
	}
}
