package tenant

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"relay/internal/platform/database"
	"relay/internal/platform/models"
	"relay/internal/platform/repositories"
)

// Per-tenant table set created for the schema and database isolation
// strategies. Kept minimal: order records are the only tenant-local data the
// platform itself owns.
const tenantOrdersSchema = `
CREATE TABLE IF NOT EXISTS %sorders (
	id TEXT PRIMARY KEY,
	external_ref TEXT,
	amount REAL NOT NULL,
	currency TEXT NOT NULL,
	status TEXT NOT NULL,
	created_at INTEGER NOT NULL
);`

type ValidationError struct {
	Violations []Violation
}

func (e *ValidationError) Error() string {
	codes := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		codes[i] = v.Code
	}
	return "invalid tenant security policy: " + strings.Join(codes, ", ")
}

type LimitStatus struct {
	Limit    int  `json:"limit"`
	Current  int  `json:"current"`
	Exceeded bool `json:"exceeded"`
}

type LimitsReport struct {
	Users   LimitStatus `json:"users"`
	Storage LimitStatus `json:"storage"`
	Orders  LimitStatus `json:"orders"`
}

// StorageService owns the tenant lifecycle: provisioning with the configured
// isolation strategy, cached reads, updates, and archive-on-delete.
type StorageService struct {
	tenants  *repositories.TenantRepository
	users    *repositories.TenantUserRepository
	pool     *database.TenantDBPool
	cache    *Cache
	basePath string // directory for per-tenant database files
}

func NewStorageService(
	tenants *repositories.TenantRepository,
	users *repositories.TenantUserRepository,
	pool *database.TenantDBPool,
	cache *Cache,
	basePath string,
) *StorageService {
	return &StorageService{
		tenants:  tenants,
		users:    users,
		pool:     pool,
		cache:    cache,
		basePath: basePath,
	}
}

// Create provisions a tenant: validates its security policy, inserts the
// record, applies the isolation strategy, and seeds usage counters.
func (s *StorageService) Create(ctx context.Context, t *models.Tenant) error {
	if violations := ValidateSecurity(t.Security); len(violations) > 0 {
		return &ValidationError{Violations: violations}
	}

	if t.ID == "" {
		t.ID = "tnt_" + uuid.New().String()
	}
	if t.Status == "" {
		t.Status = "active"
	}
	if t.IsolationStrategy == "" {
		t.IsolationStrategy = models.IsolationRow
	}

	now := time.Now().Unix()
	t.CreatedAt = now
	t.UpdatedAt = now

	if t.IsolationStrategy == models.IsolationDatabase {
		t.DBFilePath = filepath.Join(s.basePath, t.ID+".db")
	}

	if err := s.tenants.Create(t); err != nil {
		return err
	}

	if err := s.applyIsolation(ctx, t); err != nil {
		return fmt.Errorf("tenant %s created but isolation setup failed: %w", t.ID, err)
	}

	if err := s.tenants.InitUsage(t.ID); err != nil {
		return fmt.Errorf("tenant %s created but usage init failed: %w", t.ID, err)
	}

	return nil
}

func (s *StorageService) applyIsolation(_ context.Context, t *models.Tenant) error {
	switch t.IsolationStrategy {
	case models.IsolationRow:
		// Shared tables already carry tenant_id columns; record the policy so
		// the strategy is auditable.
		return s.tenants.RecordIsolationPolicy(t.ID, models.IsolationRow, "tenant_id scoping on shared tables")

	case models.IsolationSchema:
		prefix := schemaPrefix(t.Slug)
		if err := s.tenants.CreatePrefixedTables(fmt.Sprintf(tenantOrdersSchema, prefix)); err != nil {
			return err
		}
		return s.tenants.RecordIsolationPolicy(t.ID, models.IsolationSchema, "table prefix "+prefix)

	case models.IsolationDatabase:
		db, err := s.pool.Get(t.ID, t.DBFilePath)
		if err != nil {
			return err
		}
		if _, err := db.Exec(fmt.Sprintf(tenantOrdersSchema, "")); err != nil {
			return err
		}
		return s.tenants.RecordIsolationPolicy(t.ID, models.IsolationDatabase, "database file "+t.DBFilePath)

	default:
		return fmt.Errorf("unknown isolation strategy %q", t.IsolationStrategy)
	}
}

// schemaPrefix derives a safe table prefix from the tenant slug.
func schemaPrefix(slug string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(slug) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteRune('_')
		}
	}
	return b.String() + "_"
}

// Get is cache-first with the configured TTL; misses fall through to the
// store and repopulate.
func (s *StorageService) Get(_ context.Context, id string) (*models.Tenant, error) {
	if t, ok := s.cache.Get(id); ok {
		return t, nil
	}

	t, err := s.tenants.GetByID(id)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, nil
	}

	s.cache.Set(t)
	return t, nil
}

// GetBySlug bypasses the ID-keyed cache for the lookup but still populates
// it for subsequent reads.
func (s *StorageService) GetBySlug(_ context.Context, slug string) (*models.Tenant, error) {
	t, err := s.tenants.GetBySlug(slug)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, nil
	}

	s.cache.Set(t)
	return t, nil
}

// Update is last-writer-wins; the cache entry is invalidated rather than
// rewritten to avoid serving a stale read-modify-write result.
func (s *StorageService) Update(_ context.Context, t *models.Tenant) error {
	if violations := ValidateSecurity(t.Security); len(violations) > 0 {
		return &ValidationError{Violations: violations}
	}

	if err := s.tenants.Update(t); err != nil {
		return err
	}

	s.cache.Delete(t.ID)
	return nil
}

// Delete archives tenant-owned rows into the archive tables and removes the
// live records, all inside one transaction so a partial archive never leaves
// live data half-deleted.
func (s *StorageService) Delete(_ context.Context, id string) error {
	t, err := s.tenants.GetByID(id)
	if err != nil {
		return err
	}
	if t == nil {
		return nil
	}

	tx, err := s.tenants.BeginTx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := s.tenants.ArchiveTx(tx, id); err != nil {
		return fmt.Errorf("archiving tenant: %w", err)
	}
	if err := s.users.ArchiveByTenantTx(tx, id); err != nil {
		return fmt.Errorf("archiving tenant users: %w", err)
	}
	if err := s.users.DeleteByTenantTx(tx, id); err != nil {
		return fmt.Errorf("deleting tenant users: %w", err)
	}
	if err := s.tenants.DeleteTx(tx, id); err != nil {
		return fmt.Errorf("deleting tenant: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	s.cache.Delete(id)
	if t.IsolationStrategy == models.IsolationDatabase {
		s.pool.Evict(id)
		log.Info().Str("tenant_id", id).Str("db_file", t.DBFilePath).Msg("tenant database file retained for archive")
	}
	return nil
}

// CheckLimits compares live usage against the tenant's resource ceilings.
// A resource at its ceiling counts as exceeded: maxUsers=5 with five user
// rows reports the users limit as exceeded.
func (s *StorageService) CheckLimits(ctx context.Context, id string) (*LimitsReport, error) {
	t, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, fmt.Errorf("tenant %s not found", id)
	}

	userCount, err := s.users.CountByTenant(id)
	if err != nil {
		return nil, err
	}

	usage, err := s.tenants.GetUsage(id)
	if err != nil {
		return nil, err
	}
	if usage == nil {
		usage = &models.TenantUsage{TenantID: id}
	}

	return &LimitsReport{
		Users:   limitStatus(t.MaxUsers, userCount),
		Storage: limitStatus(t.MaxStorageMB, usage.StorageMB),
		Orders:  limitStatus(t.MaxOrders, usage.Orders),
	}, nil
}

func limitStatus(limit, current int) LimitStatus {
	return LimitStatus{
		Limit:    limit,
		Current:  current,
		Exceeded: limit > 0 && current >= limit,
	}
}
