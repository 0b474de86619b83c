package database

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"relay/internal/platform/config"
)

// TenantDBPool holds one lazily opened database handle per tenant using the
// database-per-tenant isolation strategy.
type TenantDBPool struct {
	pools  map[string]*sql.DB
	mu     sync.RWMutex
	config config.TenantDBConfig
}

func NewTenantDBPool(cfg config.TenantDBConfig) *TenantDBPool {
	return &TenantDBPool{
		pools:  make(map[string]*sql.DB),
		config: cfg,
	}
}

func (p *TenantDBPool) Get(tenantID string, dbPath string) (*sql.DB, error) {
	p.mu.RLock()
	if db, exists := p.pools[tenantID]; exists {
		p.mu.RUnlock()
		return db, nil
	}
	p.mu.RUnlock()

	p.mu.Lock()
	defer p.mu.Unlock()

	// Double-check after acquiring write lock
	if db, exists := p.pools[tenantID]; exists {
		return db, nil
	}

	dsn := fmt.Sprintf("%s?cache=shared&mode=rwc", dbPath)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(p.config.MaxConnectionsPerTenant)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	p.pools[tenantID] = db
	return db, nil
}

// Evict closes and drops the pooled handle for a tenant, if any. Called when
// a tenant is archived so its database file can be removed safely.
func (p *TenantDBPool) Evict(tenantID string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if db, exists := p.pools[tenantID]; exists {
		db.Close()
		delete(p.pools, tenantID)
	}
}

func (p *TenantDBPool) CloseAll() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, db := range p.pools {
		db.Close()
	}
	p.pools = make(map[string]*sql.DB)
}
