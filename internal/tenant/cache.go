package tenant

import (
	"sync"
	"time"

	"relay/internal/platform/models"
)

type cachedTenant struct {
	tenant   *models.Tenant
	cachedAt time.Time
}

// Cache is a TTL read cache over tenant records. Writes invalidate; expiry is
// checked lazily on read.
type Cache struct {
	store sync.Map // map[tenantID]*cachedTenant
	ttl   time.Duration
}

func NewCache(ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Cache{ttl: ttl}
}

func (c *Cache) Get(id string) (*models.Tenant, bool) {
	val, ok := c.store.Load(id)
	if !ok {
		return nil, false
	}

	entry := val.(*cachedTenant)
	if time.Since(entry.cachedAt) > c.ttl {
		c.store.Delete(id)
		return nil, false
	}

	return entry.tenant, true
}

func (c *Cache) Set(t *models.Tenant) {
	c.store.Store(t.ID, &cachedTenant{tenant: t, cachedAt: time.Now()})
}

func (c *Cache) Delete(id string) {
	c.store.Delete(id)
}
