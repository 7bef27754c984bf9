package usage

import (
	"context"
	"sync"
	"time"

	"github.com/zamadev/sandbox/internal/model"
)

// DefaultCacheTTL is how long a loaded dataset is reused.
const DefaultCacheTTL = 5 * time.Minute

// Cache holds the most recent dataset returned by a Loader for a fixed TTL.
// A failed load leaves the previous state untouched.
type Cache struct {
	loader Loader
	ttl    time.Duration
	now    func() time.Time

	mu       sync.Mutex
	data     []model.KeyUsage
	loadedAt time.Time
}

// NewCache returns an empty cache over loader. A ttl of zero or less uses
// DefaultCacheTTL.
func NewCache(loader Loader, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &Cache{loader: loader, ttl: ttl, now: time.Now}
}

// GetOrLoad returns the cached dataset while it is younger than the TTL, and
// otherwise loads a fresh one. force skips the cache. hit reports whether the
// cached copy was used.
func (c *Cache) GetOrLoad(ctx context.Context, force bool) (data []model.KeyUsage, hit bool, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if !force && c.data != nil && now.Sub(c.loadedAt) < c.ttl {
		return c.data, true, nil
	}

	fresh, err := c.loader.Load(ctx)
	if err != nil {
		return nil, false, err
	}
	if fresh == nil {
		fresh = []model.KeyUsage{}
	}
	c.data = fresh
	c.loadedAt = now
	return fresh, false, nil
}

// Invalidate drops the cached dataset.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	c.data = nil
	c.loadedAt = time.Time{}
	c.mu.Unlock()
}

// Source names the underlying loader.
func (c *Cache) Source() string { return c.loader.Source() }
