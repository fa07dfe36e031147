package provider

import (
	"context"
	"sync"
	"time"

	"github.com/atlas-desktop/watchtower/pkg/types"
)

// Cache holds recently fetched price series so back-to-back scheduled runs do
// not hammer the quote host.
type Cache interface {
	Get(ctx context.Context, key string) (*types.PriceSeries, bool)
	Set(ctx context.Context, key string, series *types.PriceSeries)
}

// MemoryCache is a TTL map cache, the default tier.
type MemoryCache struct {
	mu      sync.RWMutex
	ttl     time.Duration
	entries map[string]memoryEntry
}

type memoryEntry struct {
	series  *types.PriceSeries
	expires time.Time
}

// NewMemoryCache creates a memory cache with the given entry TTL.
func NewMemoryCache(ttl time.Duration) *MemoryCache {
	return &MemoryCache{
		ttl:     ttl,
		entries: make(map[string]memoryEntry),
	}
}

// Get returns a live cached series.
func (c *MemoryCache) Get(ctx context.Context, key string) (*types.PriceSeries, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok || time.Now().After(e.expires) {
		return nil, false
	}
	return e.series, true
}

// Set stores a series until its TTL lapses.
func (c *MemoryCache) Set(ctx context.Context, key string, series *types.PriceSeries) {
	c.mu.Lock()
	c.entries[key] = memoryEntry{series: series, expires: time.Now().Add(c.ttl)}
	c.mu.Unlock()
}

// nopCache disables caching.
type nopCache struct{}

func (nopCache) Get(ctx context.Context, key string) (*types.PriceSeries, bool) { return nil, false }
func (nopCache) Set(ctx context.Context, key string, series *types.PriceSeries) {}
