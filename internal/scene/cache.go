package scene

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkh-dashboard/peta/internal/region"
)

// CacheKey identifies one rendered scene document.
type CacheKey struct {
	RegionsVersion int64
	ValuesVersion  int64
	Selection      region.Selection
	// View is the display transform the document was written with.
	View string
}

func (k CacheKey) String() string {
	code := "-"
	if k.Selection.HasCode {
		code = fmt.Sprint(k.Selection.Code)
	}
	category := k.Selection.Category
	if category == "" {
		category = region.CategoryAll
	}
	return fmt.Sprintf("r%d/v%d/%s/%s/%s", k.RegionsVersion, k.ValuesVersion, category, code, k.View)
}

// Cache is a concurrent-safe LRU cache of rendered scene documents with TTL
// expiration.
type Cache struct {
	mu         sync.RWMutex
	entries    map[string]*cacheEntry
	order      []string // LRU order: front=oldest, back=newest
	maxEntries int
	ttl        time.Duration
	hits       atomic.Int64
	misses     atomic.Int64
}

type cacheEntry struct {
	data      []byte
	createdAt time.Time
}

// CacheStats contains cache performance statistics.
type CacheStats struct {
	Entries    int     `json:"entries"`
	MaxEntries int     `json:"max_entries"`
	Hits       int64   `json:"hits"`
	Misses     int64   `json:"misses"`
	HitRate    float64 `json:"hit_rate"`
}

// NewCache creates a Cache with the given capacity and TTL. A non-positive
// capacity is treated as one entry.
func NewCache(maxEntries int, ttl time.Duration) *Cache {
	if maxEntries < 1 {
		maxEntries = 1
	}
	return &Cache{
		entries:    make(map[string]*cacheEntry),
		maxEntries: maxEntries,
		ttl:        ttl,
	}
}

// Get returns a cached document, or nil and false on miss or expiration.
func (c *Cache) Get(key CacheKey) ([]byte, bool) {
	k := key.String()

	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[k]
	if !ok {
		c.misses.Add(1)
		return nil, false
	}

	if c.ttl > 0 && time.Since(entry.createdAt) > c.ttl {
		delete(c.entries, k)
		c.removeFromOrder(k)
		c.misses.Add(1)
		return nil, false
	}

	c.removeFromOrder(k)
	c.order = append(c.order, k)
	c.hits.Add(1)
	return entry.data, true
}

// Put stores a document, evicting the least recently used entry at capacity.
func (c *Cache) Put(key CacheKey, data []byte) {
	k := key.String()

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.entries[k]; ok {
		c.entries[k] = &cacheEntry{data: data, createdAt: time.Now()}
		c.removeFromOrder(k)
		c.order = append(c.order, k)
		return
	}

	for len(c.entries) >= c.maxEntries && len(c.order) > 0 {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.entries, oldest)
	}

	c.entries[k] = &cacheEntry{data: data, createdAt: time.Now()}
	c.order = append(c.order, k)
}

// Purge drops every entry. Hit and miss counters are kept.
func (c *Cache) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*cacheEntry)
	c.order = nil
}

// Stats returns cache performance statistics.
func (c *Cache) Stats() CacheStats {
	c.mu.RLock()
	entries := len(c.entries)
	maxEntries := c.maxEntries
	c.mu.RUnlock()

	hits := c.hits.Load()
	misses := c.misses.Load()

	var hitRate float64
	if total := hits + misses; total > 0 {
		hitRate = float64(hits) / float64(total)
	}

	return CacheStats{
		Entries:    entries,
		MaxEntries: maxEntries,
		Hits:       hits,
		Misses:     misses,
		HitRate:    hitRate,
	}
}

func (c *Cache) removeFromOrder(key string) {
	for i, k := range c.order {
		if k == key {
			c.order = append(c.order[:i], c.order[i+1:]...)
			return
		}
	}
}
