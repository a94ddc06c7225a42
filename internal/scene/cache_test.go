package scene

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/pkh-dashboard/peta/internal/region"
)

func key(view string) CacheKey {
	return CacheKey{RegionsVersion: 1, ValuesVersion: 1, View: view}
}

func TestCache_BasicGetPut(t *testing.T) {
	cache := NewCache(100, time.Hour)

	_, ok := cache.Get(key("a"))
	assert.False(t, ok)

	data := []byte("<svg/>")
	cache.Put(key("a"), data)
	got, ok := cache.Get(key("a"))
	assert.True(t, ok)
	assert.Equal(t, data, got)

	// A different version is a different entry.
	_, ok = cache.Get(CacheKey{RegionsVersion: 2, ValuesVersion: 1, View: "a"})
	assert.False(t, ok)
}

func TestCacheKey_String(t *testing.T) {
	k := CacheKey{RegionsVersion: 3, ValuesVersion: 7, View: "t"}
	assert.Equal(t, "r3/v7/all/-/t", k.String())

	k.Selection = region.Selection{Category: region.CategoryKota, Code: 3273, HasCode: true}
	assert.Equal(t, "r3/v7/kota/3273/t", k.String())

	// The code is ignored when no code is selected.
	k.Selection = region.Selection{Category: region.CategoryAll, Code: 9}
	assert.Equal(t, "r3/v7/all/-/t", k.String())
}

func TestCache_TTLExpiration(t *testing.T) {
	cache := NewCache(100, 50*time.Millisecond)

	cache.Put(key("a"), []byte("x"))
	_, ok := cache.Get(key("a"))
	assert.True(t, ok)

	time.Sleep(60 * time.Millisecond)
	_, ok = cache.Get(key("a"))
	assert.False(t, ok)

	cache.mu.RLock()
	_, exists := cache.entries[key("a").String()]
	cache.mu.RUnlock()
	assert.False(t, exists)
}

func TestCache_LRUEviction_AccessOrder(t *testing.T) {
	cache := NewCache(3, time.Hour)

	cache.Put(key("a"), []byte("1"))
	cache.Put(key("b"), []byte("2"))
	cache.Put(key("c"), []byte("3"))

	// Access "a" so "b" becomes the oldest.
	cache.Get(key("a"))
	cache.Put(key("d"), []byte("4"))

	for view, want := range map[string]bool{"a": true, "b": false, "c": true, "d": true} {
		_, ok := cache.Get(key(view))
		assert.Equal(t, want, ok, view)
	}
}

func TestCache_PurgeAndStats(t *testing.T) {
	cache := NewCache(10, time.Hour)
	cache.Put(key("a"), []byte("1"))
	cache.Get(key("a"))
	cache.Get(key("b"))

	stats := cache.Stats()
	assert.Equal(t, 1, stats.Entries)
	assert.Equal(t, 10, stats.MaxEntries)
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.InDelta(t, 0.5, stats.HitRate, 1e-9)

	cache.Purge()
	assert.Equal(t, 0, cache.Stats().Entries)
	_, ok := cache.Get(key("a"))
	assert.False(t, ok)
}

func TestCache_ConcurrentAccess(t *testing.T) {
	cache := NewCache(50, time.Hour)

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			k := key(fmt.Sprint(i % 60))
			cache.Put(k, []byte("x"))
			cache.Get(k)
		}(i)
	}
	wg.Wait()

	assert.LessOrEqual(t, cache.Stats().Entries, 50)
}
