package modelconfig

import (
	"sync"
	"time"
)

// DefaultCacheTTL is how long a loaded user document stays fresh.
const DefaultCacheTTL = 5 * time.Minute

type cacheEntry struct {
	doc       *UserDocument
	expiresAt time.Time
}

// CacheStats 内存缓存统计.
type CacheStats struct {
	Entries int    `json:"entries"`
	Hits    uint64 `json:"hits"`
	Misses  uint64 `json:"misses"`
}

// ttlCache 进程内用户文档缓存。条目在 TTL 后过期，读取惰性清除.
type ttlCache struct {
	mu      sync.RWMutex
	entries map[string]cacheEntry
	ttl     time.Duration
	hits    uint64
	misses  uint64
	now     func() time.Time
}

func newTTLCache(ttl time.Duration) *ttlCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &ttlCache{
		entries: make(map[string]cacheEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

func (c *ttlCache) get(userID string) (*UserDocument, bool) {
	c.mu.RLock()
	e, ok := c.entries[userID]
	c.mu.RUnlock()

	if ok && c.now().Before(e.expiresAt) {
		c.mu.Lock()
		c.hits++
		c.mu.Unlock()
		return e.doc, true
	}

	c.mu.Lock()
	if ok {
		delete(c.entries, userID)
	}
	c.misses++
	c.mu.Unlock()
	return nil, false
}

func (c *ttlCache) set(userID string, doc *UserDocument) {
	c.mu.Lock()
	c.entries[userID] = cacheEntry{doc: doc, expiresAt: c.now().Add(c.ttl)}
	c.mu.Unlock()
}

func (c *ttlCache) delete(userID string) {
	c.mu.Lock()
	delete(c.entries, userID)
	c.mu.Unlock()
}

func (c *ttlCache) clear() {
	c.mu.Lock()
	c.entries = make(map[string]cacheEntry)
	c.mu.Unlock()
}

func (c *ttlCache) stats() CacheStats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return CacheStats{Entries: len(c.entries), Hits: c.hits, Misses: c.misses}
}
