package policy

import (
	"container/list"
	"sync"
	"time"

	"github.com/upb/governance-ledger/models"
)

// cacheEntry represents a single cache entry with TTL
type cacheEntry struct {
	path       string
	doc        *models.PolicyDocument
	insertedAt time.Time
	element    *list.Element // For LRU tracking
}

// DocumentCache is an in-memory LRU cache with TTL for loaded policy documents,
// keyed by source path. Thread-safe implementation using sync.Mutex.
type DocumentCache struct {
	mu      sync.Mutex
	entries map[string]*cacheEntry
	lruList *list.List
	maxSize int
	ttl     time.Duration
	now     func() time.Time
	hits    uint64
	misses  uint64
}

// NewDocumentCache creates a new DocumentCache with specified max size and TTL
func NewDocumentCache(maxSize int, ttl time.Duration) *DocumentCache {
	if maxSize < 1 {
		maxSize = 1
	}
	return &DocumentCache{
		entries: make(map[string]*cacheEntry),
		lruList: list.New(),
		maxSize: maxSize,
		ttl:     ttl,
		now:     time.Now,
	}
}

// Get returns the cached document for path, or nil when absent or expired
func (c *DocumentCache) Get(path string) *models.PolicyDocument {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, exists := c.entries[path]
	if !exists || c.now().Sub(entry.insertedAt) > c.ttl {
		c.misses++
		if exists {
			c.removeEntry(path)
		}
		return nil
	}

	c.lruList.MoveToFront(entry.element)
	c.hits++
	return entry.doc
}

// Set stores doc for path
func (c *DocumentCache) Set(path string, doc *models.PolicyDocument) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if entry, exists := c.entries[path]; exists {
		entry.doc = doc
		entry.insertedAt = c.now()
		c.lruList.MoveToFront(entry.element)
		return
	}

	if c.lruList.Len() >= c.maxSize {
		c.evictLRU()
	}

	entry := &cacheEntry{path: path, doc: doc, insertedAt: c.now()}
	entry.element = c.lruList.PushFront(path)
	c.entries[path] = entry
}

// Invalidate removes the entry for path so the next load reads the file
func (c *DocumentCache) Invalidate(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.removeEntry(path)
}

// Clear removes all entries from the cache
func (c *DocumentCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]*cacheEntry)
	c.lruList.Init()
}

// CacheStats represents cache statistics
type CacheStats struct {
	Size    int     `json:"size"`
	MaxSize int     `json:"maxSize"`
	Hits    uint64  `json:"hits"`
	Misses  uint64  `json:"misses"`
	HitRate float64 `json:"hitRate"`
}

// Stats returns cache statistics
func (c *DocumentCache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := CacheStats{
		Size:    c.lruList.Len(),
		MaxSize: c.maxSize,
		Hits:    c.hits,
		Misses:  c.misses,
	}
	if total := c.hits + c.misses; total > 0 {
		stats.HitRate = float64(c.hits) / float64(total)
	}
	return stats
}

// removeEntry removes an entry from the cache (must be called with lock held)
func (c *DocumentCache) removeEntry(path string) {
	if entry, exists := c.entries[path]; exists {
		c.lruList.Remove(entry.element)
		delete(c.entries, path)
	}
}

// evictLRU evicts the least recently used entry (must be called with lock held)
func (c *DocumentCache) evictLRU() {
	back := c.lruList.Back()
	if back == nil {
		return
	}
	path := back.Value.(string)
	c.lruList.Remove(back)
	delete(c.entries, path)
}
