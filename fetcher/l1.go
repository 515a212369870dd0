// Package fetcher retrieves raw subscription payloads for each active
// source, coalescing concurrent requests for the same URL and caching
// results across three tiers: an in-process LRU+TTL cache (L1), a shared
// Redis cache (L2), and a local persistent store sharded by rendezvous
// hashing (L3). A per-host circuit breaker and token-bucket rate limiter
// protect origin servers from retry storms.
//
// L1 is grounded on the teacher's cache-manager/cache.go LRU+TTL
// implementation, generalized here to store tagged byte payloads
// (models.CacheEntry) instead of untyped interface{} values, so that a
// source-removal event can invalidate every cache entry tagged with that
// source's URL in O(n) without needing pattern matching on keys.
package fetcher

import (
	"container/list"
	"sync"
	"time"

	"github.com/vpnmerger/aggregator/pkg/models"
)

type lruNode struct {
	key     string
	entry   *models.CacheEntry
	element *list.Element
}

// L1Cache is a thread-safe in-memory cache with LRU eviction, TTL
// expiration, and tag-based bulk invalidation.
type L1Cache struct {
	mu         sync.RWMutex
	cache      map[string]*lruNode
	lruList    *list.List
	maxEntries int
}

// NewL1Cache creates an L1 cache bounded to maxEntries.
func NewL1Cache(maxEntries int) *L1Cache {
	return &L1Cache{
		cache:      make(map[string]*lruNode, maxEntries),
		lruList:    list.New(),
		maxEntries: maxEntries,
	}
}

// Get returns the cached entry for key if present and unexpired.
// Complexity: O(1) average.
func (c *L1Cache) Get(key string) (*models.CacheEntry, bool) {
	c.mu.RLock()
	node, exists := c.cache[key]
	c.mu.RUnlock()
	if !exists {
		return nil, false
	}

	if time.Now().After(node.entry.ExpiresAt) {
		c.mu.Lock()
		c.deleteUnsafe(key)
		c.mu.Unlock()
		return nil, false
	}

	c.mu.Lock()
	c.lruList.MoveToFront(node.element)
	node.entry.LastAccess = time.Now()
	c.mu.Unlock()

	return node.entry, true
}

// Set stores entry under key, evicting the LRU entry if at capacity.
func (c *L1Cache) Set(key string, entry *models.CacheEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if node, exists := c.cache[key]; exists {
		node.entry = entry
		c.lruList.MoveToFront(node.element)
		return
	}

	if c.lruList.Len() >= c.maxEntries {
		c.evictLRUUnsafe()
	}

	node := &lruNode{key: key, entry: entry}
	node.element = c.lruList.PushFront(node)
	c.cache[key] = node
}

// Delete removes key, reporting whether it existed.
func (c *L1Cache) Delete(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.deleteUnsafe(key)
}

func (c *L1Cache) deleteUnsafe(key string) bool {
	node, exists := c.cache[key]
	if !exists {
		return false
	}
	c.lruList.Remove(node.element)
	delete(c.cache, key)
	return true
}

// DeleteByTag removes every entry tagged with tag, returning the count
// removed. Used when a source is removed from the registry: every fetch
// result cached under that source's URL tag is invalidated at once.
func (c *L1Cache) DeleteByTag(tag string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	var toDelete []string
	for key, node := range c.cache {
		if node.entry.HasTag(tag) {
			toDelete = append(toDelete, key)
		}
	}
	count := 0
	for _, key := range toDelete {
		if c.deleteUnsafe(key) {
			count++
		}
	}
	return count
}

// CleanupExpired removes all expired entries, returning the count removed.
func (c *L1Cache) CleanupExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	var expired []string
	for key, node := range c.cache {
		if now.After(node.entry.ExpiresAt) {
			expired = append(expired, key)
		}
	}
	count := 0
	for _, key := range expired {
		if c.deleteUnsafe(key) {
			count++
		}
	}
	return count
}

func (c *L1Cache) evictLRUUnsafe() {
	oldest := c.lruList.Back()
	if oldest == nil {
		return
	}
	node := oldest.Value.(*lruNode)
	c.lruList.Remove(oldest)
	delete(c.cache, node.key)
}

// Size returns the current entry count.
func (c *L1Cache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.cache)
}

// Clear removes every entry.
func (c *L1Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache = make(map[string]*lruNode, c.maxEntries)
	c.lruList = list.New()
}
