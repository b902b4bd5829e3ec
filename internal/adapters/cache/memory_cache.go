package cache

import (
	"context"
	"errors"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/mikey/phishguard/internal/core"
	"go.uber.org/zap"
)

var (
	// ErrNotFound is returned when a cache entry is not found
	ErrNotFound = errors.New("cache entry not found")
	// ErrExpired is returned when a cache entry has expired
	ErrExpired = errors.New("cache entry expired")
)

// MemoryCache is a bounded in-process cache. The least recently used entry is
// evicted once capacity is reached.
type MemoryCache struct {
	lru     *expirable.LRU[string, core.CacheEntry]
	logger  *zap.Logger
	janitor *janitor
}

// NewMemoryCache creates a new in-memory cache holding at most capacity entries
func NewMemoryCache(capacity int, ttl time.Duration, cleanupFreq time.Duration, logger *zap.Logger) *MemoryCache {
	if capacity <= 0 {
		capacity = 1000
	}
	c := &MemoryCache{
		lru:    expirable.NewLRU[string, core.CacheEntry](capacity, nil, ttl),
		logger: logger,
	}
	c.janitor = startJanitor(cleanupFreq, c.Cleanup, logger)
	return c
}

// Get retrieves a live cache entry
func (c *MemoryCache) Get(_ context.Context, key string) (*core.CacheEntry, error) {
	entry, ok := c.lru.Get(key)
	if !ok {
		return nil, ErrNotFound
	}
	if time.Now().After(entry.ExpiresAt) {
		c.lru.Remove(key)
		return nil, ErrExpired
	}
	return &entry, nil
}

// Set stores a cache entry
func (c *MemoryCache) Set(_ context.Context, entry *core.CacheEntry) error {
	if evicted := c.lru.Add(entry.Key, *entry); evicted {
		c.logger.Debug("Evicted least recently used cache entry")
	}
	return nil
}

// Delete removes a cache entry
func (c *MemoryCache) Delete(_ context.Context, key string) error {
	c.lru.Remove(key)
	return nil
}

// Cleanup removes entries whose own expiry has passed
func (c *MemoryCache) Cleanup(_ context.Context) error {
	now := time.Now()
	expired := 0
	for _, key := range c.lru.Keys() {
		if entry, ok := c.lru.Peek(key); ok && now.After(entry.ExpiresAt) {
			c.lru.Remove(key)
			expired++
		}
	}
	c.logger.Debug("Cleaned up expired cache entries", zap.Int("expired_count", expired))
	return nil
}

// Len returns the number of cached entries
func (c *MemoryCache) Len() int {
	return c.lru.Len()
}

// Stop stops the background cleanup task and drops every entry
func (c *MemoryCache) Stop() {
	c.janitor.stop()
	c.lru.Purge()
}
