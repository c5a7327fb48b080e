// Package cache provides the classification verdict cache behind the
// CacheRepository interface. Entries are keyed "<model>:<messageId>" and
// never expire.
package cache

import (
	"context"
	"sync"

	"github.com/mikey/inbox-triage/internal/core"
	"go.uber.org/zap"
)

// MemoryCache is an in-memory implementation of the CacheRepository
// interface. It lives only for one process run.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]*core.CacheEntry
	logger  *zap.Logger
}

// NewMemoryCache creates a new in-memory cache
func NewMemoryCache(logger *zap.Logger) *MemoryCache {
	return &MemoryCache{
		entries: make(map[string]*core.CacheEntry),
		logger:  logger,
	}
}

// Get retrieves a cached entry, (nil, nil) on a miss
func (c *MemoryCache) Get(ctx context.Context, key string) (*core.CacheEntry, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.entries[key], nil
}

// Set stores a cache entry
func (c *MemoryCache) Set(ctx context.Context, entry *core.CacheEntry) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[entry.Key] = entry
	return nil
}

// Close is a no-op for the in-memory cache
func (c *MemoryCache) Close() error {
	return nil
}
