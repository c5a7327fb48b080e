package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/mikey/inbox-triage/internal/core"
	"go.uber.org/zap"
)

type fileEntry struct {
	Category string    `json:"category"`
	Reason   string    `json:"reason"`
	CachedAt time.Time `json:"cached_at"`
}

// FileCache is a JSON-file implementation of the CacheRepository
// interface, persisted under the platform user cache directory. Writes
// are buffered and flushed on Close.
type FileCache struct {
	mu      sync.Mutex
	path    string
	entries map[string]fileEntry
	dirty   bool
	logger  *zap.Logger
}

// DefaultFilePath returns the default cache location under the platform
// user cache directory
func DefaultFilePath() (string, error) {
	base, err := os.UserCacheDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve user cache dir: %w", err)
	}
	return filepath.Join(base, "inbox-triage", "classifications.json"), nil
}

// NewFileCache creates a file cache at path, loading existing entries.
// An empty path selects DefaultFilePath.
func NewFileCache(path string, logger *zap.Logger) (*FileCache, error) {
	if path == "" {
		var err error
		path, err = DefaultFilePath()
		if err != nil {
			return nil, err
		}
	}

	c := &FileCache{
		path:    path,
		entries: make(map[string]fileEntry),
		logger:  logger,
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read cache file: %w", err)
		}
		return c, nil
	}
	if err := json.Unmarshal(data, &c.entries); err != nil {
		// A corrupt cache only costs re-classification.
		logger.Warn("Discarding unreadable cache file",
			zap.String("path", path),
			zap.Error(err))
		c.entries = make(map[string]fileEntry)
	}
	logger.Debug("Loaded cache file",
		zap.String("path", path),
		zap.Int("entries", len(c.entries)))
	return c, nil
}

// Get retrieves a cached entry, (nil, nil) on a miss
func (c *FileCache) Get(ctx context.Context, key string) (*core.CacheEntry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return nil, nil
	}
	return &core.CacheEntry{
		Key:      key,
		Category: core.NormalizeCategory(e.Category),
		Reason:   e.Reason,
		CachedAt: e.CachedAt,
	}, nil
}

// Set stores a cache entry; the file is written on Close
func (c *FileCache) Set(ctx context.Context, entry *core.CacheEntry) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[entry.Key] = fileEntry{
		Category: string(entry.Category),
		Reason:   entry.Reason,
		CachedAt: entry.CachedAt,
	}
	c.dirty = true
	return nil
}

// Close flushes pending writes to disk
func (c *FileCache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.dirty {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(c.path), 0o755); err != nil {
		return fmt.Errorf("failed to create cache dir: %w", err)
	}
	data, err := json.Marshal(c.entries)
	if err != nil {
		return fmt.Errorf("failed to marshal cache: %w", err)
	}
	if err := os.WriteFile(c.path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write cache file: %w", err)
	}
	c.dirty = false
	c.logger.Debug("Flushed cache file",
		zap.String("path", c.path),
		zap.Int("entries", len(c.entries)))
	return nil
}
