package cache

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/mikey/inbox-triage/internal/core"
	"go.uber.org/zap"
)

// SQLiteCache is a SQLite implementation of the CacheRepository interface
type SQLiteCache struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewSQLiteCache creates a new SQLite cache at dbPath
func NewSQLiteCache(dbPath string, logger *zap.Logger) (*SQLiteCache, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS triage_cache (
			cache_key TEXT PRIMARY KEY,
			category TEXT NOT NULL,
			reason TEXT NOT NULL,
			cached_at TEXT NOT NULL
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create table: %w", err)
	}

	return &SQLiteCache{db: db, logger: logger}, nil
}

// Get retrieves a cached entry, (nil, nil) on a miss
func (c *SQLiteCache) Get(ctx context.Context, key string) (*core.CacheEntry, error) {
	var category, reason, cachedAt string
	err := c.db.QueryRowContext(ctx, `
		SELECT category, reason, cached_at FROM triage_cache WHERE cache_key = ?
	`, key).Scan(&category, &reason, &cachedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query cache: %w", err)
	}

	ts, _ := time.Parse(time.RFC3339, cachedAt)
	return &core.CacheEntry{
		Key:      key,
		Category: core.NormalizeCategory(category),
		Reason:   reason,
		CachedAt: ts,
	}, nil
}

// Set stores a cache entry
func (c *SQLiteCache) Set(ctx context.Context, entry *core.CacheEntry) error {
	_, err := c.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO triage_cache (cache_key, category, reason, cached_at)
		VALUES (?, ?, ?, ?)
	`, entry.Key, string(entry.Category), entry.Reason, entry.CachedAt.Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to store cache entry: %w", err)
	}
	return nil
}

// Close closes the database
func (c *SQLiteCache) Close() error {
	return c.db.Close()
}
