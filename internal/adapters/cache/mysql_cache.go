package cache

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/mikey/inbox-triage/internal/core"
	"go.uber.org/zap"
)

// MySQLCache is a MySQL implementation of the CacheRepository interface,
// for sharing one verdict cache across machines
type MySQLCache struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewMySQLCache creates a new MySQL cache from a DSN
func NewMySQLCache(dsn string, logger *zap.Logger) (*MySQLCache, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open MySQL connection: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping MySQL: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS triage_cache (
			cache_key VARCHAR(255) PRIMARY KEY,
			category VARCHAR(32) NOT NULL,
			reason TEXT NOT NULL,
			cached_at VARCHAR(64) NOT NULL
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create table: %w", err)
	}

	return &MySQLCache{db: db, logger: logger}, nil
}

// Get retrieves a cached entry, (nil, nil) on a miss
func (c *MySQLCache) Get(ctx context.Context, key string) (*core.CacheEntry, error) {
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
func (c *MySQLCache) Set(ctx context.Context, entry *core.CacheEntry) error {
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO triage_cache (cache_key, category, reason, cached_at)
		VALUES (?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE category = VALUES(category),
			reason = VALUES(reason), cached_at = VALUES(cached_at)
	`, entry.Key, string(entry.Category), entry.Reason, entry.CachedAt.Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to store cache entry: %w", err)
	}
	return nil
}

// Close closes the database
func (c *MySQLCache) Close() error {
	return c.db.Close()
}
