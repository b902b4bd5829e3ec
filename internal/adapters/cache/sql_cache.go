package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mikey/phishguard/internal/core"
	"go.uber.org/zap"
)

// Timestamps are stored as unix seconds so both SQL dialects share every
// query except the upsert.
const (
	selectEntry = `
		SELECT malicious, suspicious, harmless, last_seen, expires_at
		FROM reputation_cache
		WHERE cache_key = ? AND expires_at > ?`
	deleteEntry   = `DELETE FROM reputation_cache WHERE cache_key = ?`
	deleteExpired = `DELETE FROM reputation_cache WHERE expires_at <= ?`
	trimToLimit   = `
		DELETE FROM reputation_cache
		WHERE cache_key NOT IN (
			SELECT cache_key FROM (
				SELECT cache_key FROM reputation_cache ORDER BY last_seen DESC LIMIT ?
			) AS keep
		)`
)

// sqlCache implements core.CacheRepository over database/sql
type sqlCache struct {
	db       *sql.DB
	dialect  string
	upsert   string
	capacity int
	logger   *zap.Logger
	janitor  *janitor
}

func newSQLCache(db *sql.DB, dialect, upsert string, capacity int, cleanupFreq time.Duration, logger *zap.Logger) *sqlCache {
	c := &sqlCache{
		db:       db,
		dialect:  dialect,
		upsert:   upsert,
		capacity: capacity,
		logger:   logger,
	}
	c.janitor = startJanitor(cleanupFreq, c.Cleanup, logger)
	return c
}

// Get retrieves a live cache entry
func (c *sqlCache) Get(ctx context.Context, key string) (*core.CacheEntry, error) {
	var counts core.ReputationCounts
	var lastSeen, expiresAt int64

	err := c.db.QueryRowContext(ctx, selectEntry, key, time.Now().Unix()).
		Scan(&counts.Malicious, &counts.Suspicious, &counts.Harmless, &lastSeen, &expiresAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to query %s cache: %w", c.dialect, err)
	}

	return &core.CacheEntry{
		Key:       key,
		Counts:    counts,
		LastSeen:  time.Unix(lastSeen, 0),
		ExpiresAt: time.Unix(expiresAt, 0),
	}, nil
}

// Set stores a cache entry
func (c *sqlCache) Set(ctx context.Context, entry *core.CacheEntry) error {
	_, err := c.db.ExecContext(ctx, c.upsert,
		entry.Key,
		entry.Counts.Malicious,
		entry.Counts.Suspicious,
		entry.Counts.Harmless,
		entry.LastSeen.Unix(),
		entry.ExpiresAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to store %s cache entry: %w", c.dialect, err)
	}
	return nil
}

// Delete removes a cache entry
func (c *sqlCache) Delete(ctx context.Context, key string) error {
	if _, err := c.db.ExecContext(ctx, deleteEntry, key); err != nil {
		return fmt.Errorf("failed to delete cache entry: %w", err)
	}
	return nil
}

// Cleanup removes expired entries, then the least recently seen ones above capacity
func (c *sqlCache) Cleanup(ctx context.Context) error {
	result, err := c.db.ExecContext(ctx, deleteExpired, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to clean up expired entries: %w", err)
	}
	expired, _ := result.RowsAffected()

	var trimmed int64
	if c.capacity > 0 {
		result, err = c.db.ExecContext(ctx, trimToLimit, c.capacity)
		if err != nil {
			return fmt.Errorf("failed to trim cache: %w", err)
		}
		trimmed, _ = result.RowsAffected()
	}

	c.logger.Debug("Cleaned up cache entries",
		zap.String("backend", c.dialect),
		zap.Int64("expired_count", expired),
		zap.Int64("trimmed_count", trimmed))
	return nil
}

// Stop stops the background cleanup task and closes the database connection
func (c *sqlCache) Stop() {
	c.janitor.stop()
	if err := c.db.Close(); err != nil {
		c.logger.Error("Failed to close cache database", zap.String("backend", c.dialect), zap.Error(err))
	}
}

func createSchema(ctx context.Context, db *sql.DB, statements ...string) error {
	for _, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
