package cache

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

const sqliteUpsert = `
	INSERT OR REPLACE INTO reputation_cache
		(cache_key, malicious, suspicious, harmless, last_seen, expires_at)
	VALUES (?, ?, ?, ?, ?, ?)`

// SQLiteCache is a SQLite implementation of the CacheRepository interface
type SQLiteCache struct {
	*sqlCache
}

// NewSQLiteCache opens or creates the cache database at dbPath
func NewSQLiteCache(dbPath string, capacity int, cleanupFreq time.Duration, logger *zap.Logger) (*SQLiteCache, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}
	// SQLite serialises writers; one connection avoids "database is locked"
	db.SetMaxOpenConns(1)

	err = createSchema(context.Background(), db,
		`CREATE TABLE IF NOT EXISTS reputation_cache (
			cache_key TEXT PRIMARY KEY,
			malicious INTEGER NOT NULL,
			suspicious INTEGER NOT NULL,
			harmless INTEGER NOT NULL,
			last_seen INTEGER NOT NULL,
			expires_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_reputation_expires_at ON reputation_cache(expires_at)`,
	)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create SQLite schema: %w", err)
	}

	logger.Info("Using SQLite reputation cache", zap.String("path", dbPath))
	return &SQLiteCache{newSQLCache(db, "sqlite", sqliteUpsert, capacity, cleanupFreq, logger)}, nil
}
