package cache

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"go.uber.org/zap"
)

const mysqlUpsert = `
	INSERT INTO reputation_cache
		(cache_key, malicious, suspicious, harmless, last_seen, expires_at)
	VALUES (?, ?, ?, ?, ?, ?)
	ON DUPLICATE KEY UPDATE
		malicious = VALUES(malicious),
		suspicious = VALUES(suspicious),
		harmless = VALUES(harmless),
		last_seen = VALUES(last_seen),
		expires_at = VALUES(expires_at)`

// MySQLCache is a MySQL implementation of the CacheRepository interface
type MySQLCache struct {
	*sqlCache
}

// NewMySQLCache connects to MySQL and creates the cache table if needed
func NewMySQLCache(dsn string, capacity int, cleanupFreq time.Duration, logger *zap.Logger) (*MySQLCache, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open MySQL database: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to MySQL database: %w", err)
	}

	// Keys are raw URLs, hence the wide binary column
	err = createSchema(ctx, db, `
		CREATE TABLE IF NOT EXISTS reputation_cache (
			cache_key VARBINARY(3072) PRIMARY KEY,
			malicious INT NOT NULL,
			suspicious INT NOT NULL,
			harmless INT NOT NULL,
			last_seen BIGINT NOT NULL,
			expires_at BIGINT NOT NULL,
			INDEX idx_reputation_expires_at (expires_at)
		)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create MySQL schema: %w", err)
	}

	logger.Info("Using MySQL reputation cache")
	return &MySQLCache{newSQLCache(db, "mysql", mysqlUpsert, capacity, cleanupFreq, logger)}, nil
}
