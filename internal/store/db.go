package store

import (
	"database/sql"
	"fmt"
	"log/slog"

	_ "modernc.org/sqlite"
)

// DB wraps the database connection and provides store access.
type DB struct {
	conn *sql.DB
}

// New creates a new database connection and runs migrations.
func New(dbPath string) (*DB, error) {
	// Open database with WAL mode for better concurrency
	dsn := fmt.Sprintf("%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", dbPath)

	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db := &DB{conn: conn}

	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	slog.Info("database initialized", "path", dbPath)
	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Conn returns the underlying database connection for direct queries.
func (db *DB) Conn() *sql.DB {
	return db.conn
}

// migrate runs all database migrations.
func (db *DB) migrate() error {
	migrations := []string{
		migrationKV,
		migrationAudioCache,
	}

	for i, m := range migrations {
		if _, err := db.conn.Exec(m); err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}

	return db.runIncrementalMigrations()
}

// runIncrementalMigrations adds columns introduced after a table was first
// created. SQLite has no ADD COLUMN IF NOT EXISTS, so each is checked first.
func (db *DB) runIncrementalMigrations() error {
	columns := []struct {
		table, name, ddl string
	}{
		{"audio_cache", "etag", `ALTER TABLE audio_cache ADD COLUMN etag TEXT DEFAULT ''`},
	}

	for _, c := range columns {
		var count int
		err := db.conn.QueryRow(
			`SELECT COUNT(*) FROM pragma_table_info(?) WHERE name = ?`, c.table, c.name,
		).Scan(&count)
		if err != nil {
			return fmt.Errorf("failed to check %s.%s column: %w", c.table, c.name, err)
		}
		if count > 0 {
			continue
		}

		slog.Info("migrating table: adding column", "table", c.table, "column", c.name)
		if _, err := db.conn.Exec(c.ddl); err != nil {
			return fmt.Errorf("failed to add %s.%s column: %w", c.table, c.name, err)
		}
	}

	return nil
}

// Key/value table for small durable documents such as the session snapshot
const migrationKV = `
CREATE TABLE IF NOT EXISTS kv (
    key TEXT PRIMARY KEY,
    value BLOB NOT NULL,
    updated_at INTEGER NOT NULL
);
`

// Downloaded audio index
const migrationAudioCache = `
CREATE TABLE IF NOT EXISTS audio_cache (
    voice TEXT NOT NULL,
    path TEXT NOT NULL,
    source_url TEXT NOT NULL,
    cache_path TEXT NOT NULL,
    size_bytes INTEGER NOT NULL DEFAULT 0,
    status TEXT NOT NULL DEFAULT 'pending',
    error_text TEXT,
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL,
    PRIMARY KEY (voice, path)
);
CREATE INDEX IF NOT EXISTS idx_audio_cache_status ON audio_cache(status);
`
