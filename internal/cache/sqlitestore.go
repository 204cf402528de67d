package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Compile-time assertion: *SQLiteStore satisfies Store.
var _ Store = (*SQLiteStore)(nil)

// SQLiteStore implements Store on a SQLite database file.
type SQLiteStore struct {
	db  *sql.DB
	now Clock
}

// NewSQLiteStore opens (creating if needed) the cache database at path.
func NewSQLiteStore(path string, now Clock) (*SQLiteStore, error) {
	if now == nil {
		now = time.Now
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite allows one writer; a single connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db, now: now}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) initialize() error {
	const schema = `
	CREATE TABLE IF NOT EXISTS analysis_cache (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		expires_at INTEGER NOT NULL DEFAULT 0,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_analysis_cache_expires ON analysis_cache(expires_at);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}
	return nil
}

// Get returns the live value for key, deleting it if it has expired.
func (s *SQLiteStore) Get(ctx context.Context, key string) (json.RawMessage, bool, error) {
	var (
		value   string
		expires int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT value, expires_at FROM analysis_cache WHERE key = ?`, key,
	).Scan(&value, &expires)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("cache get %q: %w", key, err)
	}

	if expires != 0 && s.now().UnixNano() >= expires {
		if _, err := s.db.ExecContext(ctx, `DELETE FROM analysis_cache WHERE key = ?`, key); err != nil {
			return nil, false, fmt.Errorf("cache evict %q: %w", key, err)
		}
		return nil, false, nil
	}
	return json.RawMessage(value), true, nil
}

// Set upserts value under key.
func (s *SQLiteStore) Set(ctx context.Context, key string, value json.RawMessage, ttl time.Duration) error {
	now := s.now()
	var expires int64
	if ttl > 0 {
		expires = now.Add(ttl).UnixNano()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO analysis_cache (key, value, expires_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			expires_at = excluded.expires_at,
			updated_at = excluded.updated_at`,
		key, string(value), expires, now.UnixNano())
	if err != nil {
		return fmt.Errorf("cache set %q: %w", key, err)
	}
	return nil
}

// Purge deletes every expired row.
func (s *SQLiteStore) Purge(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM analysis_cache WHERE expires_at != 0 AND expires_at <= ?`, s.now().UnixNano())
	if err != nil {
		return 0, fmt.Errorf("cache purge: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("cache purge: %w", err)
	}
	return int(n), nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
