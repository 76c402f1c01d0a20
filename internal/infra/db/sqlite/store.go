// Package sqlite is the durable local key-value store used when the remote
// document store cannot take a write.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/bryanwahyu/sentiment-api/internal/domain/analysis"
)

// SchemaVersion is the latest local schema version.
const SchemaVersion = 2

// Open opens (and creates) the database file at path with WAL enabled.
func Open(path string) (*sql.DB, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("failed to create local store directory: %w", err)
		}
	}
	dsn := path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open local store: %w", err)
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}
	_ = os.Chmod(path, 0600)
	return db, nil
}

func migrate(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version;").Scan(&version); err != nil {
		return fmt.Errorf("failed to get user_version: %w", err)
	}
	if version < 1 {
		schema := `
		CREATE TABLE IF NOT EXISTS kv (
		  key        TEXT PRIMARY KEY,
		  value      BLOB NOT NULL,
		  updated_at INTEGER NOT NULL
		);`
		if _, err := db.Exec(schema); err != nil {
			return fmt.Errorf("migration 1 failed: %w", err)
		}
		if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version=%d", 1)); err != nil {
			return fmt.Errorf("failed to set user_version: %w", err)
		}
	}
	if version < 2 {
		schema := `
		CREATE TABLE IF NOT EXISTS leases (
		  name       TEXT PRIMARY KEY,
		  holder     TEXT NOT NULL,
		  expires_at INTEGER NOT NULL
		);`
		if _, err := db.Exec(schema); err != nil {
			return fmt.Errorf("migration 2 failed: %w", err)
		}
		if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version=%d", 2)); err != nil {
			return fmt.Errorf("failed to set user_version: %w", err)
		}
	}
	return nil
}

// Store implements analysis.LocalStore. Writes are last-writer-wins.
type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	var v []byte
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, analysis.ErrNotFound
	}
	return v, err
}

func (s *Store) Put(ctx context.Context, key string, value []byte) error {
	const q = `
INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at;`
	_, err := s.db.ExecContext(ctx, q, key, value, time.Now().UnixMilli())
	return err
}

func (s *Store) Delete(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, key)
	return err
}

// Keys lists keys starting with prefix in lexical order.
func (s *Store) Keys(ctx context.Context, prefix string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT key FROM kv WHERE substr(key, 1, length(?)) = ? ORDER BY key`, prefix, prefix)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		out = append(out, k)
	}
	return out, rows.Err()
}

// TryLock takes the named lease for ttl. The lease is shared by every
// process using the same database file, and an expired lease can be taken over.
func (s *Store) TryLock(ctx context.Context, name string, ttl time.Duration) (func(context.Context) error, error) {
	holder := uuid.NewString()
	now := time.Now()
	const q = `
INSERT INTO leases (name, holder, expires_at) VALUES (?, ?, ?)
ON CONFLICT(name) DO UPDATE SET holder = excluded.holder, expires_at = excluded.expires_at
WHERE leases.expires_at < ?;`
	res, err := s.db.ExecContext(ctx, q, name, holder, now.Add(ttl).UnixMilli(), now.UnixMilli())
	if err != nil {
		return nil, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, analysis.ErrLocked
	}
	return func(ctx context.Context) error {
		_, err := s.db.ExecContext(ctx, `DELETE FROM leases WHERE name = ? AND holder = ?`, name, holder)
		return err
	}, nil
}

// Check implements middleware.HealthChecker.
func (s *Store) Check(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return s.db.PingContext(ctx)
}
