package postgres

import (
	"context"
	"database/sql"
	"sync"
	"time"

	_ "github.com/lib/pq"
)

// Open prepares a pool without dialing. Connections are made on first use,
// so a database that is down at startup is picked up once it comes back.
func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)
	return db, nil
}

// Migrate creates the tables the repositories need. It is safe to rerun.
func Migrate(ctx context.Context, db *sql.DB) error {
	stmts := []string{`
CREATE TABLE IF NOT EXISTS sentiments (
  id         VARCHAR(32)  PRIMARY KEY,
  owner_id   VARCHAR(128) NOT NULL,
  favorite   BOOLEAN      NOT NULL DEFAULT FALSE,
  tags       JSONB        NOT NULL DEFAULT '[]',
  document   JSONB        NOT NULL,
  created_at TIMESTAMPTZ  NOT NULL
);`,
		`CREATE INDEX IF NOT EXISTS idx_sentiments_owner_created ON sentiments (owner_id, created_at DESC);`,
		`
CREATE TABLE IF NOT EXISTS sentiment_events (
  id         UUID         PRIMARY KEY,
  name       VARCHAR(64)  NOT NULL,
  owner_id   VARCHAR(128) NOT NULL DEFAULT '',
  props      JSONB        NOT NULL DEFAULT '{}',
  created_at TIMESTAMPTZ  NOT NULL
);`}
	for _, q := range stmts {
		if _, err := db.ExecContext(ctx, q); err != nil {
			return classify(err)
		}
	}
	return nil
}

// schema runs Migrate until it succeeds once.
type schema struct {
	db   *sql.DB
	mu   sync.Mutex
	done bool
}

func (s *schema) ensure(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return nil
	}
	if err := Migrate(ctx, s.db); err != nil {
		return err
	}
	s.done = true
	return nil
}
