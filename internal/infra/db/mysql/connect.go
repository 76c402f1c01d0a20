package mysql

import (
	"context"
	"database/sql"
	"sync"
	"time"

	gomysql "github.com/go-sql-driver/mysql"
)

// Open prepares a pool without dialing. Connections are made on first use,
// so a database that is down at startup is picked up once it comes back.
func Open(dsn string) (*sql.DB, error) {
	// created_at di-scan ke time.Time, jadi parseTime wajib
	cfg, err := gomysql.ParseDSN(dsn)
	if err != nil {
		return nil, err
	}
	cfg.ParseTime = true
	db, err := sql.Open("mysql", cfg.FormatDSN())
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
  id         VARCHAR(32)  NOT NULL PRIMARY KEY,
  owner_id   VARCHAR(128) NOT NULL,
  favorite   BOOLEAN      NOT NULL DEFAULT FALSE,
  tags       JSON         NOT NULL,
  document   JSON         NOT NULL,
  created_at DATETIME(3)  NOT NULL,
  INDEX idx_sentiments_owner_created (owner_id, created_at)
);`, `
CREATE TABLE IF NOT EXISTS sentiment_events (
  id         VARCHAR(36)  NOT NULL PRIMARY KEY,
  name       VARCHAR(64)  NOT NULL,
  owner_id   VARCHAR(128) NOT NULL DEFAULT '',
  props      JSON         NOT NULL,
  created_at DATETIME(3)  NOT NULL
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
