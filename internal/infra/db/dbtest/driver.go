// Package dbtest provides a scriptable database/sql connector for repository
// tests that need an unreachable, stalled or recovering database.
package dbtest

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"net"
	"sync"
)

// Mode controls how the next connection attempt behaves.
type Mode int

const (
	// Up accepts connections and answers every Exec with one affected row.
	Up Mode = iota
	// Down refuses connections like a closed port.
	Down
	// Stalled blocks until the caller's context ends.
	Stalled
)

// Connector records statements and lets a test switch the database state.
type Connector struct {
	mu    sync.Mutex
	mode  Mode
	execs []string
}

// Open returns a pool over a new connector in mode m.
func Open(m Mode) (*sql.DB, *Connector) {
	c := &Connector{mode: m}
	db := sql.OpenDB(c)
	db.SetMaxIdleConns(0)
	return db, c
}

func (c *Connector) Set(m Mode) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mode = m
}

// Execs returns the statements executed so far.
func (c *Connector) Execs() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.execs...)
}

func (c *Connector) Connect(ctx context.Context) (driver.Conn, error) {
	c.mu.Lock()
	m := c.mode
	c.mu.Unlock()
	switch m {
	case Down:
		return nil, &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}
	case Stalled:
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return &conn{c: c}, nil
}

func (c *Connector) Driver() driver.Driver { return drv{} }

type drv struct{}

func (drv) Open(string) (driver.Conn, error) {
	return nil, errors.New("dbtest: use sql.OpenDB")
}

type conn struct {
	c *Connector
}

func (cn *conn) Prepare(string) (driver.Stmt, error) {
	return nil, errors.New("dbtest: prepared statements not supported")
}

func (cn *conn) Close() error { return nil }

func (cn *conn) Begin() (driver.Tx, error) {
	return nil, errors.New("dbtest: transactions not supported")
}

func (cn *conn) ExecContext(_ context.Context, query string, _ []driver.NamedValue) (driver.Result, error) {
	cn.c.mu.Lock()
	defer cn.c.mu.Unlock()
	cn.c.execs = append(cn.c.execs, query)
	return driver.RowsAffected(1), nil
}
