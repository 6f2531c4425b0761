// Package dbpool implements the bounded database-handle pool of spec.md
// §4.9: a fixed number of authenticated handles leased to exactly one
// caller at a time through a scoped Lease whose Close always returns the
// handle, mirroring the original connectionRAII's acquire-on-construction /
// release-on-destruction discipline (Go has no destructors, so Close is
// called via defer at every call site instead).
//
// Grounded on original_source's sql_connection_pool.{h,cpp}: same
// acquire-blocks-on-semaphore, lock-pop-unlock shape, re-targeted from a
// hand-rolled MYSQL* free-list onto database/sql + go-sql-driver/mysql, so
// the connection pool itself is database/sql's (SetMaxOpenConns(max)) and
// this package reuses it rather than re-implementing a free-list beside it.
package dbpool

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/go-sql-driver/mysql"
)

// Config mirrors the constructor parameters of spec.md §4.9: (url, user,
// password, database, port, max).
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	Max      int
}

// Pool is a bounded set of leasable database handles.
type Pool struct {
	db  *sql.DB
	max int
	sem chan struct{}
}

// Open establishes the pool: it dials the database, sizes database/sql's
// internal pool to max, and primes the counting semaphore with max slots so
// Acquire blocks exactly as spec.md's reserve semaphore does.
func Open(cfg Config) (*Pool, error) {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.Database)

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("dbpool: open: %w", err)
	}
	db.SetMaxOpenConns(cfg.Max)
	db.SetMaxIdleConns(cfg.Max)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("dbpool: ping: %w", err)
	}

	return &Pool{
		db:  db,
		max: cfg.Max,
		sem: make(chan struct{}, cfg.Max),
	}, nil
}

// Lease is a scoped borrow of one database handle. Close must be called
// exactly once, normally via defer, to return the handle and free the
// semaphore slot — callers never hold a raw *sql.Conn outside a Lease.
type Lease struct {
	pool *Pool
	conn *sql.Conn
}

// Acquire blocks until a handle is available, matching spec.md's reserve
// semaphore wait.
func (p *Pool) Acquire(ctx context.Context) (*Lease, error) {
	select {
	case p.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	conn, err := p.db.Conn(ctx)
	if err != nil {
		<-p.sem
		return nil, fmt.Errorf("dbpool: acquire: %w", err)
	}
	return &Lease{pool: p, conn: conn}, nil
}

// Conn exposes the underlying handle for queries.
func (l *Lease) Conn() *sql.Conn { return l.conn }

// Close returns the handle to the pool and releases the semaphore slot.
func (l *Lease) Close() error {
	err := l.conn.Close()
	<-l.pool.sem
	return err
}

// InUse reports the number of currently leased handles (Max - free), used
// to verify the pool invariant free + in_use == max in tests and metrics.
func (p *Pool) InUse() int { return len(p.sem) }

// Max returns the pool capacity.
func (p *Pool) Max() int { return p.max }

// Close shuts the pool and its underlying handles down. Matches
// spec.md's DestroyPool.
func (p *Pool) Close() error {
	return p.db.Close()
}
