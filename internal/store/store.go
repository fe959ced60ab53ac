// Package store is the job store adapter: it inserts and updates rows
// in the three queue tables and the dispatch content-history tables, and
// maps rows to response DTOs. Schema migrations are plain .sql files
// applied at startup with thrasher-corp/goose.
package store

import (
	"database/sql"
	"path/filepath"
	"runtime"

	_ "github.com/lib/pq" // postgres driver
	"github.com/pkg/errors"
	"github.com/thrasher-corp/goose"
)

// DB wraps the shared *sql.DB connection pool. Each worker queries
// through this handle; writes to distinct rows never conflict.
type DB struct {
	conn *sql.DB
}

// migrationDir locates the migrations/ directory relative to this source
// file.
func migrationDir() string {
	_, file, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(file), "migrations")
}

// Open opens a connection pool for driver ("postgres" or "sqlite3") at dsn
// and runs pending migrations via goose.
func Open(driver, dsn string) (*DB, error) {
	conn, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, errors.Wrap(err, "opening database connection")
	}
	if err := conn.Ping(); err != nil {
		return nil, errors.Wrap(err, "pinging database")
	}

	if err := goose.Run("up", conn, driver, migrationDir(), ""); err != nil {
		return nil, errors.Wrap(err, "applying migrations")
	}

	return &DB{conn: conn}, nil
}

// OpenConn wraps an already-open connection without running migrations —
// used by tests that create their own schema directly against a throwaway
// sqlite3 database.
func OpenConn(conn *sql.DB) *DB {
	return &DB{conn: conn}
}

// Close closes the underlying pool.
func (d *DB) Close() error { return d.conn.Close() }

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
