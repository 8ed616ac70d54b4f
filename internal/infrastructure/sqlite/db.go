// Package sqlite implements the durable store behind the control plane:
// colonies, crabs, missions, tasks, dependency edges, and runs. A single
// process-wide mutex serializes all access; every mutating request runs
// inside one transaction via InTx so that cascade, activation, and
// scheduling observe a consistent snapshot.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	_ "github.com/ncruces/go-sqlite3/driver" // registers the "sqlite3" driver
	_ "github.com/ncruces/go-sqlite3/embed"  // embeds the sqlite build

	"github.com/crabitat/crabitat/internal/log"
)

// Querier is the subset of *sql.DB and *sql.Tx the repository functions
// need, so the same queries run inside and outside transactions.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// DB wraps the sqlite connection together with the store mutex.
type DB struct {
	conn *sql.DB
	mu   sync.Mutex
	path string
}

// NewDB opens (creating if necessary) the database at path and brings the
// schema up to date. The parent directory is created with 0700. When an
// existing database file is present, a pre-migration backup is written
// next to it with a .bak suffix.
func NewDB(path string) (*DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	if _, err := os.Stat(path); err == nil {
		if err := backupFile(path, path+".bak"); err != nil {
			return nil, fmt.Errorf("failed to back up database: %w", err)
		}
	}

	dsn := "file:" + path +
		"?_pragma=busy_timeout(5000)" +
		"&_pragma=journal_mode(WAL)" +
		"&_pragma=foreign_keys(1)"
	conn, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection keeps the exclusive-writer model honest and the
	// per-connection pragmas in force.
	conn.SetMaxOpenConns(1)

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := migrate(conn); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	log.Info(log.CatDB, "database ready", "path", path)
	return &DB{conn: conn, path: path}, nil
}

// InTx runs fn inside a transaction while holding the store mutex. The
// mutex stays held until commit or rollback completes, never across
// envelope dispatch.
func (d *DB) InTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	tx, err := d.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			log.ErrorErr(log.CatDB, "rollback failed", rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// InView runs fn with read access while holding the store mutex.
func (d *DB) InView(ctx context.Context, fn func(q Querier) error) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(d.conn)
}

// Connection returns the underlying *sql.DB.
func (d *DB) Connection() *sql.DB {
	return d.conn
}

// Path returns the on-disk location of the database file.
func (d *DB) Path() string {
	return d.path
}

// Close closes the underlying connection.
func (d *DB) Close() error {
	return d.conn.Close()
}

func backupFile(src, dst string) error {
	in, err := os.Open(src) //nolint:gosec // G304: src is the configured database path
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600) //nolint:gosec // G304: dst derives from the database path
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}
