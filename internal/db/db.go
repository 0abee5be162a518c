package db

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"
)

// Driver names registered with database/sql.
const (
	DriverModernc = "sqlite"  // pure Go, modernc.org/sqlite
	DriverCGO     = "sqlite3" // github.com/mattn/go-sqlite3, needs cgo
)

// Querier is the read surface every backup store exposes. *sql.DB, *sql.Conn
// and *sql.Tx all satisfy it.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Open opens a backup SQLite file read-only. The file must already exist;
// SQLite would otherwise create an empty database and every query would fail
// with a confusing "no such table".
func Open(path string, driver string) (*sql.DB, error) {
	if driver == "" {
		driver = DriverModernc
	}
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("failed to stat database %s: %w", path, err)
	}

	dsn, err := readOnlyDSN(path)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection keeps the read-only handle scoped to a single file descriptor.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to open database %s: %w", path, err)
	}
	if _, err := db.Exec("PRAGMA query_only = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set query_only: %w", err)
	}

	return db, nil
}

// readOnlyDSN builds a file: URI for path. The path is made absolute first:
// in file://host/path form a relative first segment would be read as the
// URI authority. Windows drive paths need a leading slash for the same reason.
func readOnlyDSN(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("failed to resolve database path %s: %w", path, err)
	}
	p := filepath.ToSlash(abs)
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	u := url.URL{
		Scheme:   "file",
		Path:     p,
		RawQuery: "mode=ro",
	}
	return u.String(), nil
}
