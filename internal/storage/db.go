// Package storage persists bot-local state in SQLite: command history, the
// role lookup cache and shopping carts.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver for database/sql
)

// slowQueryThreshold is the duration above which queries are logged.
const slowQueryThreshold = 100 * time.Millisecond

// DB wraps the SQLite connections. Writes go through a single connection so
// SQLite never sees concurrent writers; reads use a separate pool.
type DB struct {
	writer *sql.DB
	reader *sql.DB
	path   string
}

// dsn builds a modernc.org/sqlite DSN with the connection pragmas.
func dsn(path string, readOnly bool) string {
	pragmas := []string{
		"_pragma=busy_timeout(30000)",
		"_pragma=foreign_keys(1)",
		"_pragma=synchronous(NORMAL)",
	}
	if path == ":memory:" {
		return "file::memory:?" + strings.Join(pragmas, "&")
	}
	if readOnly {
		pragmas = append(pragmas, "mode=ro")
	} else {
		pragmas = append(pragmas, "_pragma=journal_mode(WAL)")
	}
	return "file:" + path + "?" + strings.Join(pragmas, "&")
}

// New opens the database at dbPath and initializes the schema.
// ":memory:" opens a private in-memory database.
func New(ctx context.Context, dbPath string) (*DB, error) {
	if dbPath != ":memory:" {
		dir := filepath.Dir(dbPath)
		if dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
	}

	writer, err := sql.Open("sqlite", dsn(dbPath, false))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	writer.SetMaxOpenConns(1)
	writer.SetMaxIdleConns(1)
	writer.SetConnMaxLifetime(0)

	if err := writer.PingContext(ctx); err != nil {
		_ = writer.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := InitSchema(ctx, writer); err != nil {
		_ = writer.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	db := &DB{writer: writer, reader: writer, path: dbPath}

	// An in-memory database lives in one connection; reads must share it.
	if dbPath == ":memory:" {
		return db, nil
	}

	reader, err := sql.Open("sqlite", dsn(dbPath, true))
	if err != nil {
		_ = writer.Close()
		return nil, fmt.Errorf("failed to open reader pool: %w", err)
	}
	reader.SetMaxOpenConns(8)
	reader.SetMaxIdleConns(4)
	reader.SetConnMaxLifetime(time.Hour)
	db.reader = reader
	return db, nil
}

// NewTestDB creates an in-memory database for tests.
func NewTestDB() (*DB, error) {
	return New(context.Background(), ":memory:")
}

// Close closes both connection pools.
func (db *DB) Close() error {
	var err error
	if db.reader != nil && db.reader != db.writer {
		err = db.reader.Close()
	}
	if db.writer != nil {
		if werr := db.writer.Close(); werr != nil {
			err = werr
		}
	}
	return err
}

// Ping checks that the database answers.
func (db *DB) Ping(ctx context.Context) error {
	return db.reader.PingContext(ctx)
}

// Path returns the database file path.
func (db *DB) Path() string {
	return db.path
}

// Snapshot writes a consistent copy of the database to dest with
// VACUUM INTO. dest must not exist.
func (db *DB) Snapshot(ctx context.Context, dest string) error {
	if db.path == ":memory:" {
		return fmt.Errorf("snapshot: in-memory database")
	}
	if _, err := db.writer.ExecContext(ctx, "VACUUM INTO ?", dest); err != nil {
		return fmt.Errorf("snapshot: %w", err)
	}
	return nil
}
