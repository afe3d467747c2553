package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver for database/sql

	"github.com/garyellow/wxbot-go/internal/config"
)

// DB is the SQLite location store.
// Writes go through a single connection; reads use a small pool.
type DB struct {
	writer     *sql.DB
	reader     *sql.DB
	path       string
	ttl        time.Duration
	maxEntries int
	now        func() time.Time
}

// Options configures the SQLite store.
type Options struct {
	TTL        time.Duration // Entries older than this are ignored and purged
	MaxEntries int           // Oldest entries beyond this are evicted on save; 0 = unbounded
}

// New opens (creating if needed) the database at dbPath and initializes the schema.
func New(ctx context.Context, dbPath string, opts Options) (*DB, error) {
	if dbPath != ":memory:" {
		if dir := filepath.Dir(dbPath); dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
	}

	writer, err := open(ctx, dbPath, 1)
	if err != nil {
		return nil, err
	}

	// In-memory databases are per-connection, so share the writer.
	reader := writer
	if dbPath != ":memory:" {
		reader, err = open(ctx, dbPath, 4)
		if err != nil {
			_ = writer.Close()
			return nil, err
		}
	}

	db := &DB{
		writer:     writer,
		reader:     reader,
		path:       dbPath,
		ttl:        opts.TTL,
		maxEntries: opts.MaxEntries,
		now:        time.Now,
	}

	if err := initSchema(ctx, writer); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return db, nil
}

func open(ctx context.Context, dbPath string, maxConns int) (*sql.DB, error) {
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	conn.SetMaxOpenConns(maxConns)
	conn.SetMaxIdleConns(maxConns)
	conn.SetConnMaxLifetime(config.DatabaseConnMaxLifetime)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		fmt.Sprintf("PRAGMA busy_timeout=%d", config.DatabaseBusyTimeout.Milliseconds()),
		"PRAGMA synchronous=NORMAL",
	}
	for _, p := range pragmas {
		if _, err := conn.ExecContext(ctx, p); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", p, err)
		}
	}

	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return conn, nil
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

// Ping verifies the database is reachable.
func (db *DB) Ping(ctx context.Context) error {
	return db.reader.PingContext(ctx)
}

// Path returns the database file path.
func (db *DB) Path() string {
	return db.path
}

// ttlCutoff returns the Unix timestamp before which entries are expired.
func (db *DB) ttlCutoff() int64 {
	if db.ttl <= 0 {
		return 0
	}
	return db.now().Add(-db.ttl).Unix()
}
