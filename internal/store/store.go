package store

import (
	"database/sql"
	_ "embed"
	"fmt"
	"net/url"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// migrations[i] upgrades a database from user_version i to i+1.
var migrations = []string{
	schemaSQL, // 1: passes, changes and snapshots
}

// Store is the pass log and snapshot store of one SQLite database.
type Store struct {
	db *sql.DB
}

type config struct {
	busyTimeout time.Duration
	synchronous string
}

// Option configures Open.
type Option func(*config)

// WithBusyTimeout sets how long a connection waits on a locked database.
// Default: 5s.
func WithBusyTimeout(d time.Duration) Option {
	return func(c *config) {
		c.busyTimeout = d
	}
}

// WithSynchronous sets the synchronous pragma (OFF, NORMAL, FULL).
// Default: NORMAL, which is durable under WAL except on power loss.
func WithSynchronous(mode string) Option {
	return func(c *config) {
		c.synchronous = strings.ToUpper(mode)
	}
}

// Open creates or opens the database at path and migrates it to the current
// schema. ":memory:" opens a private in-memory database.
//
// File databases use WAL so trace readers do not block the writer. The pool
// holds a single connection: SQLite has one writer, and an in-memory
// database exists only on the connection that created it.
func Open(path string, opts ...Option) (*Store, error) {
	cfg := config{busyTimeout: 5 * time.Second, synchronous: "NORMAL"}
	for _, opt := range opts {
		opt(&cfg)
	}

	db, err := sql.Open("sqlite3", dsn(path, cfg))
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect %s: %w", path, err)
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate %s: %w", path, err)
	}
	return &Store{db: db}, nil
}

// dsn encodes the connection pragmas as go-sqlite3 DSN parameters, so they
// apply to every connection the pool opens.
func dsn(path string, cfg config) string {
	params := url.Values{}
	params.Set("_busy_timeout", fmt.Sprint(cfg.busyTimeout.Milliseconds()))
	params.Set("_foreign_keys", "on")
	params.Set("_synchronous", cfg.synchronous)
	if path != ":memory:" {
		params.Set("_journal_mode", "WAL")
	}
	return "file:" + path + "?" + params.Encode()
}

// migrate applies the migrations the database has not seen yet, each in its
// own transaction. A database written by a newer schema is rejected.
func migrate(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}
	if version > len(migrations) {
		return fmt.Errorf("schema version %d is newer than supported version %d", version, len(migrations))
	}

	for v := version; v < len(migrations); v++ {
		tx, err := db.Begin()
		if err != nil {
			return err
		}
		if _, err := tx.Exec(migrations[v]); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d: %w", v+1, err)
		}
		// PRAGMA does not take bind parameters.
		if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", v+1)); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d: set user_version: %w", v+1, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("migration %d: commit: %w", v+1, err)
		}
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// DB exposes the database for ad hoc queries.
func (s *Store) DB() *sql.DB {
	return s.db
}

// pragma returns the current value of a pragma.
func (s *Store) pragma(name string) (string, error) {
	var value string
	if err := s.db.QueryRow("PRAGMA " + name).Scan(&value); err != nil {
		return "", fmt.Errorf("query %s: %w", name, err)
	}
	return value, nil
}
