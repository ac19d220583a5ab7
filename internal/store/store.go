// Package store keeps an optional SQLite mirror of the status log.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	_ "modernc.org/sqlite" // registers the "sqlite" driver
)

// Migration is one schema change, applied at most once per component.
type Migration struct {
	Version     int
	Description string
	Up          func(tx *sql.Tx) error
}

// openPragmas run on every new database. The modernc driver ignores DSN
// pragma parameters, so they are issued as statements.
var openPragmas = []string{
	"PRAGMA journal_mode=WAL",
	"PRAGMA busy_timeout=5000",
	"PRAGMA synchronous=NORMAL",
}

// SQLiteStore is a single-writer SQLite database with per-component schema
// versions.
type SQLiteStore struct {
	db *sql.DB
	mu sync.Mutex // held while migrating
}

// New opens or creates the database at path. ":memory:" is accepted for
// tests.
func New(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %q: %w", path, err)
	}
	// One connection: writes are serialized and an in-memory database is
	// shared by every query.
	db.SetMaxOpenConns(1)

	for _, p := range openPragmas {
		if _, err := db.Exec(p); err != nil {
			return nil, errors.Join(fmt.Errorf("sqlite %q: %s: %w", path, p, err), db.Close())
		}
	}
	return &SQLiteStore{db: db}, nil
}

// DB returns the underlying handle.
func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Migrate applies the migrations of component that have not run yet, in
// slice order. Each migration commits together with its bookkeeping row.
func (s *SQLiteStore) Migrate(ctx context.Context, component string, migrations []Migration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS _migrations (
			component   TEXT     NOT NULL,
			version     INTEGER  NOT NULL,
			description TEXT     NOT NULL,
			applied_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (component, version)
		)`); err != nil {
		return fmt.Errorf("create _migrations: %w", err)
	}

	done, err := s.appliedVersions(ctx, component)
	if err != nil {
		return err
	}
	for _, m := range migrations {
		if done[m.Version] {
			continue
		}
		if err := s.apply(ctx, component, m); err != nil {
			return fmt.Errorf("migration %s/%d (%s): %w", component, m.Version, m.Description, err)
		}
	}
	return nil
}

func (s *SQLiteStore) appliedVersions(ctx context.Context, component string) (map[int]bool, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT version FROM _migrations WHERE component = ?`, component)
	if err != nil {
		return nil, fmt.Errorf("read %s migrations: %w", component, err)
	}
	defer rows.Close()

	done := make(map[int]bool)
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("read %s migrations: %w", component, err)
		}
		done[v] = true
	}
	return done, rows.Err()
}

func (s *SQLiteStore) apply(ctx context.Context, component string, m Migration) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := m.Up(tx); err != nil {
		return errors.Join(err, tx.Rollback())
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO _migrations (component, version, description) VALUES (?, ?, ?)`,
		component, m.Version, m.Description,
	); err != nil {
		return errors.Join(err, tx.Rollback())
	}
	return tx.Commit()
}
