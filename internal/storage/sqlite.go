package storage

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"github.com/devilmonastery/gatekeeper/internal/pkg/metrics"
)

//go:embed migrations/sqlite/*.sql
var migrationFS embed.FS

// SQLite keeps keys in a shared database file, one scope per CLI context.
// Several scopes can share a file.
type SQLite struct {
	db    *sqlx.DB
	scope string
}

// OpenSQLite opens (creating if needed) the database at path and runs migrations.
func OpenSQLite(path, scope string) (*SQLite, error) {
	db, err := sqlx.Connect("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	// sqlite serializes writers; one connection avoids SQLITE_BUSY between our own goroutines
	db.SetMaxOpenConns(1)

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, err
	}

	return &SQLite{db: db, scope: scope}, nil
}

func runMigrations(db *sqlx.DB) error {
	sub, err := fs.Sub(migrationFS, "migrations/sqlite")
	if err != nil {
		return fmt.Errorf("failed to create sqlite migrations sub-filesystem: %w", err)
	}

	source, err := iofs.New(sub, ".")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	driver, err := migratesqlite.WithInstance(db.DB, &migratesqlite.Config{})
	if err != nil {
		return fmt.Errorf("failed to create database driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// Close closes the database
func (s *SQLite) Close() error {
	return s.db.Close()
}

func (s *SQLite) Get(key string) (string, bool, error) {
	var value string
	err := s.db.Get(&value, `SELECT value FROM kv WHERE scope = ? AND key = ?`, s.scope, key)
	if errors.Is(err, sql.ErrNoRows) {
		metrics.RecordStorageOperation(BackendSQLite, "get", nil)
		return "", false, nil
	}
	metrics.RecordStorageOperation(BackendSQLite, "get", err)
	if err != nil {
		return "", false, fmt.Errorf("failed to read key %q: %w", key, err)
	}
	return value, true, nil
}

func (s *SQLite) Set(key, value string) error {
	_, err := s.db.Exec(`
		INSERT INTO kv (scope, key, value, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT (scope, key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		s.scope, key, value, time.Now().UTC())
	metrics.RecordStorageOperation(BackendSQLite, "set", err)
	if err != nil {
		return fmt.Errorf("failed to write key %q: %w", key, err)
	}
	return nil
}

func (s *SQLite) Delete(keys ...string) error {
	if len(keys) == 0 {
		return nil
	}

	query, args, err := sqlx.In(`DELETE FROM kv WHERE scope = ? AND key IN (?)`, s.scope, keys)
	if err != nil {
		return fmt.Errorf("failed to build delete query: %w", err)
	}
	_, err = s.db.Exec(s.db.Rebind(query), args...)
	metrics.RecordStorageOperation(BackendSQLite, "delete", err)
	if err != nil {
		return fmt.Errorf("failed to delete keys: %w", err)
	}
	return nil
}

// Scopes lists the scopes that currently hold at least one key
func (s *SQLite) Scopes() ([]string, error) {
	var scopes []string
	if err := s.db.Select(&scopes, `SELECT DISTINCT scope FROM kv ORDER BY scope`); err != nil {
		return nil, fmt.Errorf("failed to list scopes: %w", err)
	}
	return scopes, nil
}
