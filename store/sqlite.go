package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using SQLite.
// It uses the pure Go modernc.org/sqlite driver.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite creates a new SQLite store.
// The database file is created if it doesn't exist.
func NewSQLite(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to open database: %w", err)
	}

	// Enable WAL mode for better concurrent read performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: failed to enable WAL mode: %w", err)
	}

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, err
	}

	return &SQLiteStore{db: db}, nil
}

func createSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS kv (
		bucket     TEXT NOT NULL,
		key        TEXT NOT NULL,
		value      BLOB NOT NULL,
		updated_at DATETIME NOT NULL,
		PRIMARY KEY (bucket, key)
	);
	`

	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("sqlite: failed to create schema: %w", err)
	}
	return nil
}

// Get returns the value stored under bucket/key.
func (s *SQLiteStore) Get(ctx context.Context, bucket, key string) ([]byte, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx,
		"SELECT value FROM kv WHERE bucket = ? AND key = ?",
		bucket, key,
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to read %s/%s: %w", bucket, key, err)
	}
	return value, nil
}

// Put stores value under bucket/key.
func (s *SQLiteStore) Put(ctx context.Context, bucket, key string, value []byte) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT OR REPLACE INTO kv (bucket, key, value, updated_at) VALUES (?, ?, ?, ?)",
		bucket, key, value, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("sqlite: failed to write %s/%s: %w", bucket, key, err)
	}
	return nil
}

// Delete removes the value under bucket/key.
func (s *SQLiteStore) Delete(ctx context.Context, bucket, key string) error {
	_, err := s.db.ExecContext(ctx,
		"DELETE FROM kv WHERE bucket = ? AND key = ?",
		bucket, key,
	)
	if err != nil {
		return fmt.Errorf("sqlite: failed to delete %s/%s: %w", bucket, key, err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
