package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/go-sql-driver/mysql"
)

// MySQLStore implements Store using MySQL.
type MySQLStore struct {
	db *sql.DB
}

// NewMySQL creates a new MySQL store on an open database handle.
func NewMySQL(db *sql.DB) (*MySQLStore, error) {
	if err := createMySQLSchema(db); err != nil {
		db.Close()
		return nil, err
	}

	return &MySQLStore{db: db}, nil
}

// NewMySQLFromDSN creates a new MySQL store from a DSN.
// The DSN format is: user:password@tcp(host:port)/database
func NewMySQLFromDSN(dsn string) (*MySQLStore, error) {
	db, err := sql.Open("mysql", dsn+"?parseTime=true")
	if err != nil {
		return nil, fmt.Errorf("mysql: failed to open database: %w", err)
	}

	// Test connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("mysql: failed to connect: %w", err)
	}

	return NewMySQL(db)
}

func createMySQLSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS kv (
		bucket     VARCHAR(191) NOT NULL,
		` + "`key`" + `      VARCHAR(191) NOT NULL,
		value      LONGBLOB NOT NULL,
		updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,

		PRIMARY KEY (bucket, ` + "`key`" + `)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4;
	`

	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("mysql: failed to create schema: %w", err)
	}
	return nil
}

// Get returns the value stored under bucket/key.
func (s *MySQLStore) Get(ctx context.Context, bucket, key string) ([]byte, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx,
		"SELECT value FROM kv WHERE bucket = ? AND `key` = ?",
		bucket, key,
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("mysql: failed to read %s/%s: %w", bucket, key, err)
	}
	return value, nil
}

// Put stores value under bucket/key.
func (s *MySQLStore) Put(ctx context.Context, bucket, key string, value []byte) error {
	query := `
	INSERT INTO kv (bucket, ` + "`key`" + `, value) VALUES (?, ?, ?)
	ON DUPLICATE KEY UPDATE value = VALUES(value)
	`

	if _, err := s.db.ExecContext(ctx, query, bucket, key, value); err != nil {
		return fmt.Errorf("mysql: failed to write %s/%s: %w", bucket, key, err)
	}
	return nil
}

// Delete removes the value under bucket/key.
func (s *MySQLStore) Delete(ctx context.Context, bucket, key string) error {
	_, err := s.db.ExecContext(ctx,
		"DELETE FROM kv WHERE bucket = ? AND `key` = ?",
		bucket, key,
	)
	if err != nil {
		return fmt.Errorf("mysql: failed to delete %s/%s: %w", bucket, key, err)
	}
	return nil
}

// Close closes the database connection.
func (s *MySQLStore) Close() error {
	return s.db.Close()
}
