package store

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get when no value is stored under the key.
var ErrNotFound = errors.New("store: key not found")

// Store defines the interface for durable key-value storage backends.
// Keys are partitioned into named buckets so that unrelated resources
// (credentials, cached documents, per-event collections) never collide.
// Implementations must be safe for concurrent use.
type Store interface {
	// Get returns the value stored under bucket/key.
	// Returns ErrNotFound if nothing is stored there.
	Get(ctx context.Context, bucket, key string) ([]byte, error)

	// Put stores value under bucket/key, replacing any prior value
	// as a single unit.
	Put(ctx context.Context, bucket, key string, value []byte) error

	// Delete removes the value under bucket/key.
	// Deleting a missing key is not an error.
	Delete(ctx context.Context, bucket, key string) error

	// Close releases any resources held by the store.
	Close() error
}
