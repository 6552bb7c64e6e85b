package store

import (
	"context"
	"sync"
)

// MemoryStore implements Store using an in-memory map.
// This is useful for testing but nothing survives a restart.
type MemoryStore struct {
	mu      sync.RWMutex
	buckets map[string]map[string][]byte // bucket -> key -> value
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		buckets: make(map[string]map[string][]byte),
	}
}

// Get returns a copy of the value stored under bucket/key.
func (s *MemoryStore) Get(ctx context.Context, bucket, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	value, ok := s.buckets[bucket][key]
	if !ok {
		return nil, ErrNotFound
	}

	return append([]byte(nil), value...), nil
}

// Put stores a copy of value under bucket/key.
func (s *MemoryStore) Put(ctx context.Context, bucket, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.buckets[bucket] == nil {
		s.buckets[bucket] = make(map[string][]byte)
	}
	s.buckets[bucket][key] = append([]byte(nil), value...)

	return nil
}

// Delete removes the value under bucket/key.
func (s *MemoryStore) Delete(ctx context.Context, bucket, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys, ok := s.buckets[bucket]
	if !ok {
		return nil
	}

	delete(keys, key)
	if len(keys) == 0 {
		delete(s.buckets, bucket)
	}
	return nil
}

// Close is a no-op for the memory store.
func (s *MemoryStore) Close() error {
	return nil
}
