package ims

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aadithya-v/ims/store"
)

// envelope is the persisted unit for one cache key.
type envelope struct {
	Value      json.RawMessage `json:"value"`
	Validator  string          `json:"validator,omitempty"`
	Expiration time.Time       `json:"expiration"`
}

// Entry is the result of a cache lookup.
type Entry struct {
	// Value is the cached document, nil if nothing is cached.
	Value json.RawMessage
	// Validator is the server-issued revalidation token, if any.
	Validator string
	// Expired is true when the lifetime window has elapsed or nothing is cached.
	Expired bool
}

// Cache stores documents in a durable store together with a validator
// and an expiration time.
type Cache struct {
	kv  store.Store
	now func() time.Time
}

// NewCache creates a Cache over kv. now is the clock used to compute
// expiration; nil means time.Now.
func NewCache(kv store.Store, now func() time.Time) *Cache {
	if now == nil {
		now = time.Now
	}
	return &Cache{kv: kv, now: now}
}

// Get reads the envelope for storeName/key.
// Expired is computed against the current clock at read time.
// A missing or undecodable envelope is reported as an expired empty entry.
func (c *Cache) Get(ctx context.Context, storeName, key string) (Entry, error) {
	data, err := c.kv.Get(ctx, storeName, key)
	if errors.Is(err, store.ErrNotFound) {
		return Entry{Expired: true}, nil
	}
	if err != nil {
		return Entry{}, fmt.Errorf("ims: failed to read cache %s/%s: %w", storeName, key, err)
	}

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil || len(env.Value) == 0 || string(env.Value) == "null" {
		return Entry{Expired: true}, nil
	}

	return Entry{
		Value:     env.Value,
		Validator: env.Validator,
		Expired:   !c.now().Before(env.Expiration),
	}, nil
}

// Put replaces the envelope for storeName/key with
// expiration = now + lifetime.
func (c *Cache) Put(ctx context.Context, storeName, key string, value json.RawMessage, validator string, lifetime time.Duration) error {
	// Values are stored compact but otherwise unescaped.
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	err := enc.Encode(envelope{
		Value:      value,
		Validator:  validator,
		Expiration: c.now().Add(lifetime).UTC(),
	})
	if err != nil {
		return fmt.Errorf("ims: failed to encode cache %s/%s: %w", storeName, key, err)
	}

	if err := c.kv.Put(ctx, storeName, key, buf.Bytes()); err != nil {
		return fmt.Errorf("ims: failed to write cache %s/%s: %w", storeName, key, err)
	}
	return nil
}
