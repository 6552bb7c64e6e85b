package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore implements Store using Redis.
// Values are stored without a Redis TTL: expired cache envelopes must
// survive so their validators can be used for revalidation.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore creates a new Redis store from a Redis client and a key prefix.
// prefix typically ends with a colon.
func NewRedisStore(client *redis.Client, keyPrefix string) (*RedisStore, error) {
	return &RedisStore{
		client: client,
		prefix: keyPrefix,
	}, nil
}

// RedisConfig contains configuration options for Redis.
type RedisConfig struct {
	// Addr is the Redis server address (e.g., "localhost:6379")
	Addr string

	// Password is the Redis password (empty for no auth)
	Password string

	// DB is the Redis database number (0-15)
	DB int

	// KeyPrefix is prepended to all keys (default: "ims:")
	// typically ends with a colon.
	KeyPrefix string
}

// NewRedisFromConfig creates a new Redis store and checks the connection.
func NewRedisFromConfig(cfg RedisConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis: failed to connect: %w", err)
	}

	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "ims:"
	}

	return &RedisStore{
		client: client,
		prefix: prefix,
	}, nil
}

func (s *RedisStore) key(bucket, key string) string {
	return s.prefix + bucket + ":" + key
}

// Get returns the value stored under bucket/key.
func (s *RedisStore) Get(ctx context.Context, bucket, key string) ([]byte, error) {
	value, err := s.client.Get(ctx, s.key(bucket, key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis: failed to get key: %w", err)
	}
	return value, nil
}

// Put stores value under bucket/key with no expiry.
func (s *RedisStore) Put(ctx context.Context, bucket, key string, value []byte) error {
	if err := s.client.Set(ctx, s.key(bucket, key), value, 0).Err(); err != nil {
		return fmt.Errorf("redis: failed to set key: %w", err)
	}
	return nil
}

// Delete removes the value under bucket/key.
func (s *RedisStore) Delete(ctx context.Context, bucket, key string) error {
	if err := s.client.Del(ctx, s.key(bucket, key)).Err(); err != nil {
		return fmt.Errorf("redis: failed to delete key: %w", err)
	}
	return nil
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
