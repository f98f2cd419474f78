package credential

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps the credential under one Redis key.
//
//	Performance: 1 Redis command per operation.
type RedisStore struct {
	redis redis.UniversalClient
	key   string
	ttl   time.Duration
}

// NewRedisStore creates a [RedisStore] that stores the credential at
// "<prefix>:cred:<name>". ttl <= 0 keeps the key until Clear.
func NewRedisStore(client redis.UniversalClient, prefix, name string, ttl time.Duration) *RedisStore {
	if prefix == "" {
		prefix = "gs"
	}
	if name == "" {
		name = "default"
	}
	return &RedisStore{
		redis: client,
		key:   prefix + ":cred:" + name,
		ttl:   ttl,
	}
}

// Key returns the Redis key holding the credential.
func (s *RedisStore) Key() string {
	return s.key
}

// Save writes token with the configured ttl, replacing any previous value.
func (s *RedisStore) Save(ctx context.Context, token string) error {
	if token == "" {
		return ErrEmptyCredential
	}

	ttl := s.ttl
	if ttl < 0 {
		ttl = 0
	}
	if err := s.redis.Set(ctx, s.key, token, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// Load returns ok=false when the key is missing or has expired.
func (s *RedisStore) Load(ctx context.Context) (string, bool, error) {
	token, err := s.redis.Get(ctx, s.key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if token == "" {
		return "", false, nil
	}
	return token, true, nil
}

// Clear deletes the key.
func (s *RedisStore) Clear(ctx context.Context) error {
	if err := s.redis.Del(ctx, s.key).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}
