package store

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisNamespace prefixes every key written by RedisStore.
const DefaultRedisNamespace = "booking-otp"

// RedisStore keeps entries in Redis with native TTLs.
type RedisStore struct {
	client    redis.UniversalClient
	namespace string
}

// NewRedisStore wraps client. An empty namespace selects DefaultRedisNamespace.
func NewRedisStore(client redis.UniversalClient, namespace string) *RedisStore {
	if namespace == "" {
		namespace = DefaultRedisNamespace
	}
	return &RedisStore{client: client, namespace: namespace}
}

// NewRedisClient returns a single-node client for addr.
func NewRedisClient(addr, password string) redis.UniversalClient {
	return redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: 0})
}

func (s *RedisStore) key(k string) string { return s.namespace + ":" + k }

func (s *RedisStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if ttl < 0 {
		ttl = 0
	}
	return s.client.Set(ctx, s.key(key), value, ttl).Err()
}

func (s *RedisStore) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := s.client.Get(ctx, s.key(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (s *RedisStore) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = s.key(k)
	}
	return s.client.Del(ctx, full...).Err()
}

// PingContext checks connectivity for the readiness probe.
func (s *RedisStore) PingContext(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
