package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const harvestedKeyPrefix = "harvested:"

// RedisStore tracks recently harvested listing URLs so that back-to-back
// runs can skip pages that cannot have changed yet.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(addr string) *RedisStore {
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	return &RedisStore{client: rdb}
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// key hashes the URL so arbitrary listing URLs make safe, fixed-length
// Redis keys.
func (s *RedisStore) key(url string) string {
	h := sha256.Sum256([]byte(url))
	return fmt.Sprintf("%s%s", harvestedKeyPrefix, hex.EncodeToString(h[:]))
}

// MarkHarvested records a URL as freshly harvested for the given TTL.
func (s *RedisStore) MarkHarvested(ctx context.Context, url string, ttl time.Duration) error {
	return s.client.Set(ctx, s.key(url), "1", ttl).Err()
}

// IsRecentlyHarvested reports whether the URL was harvested within the TTL.
func (s *RedisStore) IsRecentlyHarvested(ctx context.Context, url string) (bool, error) {
	val, err := s.client.Exists(ctx, s.key(url)).Result()
	if err != nil {
		return false, err
	}
	return val == 1, nil
}
