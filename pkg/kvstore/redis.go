package kvstore

import (
	"context"
	"errors"
	"iter"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/meywd/openauth-core/pkg/logger"
)

// RedisStore is a Store backed by Redis, for deployments sharing state
// across multiple server processes.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore wraps an existing *redis.Client. keyPrefix namespaces every
// key this store touches, so one Redis instance can back several logical
// stores without collision.
func NewRedisStore(client *redis.Client, keyPrefix string) *RedisStore {
	return &RedisStore{client: client, prefix: keyPrefix}
}

func (s *RedisStore) wireKey(key Key) string {
	return s.prefix + Encode(key)
}

func (s *RedisStore) Get(ctx context.Context, key Key) ([]byte, error) {
	v, err := s.client.Get(ctx, s.wireKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return v, nil
}

func (s *RedisStore) Set(ctx context.Context, key Key, value []byte, ttl time.Duration) error {
	return s.client.Set(ctx, s.wireKey(key), value, ttl).Err()
}

func (s *RedisStore) Remove(ctx context.Context, key Key) error {
	return s.client.Del(ctx, s.wireKey(key)).Err()
}

func (s *RedisStore) Scan(ctx context.Context, prefix Key) iter.Seq[Entry] {
	return func(yield func(Entry) bool) {
		patterns := []string{s.prefix + Encode(prefix) + "*"}
		if legacy := s.prefix + strings.Join(prefix, legacySeparator) + "*"; legacy != patterns[0] {
			patterns = append(patterns, legacy)
		}
		for _, pattern := range patterns {
			scanIter := s.client.Scan(ctx, 0, pattern, 0).Iterator()
			for scanIter.Next(ctx) {
				wireKey := scanIter.Val()
				logicalKey := Decode(wireKey[len(s.prefix):])
				if !HasPrefix(logicalKey, prefix) {
					continue // glob matched a longer segment, e.g. "acme2" for "acme"
				}
				v, err := s.client.Get(ctx, wireKey).Bytes()
				if errors.Is(err, redis.Nil) {
					continue // removed between SCAN and GET; tolerate the race
				}
				if err != nil {
					logger.Warnw("redis scan get failed", "key", wireKey, "error", err)
					continue
				}
				if !yield(Entry{Key: logicalKey, Value: v}) {
					return
				}
			}
			if err := scanIter.Err(); err != nil {
				logger.Warnw("redis scan iterator error", "prefix", pattern, "error", err)
			}
		}
	}
}
