package session

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisBackend stores the record as one Redis hash. HSET with several fields
// and DEL are single commands, which gives Put and Reset their atomicity.
type RedisBackend struct {
	redis redis.UniversalClient
	key   string
}

// NewRedisBackend returns a backend using the hash at key.
func NewRedisBackend(client redis.UniversalClient, key string) *RedisBackend {
	return &RedisBackend{redis: client, key: key}
}

func (r *RedisBackend) Get(ctx context.Context) (map[string]string, error) {
	fields, err := r.redis.HGetAll(ctx, r.key).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return fields, nil
}

func (r *RedisBackend) Put(ctx context.Context, fields map[string]string) error {
	if len(fields) == 0 {
		return nil
	}
	if err := r.redis.HSet(ctx, r.key, fields).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (r *RedisBackend) Reset(ctx context.Context) error {
	if err := r.redis.Del(ctx, r.key).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// RedisKeyPurger deletes every key matching a set of glob patterns. It backs
// derived caches (recently viewed, search history) that must disappear on
// sign-out.
type RedisKeyPurger struct {
	redis    redis.UniversalClient
	name     string
	patterns []string
}

// NewRedisKeyPurger returns a purger named name for the given SCAN patterns.
func NewRedisKeyPurger(client redis.UniversalClient, name string, patterns ...string) *RedisKeyPurger {
	return &RedisKeyPurger{redis: client, name: name, patterns: patterns}
}

// Name identifies the purger in logs.
func (p *RedisKeyPurger) Name() string {
	return p.name
}

// Purge scans each pattern and deletes matches in batches.
func (p *RedisKeyPurger) Purge(ctx context.Context) error {
	for _, pattern := range p.patterns {
		var cursor uint64
		for {
			keys, next, err := p.redis.Scan(ctx, cursor, pattern, 256).Result()
			if err != nil {
				return fmt.Errorf("%w: %v", ErrUnavailable, err)
			}
			if len(keys) > 0 {
				if err := p.redis.Del(ctx, keys...).Err(); err != nil {
					return fmt.Errorf("%w: %v", ErrUnavailable, err)
				}
			}
			cursor = next
			if cursor == 0 {
				break
			}
		}
	}
	return nil
}
