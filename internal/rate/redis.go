package rate

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// purgeCountScript drops members scored at or before ARGV[1], deletes the key
// once it is empty and returns the remaining cardinality.
const purgeCountScript = `
redis.call("ZREMRANGEBYSCORE", KEYS[1], "-inf", ARGV[1])
local n = redis.call("ZCARD", KEYS[1])
if n == 0 then
  redis.call("DEL", KEYS[1])
end
return n
`

var purgeCountLua = redis.NewScript(purgeCountScript)

// Redis is a sliding-window limiter storing one sorted set per key. Scores are
// attempt instants in unix milliseconds; members are random so that two
// attempts in the same millisecond are both counted.
type Redis struct {
	redis     redis.UniversalClient
	prefix    string
	retention time.Duration
	now       func() time.Time
}

// NewRedis returns a Redis limiter. Keys are stored under prefix+":"+key and
// expire retention after the last recorded attempt, which bounds the lifetime of
// abandoned records. retention should be at least the longest window checked.
func NewRedis(client redis.UniversalClient, prefix string, retention time.Duration, now func() time.Time) *Redis {
	if now == nil {
		now = time.Now
	}
	return &Redis{
		redis:     client,
		prefix:    prefix,
		retention: retention,
		now:       now,
	}
}

func (r *Redis) key(key string) string {
	if r.prefix == "" {
		return key
	}
	return r.prefix + ":" + key
}

// IsRateLimited purges and counts key's attempts atomically on the server.
func (r *Redis) IsRateLimited(ctx context.Context, key string, maxAttempts int, window time.Duration) (bool, error) {
	if maxAttempts <= 0 {
		return true, nil
	}

	cutoff := r.now()
	if window > 0 {
		cutoff = cutoff.Add(-window)
	}

	n, err := purgeCountLua.Run(ctx, r.redis, []string{r.key(key)}, strconv.FormatInt(cutoff.UnixMilli(), 10)).Int64()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	return n >= int64(maxAttempts), nil
}

// RecordAttempt adds the current instant to key's set and refreshes its TTL.
func (r *Redis) RecordAttempt(ctx context.Context, key string) error {
	k := r.key(key)
	now := r.now()

	_, err := r.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZAdd(ctx, k, redis.Z{
			Score:  float64(now.UnixMilli()),
			Member: uuid.NewString(),
		})
		if r.retention > 0 {
			pipe.PExpire(ctx, k, r.retention)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	return nil
}

// Clear deletes key's set.
func (r *Redis) Clear(ctx context.Context, key string) error {
	if err := r.redis.Del(ctx, r.key(key)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Attempts returns the stored attempt count for key without purging.
func (r *Redis) Attempts(ctx context.Context, key string) (int, error) {
	n, err := r.redis.ZCard(ctx, r.key(key)).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return int(n), nil
}
