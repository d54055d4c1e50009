package idgen

import (
	"context"
	"fmt"
	"time"

	"mx-orderdesk/internal/types"

	"github.com/redis/go-redis/v9"
)

// Counter is the atomic per-key increment the generator runs on. Redis INCR
// satisfies it; tests supply an in-memory fake.
type Counter interface {
	Incr(ctx context.Context, key string) (int64, error)
	Expire(ctx context.Context, key string, ttl time.Duration) error
}

type RedisCounter struct {
	rdb *redis.Client
}

func NewRedisCounter(rdb *redis.Client) *RedisCounter {
	return &RedisCounter{rdb: rdb}
}

func (c *RedisCounter) Incr(ctx context.Context, key string) (int64, error) {
	return c.rdb.Incr(ctx, key).Result()
}

func (c *RedisCounter) Expire(ctx context.Context, key string, ttl time.Duration) error {
	return c.rdb.Expire(ctx, key, ttl).Err()
}

// counterTTL bounds stale day-keys. Two days covers clock skew around
// midnight between coordinator instances.
const counterTTL = 48 * time.Hour

type Generator struct {
	counter Counter
	now     func() time.Time
}

func NewGenerator(counter Counter) *Generator {
	return &Generator{counter: counter, now: time.Now}
}

// Next returns prefix_YYYYMMDD_seq. The sequence is a single atomic INCR on
// a per-day per-kind key, so two concurrent callers can never observe the
// same value. The first caller of a new day sets the key's expiry. A counter
// failure is returned as-is: ids are never fabricated locally.
func (g *Generator) Next(ctx context.Context, kind types.IDKind) (string, error) {
	day := g.now().UTC().Format("20060102")
	key := fmt.Sprintf("idseq:%s:%s", kind, day)
	seq, err := g.counter.Incr(ctx, key)
	if err != nil {
		return "", fmt.Errorf("id counter: %w", err)
	}
	if seq == 1 {
		// A missed expiry only delays key cleanup; the id is already valid.
		_ = g.counter.Expire(ctx, key, counterTTL)
	}
	return fmt.Sprintf("%s_%s_%06d", kind, day, seq), nil
}
