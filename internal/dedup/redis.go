package dedup

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const redisSeenKey = "dedup:seen"

// RedisCache is a Deduper shared across process instances. SADD reports
// membership and records in one round trip, which keeps the check atomic
// under concurrent instances. A TTL on the set plays the role the clear
// threshold plays for the in-memory Cache.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
	logger zerolog.Logger
}

// NewRedisCache creates a RedisCache. A non-positive ttl defaults to one hour.
func NewRedisCache(client *redis.Client, ttl time.Duration, logger zerolog.Logger) *RedisCache {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &RedisCache{client: client, ttl: ttl, logger: logger}
}

// Seen implements Deduper. On Redis failure it reports the id as unseen:
// processing a duplicate is recoverable (the store's unique constraint
// absorbs it), dropping a genuine event is not.
func (c *RedisCache) Seen(ctx context.Context, id string) bool {
	pipe := c.client.TxPipeline()
	add := pipe.SAdd(ctx, redisSeenKey, id)
	pipe.Expire(ctx, redisSeenKey, c.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		c.logger.Warn().Err(err).Str("id", id).Msg("dedup check failed, treating event as new")
		return false
	}
	return add.Val() == 0
}

// Size returns the number of ids currently recorded, or 0 on failure.
func (c *RedisCache) Size(ctx context.Context) int {
	n, err := c.client.SCard(ctx, redisSeenKey).Result()
	if err != nil {
		return 0
	}
	return int(n)
}
