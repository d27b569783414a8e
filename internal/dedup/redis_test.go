package dedup

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func newTestRedisCache(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewRedisCache(client, time.Minute, zerolog.Nop()), mr
}

func TestRedisCacheSeen(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	c, _ := newTestRedisCache(t)

	if c.Seen(ctx, "evt-1") {
		t.Fatal("first Seen(evt-1) should be false")
	}
	if !c.Seen(ctx, "evt-1") {
		t.Fatal("second Seen(evt-1) should be true")
	}
	if c.Seen(ctx, "evt-2") {
		t.Fatal("first Seen(evt-2) should be false")
	}
	if got := c.Size(ctx); got != 2 {
		t.Fatalf("Size() = %d, want 2", got)
	}
}

func TestRedisCacheTTLSet(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	c, mr := newTestRedisCache(t)

	c.Seen(ctx, "evt-1")
	if ttl := mr.TTL(redisSeenKey); ttl <= 0 {
		t.Fatalf("expected TTL on %s, got %v", redisSeenKey, ttl)
	}
}

func TestRedisCacheFailsOpen(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	c, mr := newTestRedisCache(t)
	mr.Close()

	// With Redis unreachable every event is treated as new; the store's
	// unique constraint is the backstop.
	if c.Seen(ctx, "evt-1") {
		t.Fatal("Seen should fail open when redis is down")
	}
	if c.Seen(ctx, "evt-1") {
		t.Fatal("Seen should fail open on repeat as well")
	}
}
