package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/redis/go-redis/v9"
)

const (
	keyPrefix = "cart:session:"
	maxJitter = 5 * time.Minute
)

// RedisCache stores carts as JSON documents, one key per session.
type RedisCache struct {
	rdb     redis.Cmdable
	baseTTL time.Duration
}

// NewRedisCache accepts any go-redis client, single node or cluster.
func NewRedisCache(rdb redis.Cmdable, baseTTL time.Duration) *RedisCache {
	return &RedisCache{rdb: rdb, baseTTL: baseTTL}
}

func (c *RedisCache) Get(ctx context.Context, sessionID string) (*domain.CartState, error) {
	raw, err := c.rdb.Get(ctx, cacheKey(sessionID)).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		return nil, ErrCacheMiss
	case err != nil:
		return nil, fmt.Errorf("redis get %s: %w", sessionID, err)
	}

	cart := new(domain.CartState)
	if err := json.Unmarshal(raw, cart); err != nil {
		return nil, fmt.Errorf("%w: unmarshal cart failed: %v", ErrCorrupt, err)
	}
	return cart, nil
}

func (c *RedisCache) Set(ctx context.Context, sessionID string, cart *domain.CartState) error {
	raw, err := json.Marshal(cart)
	if err != nil {
		return fmt.Errorf("marshal cart failed: %w", err)
	}
	if err := c.rdb.Set(ctx, cacheKey(sessionID), raw, c.ttl()).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", sessionID, err)
	}
	return nil
}

func (c *RedisCache) Delete(ctx context.Context, sessionID string) error {
	if err := c.rdb.Del(ctx, cacheKey(sessionID)).Err(); err != nil {
		return fmt.Errorf("redis del %s: %w", sessionID, err)
	}
	return nil
}

// ttl spreads expiry over up to maxJitter past the session TTL so carts
// written in the same burst do not all expire in the same second.
func (c *RedisCache) ttl() time.Duration {
	return c.baseTTL + rand.N(maxJitter)
}

func cacheKey(sessionID string) string {
	return keyPrefix + sessionID
}
