package orders

import (
	"context"
	"fmt"
	"time"

	"github.com/ariefcatur/go-storefront-orders/internal/redisx"
	"github.com/redis/go-redis/v9"
)

// RedisStatusCache keeps order_status:{number} for a few minutes. Redis
// errors degrade to cache misses.
type RedisStatusCache struct {
	Client *redis.Client
	TTL    time.Duration
}

func (c *RedisStatusCache) key(number string) string { return fmt.Sprintf(redisx.KeyOrderStatus, number) }

func (c *RedisStatusCache) Get(ctx context.Context, number string) (Status, bool) {
	s, err := c.Client.Get(ctx, c.key(number)).Result()
	if err != nil || s == "" {
		return "", false
	}
	return Status(s), true
}

func (c *RedisStatusCache) Set(ctx context.Context, number string, s Status) {
	ttl := c.TTL
	if ttl == 0 {
		ttl = redisx.TTLStatusCache
	}
	_ = c.Client.Set(ctx, c.key(number), string(s), ttl).Err()
}

func (c *RedisStatusCache) Invalidate(ctx context.Context, number string) {
	_ = c.Client.Del(ctx, c.key(number)).Err()
}
