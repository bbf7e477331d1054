package redisx

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Idempotency remembers which order a client idempotency key produced. It is
// a shortcut only; orders.external_id stays authoritative.
type Idempotency struct {
	Client *redis.Client
	TTL    time.Duration
}

func (i *Idempotency) Lookup(ctx context.Context, key string) (string, bool) {
	v, err := i.Client.Get(ctx, fmt.Sprintf(KeyIdemCheckout, key)).Result()
	if err != nil || v == "" {
		return "", false
	}
	return v, true
}

func (i *Idempotency) Remember(ctx context.Context, key, orderNumber string) {
	ttl := i.TTL
	if ttl == 0 {
		ttl = TTLIdempotency
	}
	_ = i.Client.Set(ctx, fmt.Sprintf(KeyIdemCheckout, key), orderNumber, ttl).Err()
}
