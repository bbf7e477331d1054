package redisx

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

func New(addr string) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})
}

func Exists(ctx context.Context, rdb *redis.Client, key string) (bool, error) {
	n, err := rdb.Exists(ctx, key).Result()
	return n > 0, err
}

// Deduper is a best-effort "seen before" set. The database stays the source
// of truth; Redis only short-circuits repeated deliveries.
type Deduper struct {
	Client *redis.Client
	Scope  string
	TTL    time.Duration
}

func (d *Deduper) key(id string) string { return fmt.Sprintf(KeyDedup, d.Scope, id) }

func (d *Deduper) Seen(ctx context.Context, id string) bool {
	ok, err := Exists(ctx, d.Client, d.key(id))
	return err == nil && ok
}

func (d *Deduper) Mark(ctx context.Context, id string) {
	ttl := d.TTL
	if ttl == 0 {
		ttl = TTLDedup
	}
	_ = d.Client.Set(ctx, d.key(id), "1", ttl).Err()
}

// Claim marks id atomically and reports whether this caller was first.
func (d *Deduper) Claim(ctx context.Context, id string) (bool, error) {
	ttl := d.TTL
	if ttl == 0 {
		ttl = TTLDedup
	}
	return d.Client.SetNX(ctx, d.key(id), "1", ttl).Result()
}

// Release undoes a Claim, e.g. when processing failed and should be retried.
func (d *Deduper) Release(ctx context.Context, id string) {
	_ = d.Client.Del(ctx, d.key(id)).Err()
}

// TryLock takes a named lock for ttl. There is no unlock: the lock simply
// expires, which is what the periodic sweep wants.
func TryLock(ctx context.Context, rdb *redis.Client, name string, ttl time.Duration) (bool, error) {
	return rdb.SetNX(ctx, fmt.Sprintf(KeyLock, name), time.Now().UTC().Format(time.RFC3339), ttl).Result()
}
