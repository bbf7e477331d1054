package redisx

import "time"

const (
	// Checkout idempotency: idem:checkout:{idempotency_key} -> order_number
	KeyIdemCheckout = "idem:checkout:%s"

	// Cached order status: order_status:{order_number} -> status
	KeyOrderStatus = "order_status:%s"

	// Dedup: dedup:{scope}:{id} (payment session id, notification event id)
	KeyDedup = "dedup:%s:%s"

	// Distributed lock: lock:{name}
	KeyLock = "lock:%s"
)

var (
	TTLIdempotency = 24 * time.Hour
	TTLStatusCache = 5 * time.Minute
	TTLDedup       = 48 * time.Hour
)
