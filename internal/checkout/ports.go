package checkout

import (
	"context"

	"github.com/ariefcatur/go-storefront-orders/internal/inventory"
	"github.com/ariefcatur/go-storefront-orders/internal/orders"
)

// SessionStore is the payment-session idempotency table.
type SessionStore interface {
	// Claim records sessionID and reports whether this caller was first.
	// Inside a transaction a concurrent claimer waits for the first to finish.
	Claim(ctx context.Context, sessionID, orderNumber, paymentIntentID string) (bool, error)
	// Bind points an existing claim at the order number that was stored.
	Bind(ctx context.Context, sessionID, orderNumber string) error
}

// Tx groups the stores that must change together when an order is placed.
type Tx interface {
	Stock() inventory.StockStore
	Orders() orders.Store
	Sessions() SessionStore
}

type Transactor interface {
	InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// Dedup short-circuits webhook redeliveries before touching the database.
type Dedup interface {
	Seen(ctx context.Context, id string) bool
	Mark(ctx context.Context, id string)
}

// IdempotencyCache maps a client idempotency key to the order it produced.
type IdempotencyCache interface {
	Lookup(ctx context.Context, key string) (string, bool)
	Remember(ctx context.Context, key, orderNumber string)
}
