package inventory

import (
	"context"
	"time"
)

type AlertType string

const (
	AlertLowStock   AlertType = "low_stock"
	AlertOutOfStock AlertType = "out_of_stock"
	AlertReorder    AlertType = "reorder"
)

type Alert struct {
	ID              string     `json:"id"`
	ProductID       string     `json:"productId"`
	VariantSKU      string     `json:"variantSku"`
	Type            AlertType  `json:"type"`
	Threshold       int        `json:"threshold"`
	CurrentStock    int        `json:"currentStock"`
	IsResolved      bool       `json:"isResolved"`
	ResolvedAt      *time.Time `json:"resolvedAt,omitempty"`
	AutoReorder     bool       `json:"autoReorder"`
	ReorderQuantity int        `json:"reorderQuantity"`
	NotifiedAt      *time.Time `json:"notifiedAt,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
	UpdatedAt       time.Time  `json:"updatedAt"`
}

type ReorderEvent struct {
	ID         string    `json:"id"`
	AlertID    string    `json:"alertId"`
	ProductID  string    `json:"productId"`
	VariantSKU string    `json:"variantSku"`
	Quantity   int       `json:"quantity"`
	CreatedAt  time.Time `json:"createdAt"`
}

type Stats struct {
	Active   int `json:"active"`
	Resolved int `json:"resolved"`
}

// StockStore owns the per-variant stock counters.
type StockStore interface {
	// DecrementStock subtracts qty only if at least qty units are on hand and
	// returns the new level. It fails with KindVariantNotFound or
	// KindInsufficientStock (Available set) and leaves stock untouched.
	DecrementStock(ctx context.Context, productID, sku string, qty int) (int, error)
	IncrementStock(ctx context.Context, productID, sku string, qty int) (int, error)
	// LockStock reads the stock level and holds the row until the surrounding
	// transaction ends.
	LockStock(ctx context.Context, productID, sku string) (int, error)
}

type AlertStore interface {
	OpenAlerts(ctx context.Context, productID, sku string) ([]Alert, error)
	// InsertAlert reports false when an open alert of the same type already
	// exists for the variant.
	InsertAlert(ctx context.Context, a *Alert) (bool, error)
	ResolveAlerts(ctx context.Context, productID, sku string, types []AlertType, at time.Time) (int, error)
	GetAlert(ctx context.Context, id string) (*Alert, error)
	// ResolveAlert closes an open alert, optionally retyping it. False means
	// the alert was already resolved.
	ResolveAlert(ctx context.Context, id string, as AlertType, at time.Time) (bool, error)
	SetAutoReorder(ctx context.Context, id string, enabled bool, qty int) error
	MarkNotified(ctx context.Context, id string, at time.Time) error
	ListOpen(ctx context.Context) ([]Alert, error)
	History(ctx context.Context, limit int) ([]Alert, error)
	CountResolved(ctx context.Context) (int, error)
	// ListAutoReorder returns open low/out-of-stock alerts with auto-reorder on.
	ListAutoReorder(ctx context.Context) ([]Alert, error)
	InsertReorderEvent(ctx context.Context, e ReorderEvent) error
}

type Store interface {
	StockStore
	AlertStore
}

// Transactor runs fn against a Store bound to a single transaction.
type Transactor interface {
	InTx(ctx context.Context, fn func(ctx context.Context, s Store) error) error
}
