package orders

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

type LineItem struct {
	ProductID string          `json:"productId"`
	Title     string          `json:"title"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
	Quantity  int             `json:"quantity"`
	Color     string          `json:"color,omitempty"`
	Size      string          `json:"size,omitempty"`
	SKU       string          `json:"sku"`
	Image     string          `json:"image,omitempty"`
}

type Totals struct {
	Subtotal decimal.Decimal `json:"subtotal"`
	Shipping decimal.Decimal `json:"shipping"`
	Tax      decimal.Decimal `json:"tax"`
	Total    decimal.Decimal `json:"total"`
}

type Customer struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	ID    string `json:"customerId,omitempty"`
}

type Address struct {
	Line1   string `json:"line1"`
	Line2   string `json:"line2,omitempty"`
	City    string `json:"city"`
	State   string `json:"state"`
	Zip     string `json:"zip"`
	Country string `json:"country"`
}

type Tracking struct {
	Carrier string `json:"carrier,omitempty"`
	Number  string `json:"trackingNumber,omitempty"`
}

func (t *Tracking) Empty() bool { return t == nil || (t.Carrier == "" && t.Number == "") }

// Order is immutable after creation except for Status, Tracking and UpdatedAt.
type Order struct {
	Totals

	Number           string     `json:"orderNumber"`
	Items            []LineItem `json:"items"`
	Status           Status     `json:"status"`
	Customer         Customer   `json:"customer"`
	ShippingAddress  Address    `json:"shippingAddress"`
	PaymentSessionID string     `json:"paymentSessionId,omitempty"`
	PaymentIntentID  string     `json:"paymentIntentId,omitempty"`
	Tracking         Tracking   `json:"tracking"`
	ExternalID       string     `json:"-"`
	CreatedAt        time.Time  `json:"createdAt"`
	UpdatedAt        time.Time  `json:"updatedAt"`
}

// NewOrder is everything Create needs; the ledger assigns number and timestamps.
type NewOrder struct {
	Number           string // optional, pre-assigned by the deferred checkout flow
	Customer         Customer
	ShippingAddress  Address
	Items            []LineItem
	Totals           Totals
	Status           Status
	PaymentSessionID string
	PaymentIntentID  string
	ExternalID       string
}

type Store interface {
	// Insert fails with KindDuplicateOrderNumber on a number collision and
	// ErrDuplicateExternalID when the external id was already used.
	Insert(ctx context.Context, o *Order) error
	Get(ctx context.Context, number string) (*Order, error)
	GetByExternalID(ctx context.Context, externalID string) (*Order, error)
	GetBySession(ctx context.Context, sessionID string) (*Order, error)
	ListByEmail(ctx context.Context, email string) ([]Order, error)
	// UpdateStatus applies the change only if the order is still in from.
	UpdateStatus(ctx context.Context, number string, from, to Status, tracking *Tracking, at time.Time) (bool, error)
}
