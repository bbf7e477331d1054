// Package orders persists orders and drives their status lifecycle.
package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ariefcatur/go-storefront-orders/internal/apperr"
	"github.com/ariefcatur/go-storefront-orders/internal/logger"
	"github.com/ariefcatur/go-storefront-orders/internal/money"
	"github.com/ariefcatur/go-storefront-orders/internal/notify"
	"go.uber.org/zap"
)

var (
	ErrDuplicateExternalID = apperr.New(apperr.KindConflict, "idempotency key already used")
	ErrDuplicateSession    = apperr.New(apperr.KindConflict, "payment session already has an order")
)

const (
	createAttempts = 4 // first try plus three retries on a number collision
	updateAttempts = 3
)

type Notifier interface {
	SendOrderConfirmation(ctx context.Context, n notify.OrderConfirmation) error
	SendShippingUpdate(ctx context.Context, n notify.ShippingUpdate) error
}

type StatusCache interface {
	Get(ctx context.Context, number string) (Status, bool)
	Set(ctx context.Context, number string, s Status)
	Invalidate(ctx context.Context, number string)
}

type Ledger struct {
	Store    Store
	Notifier Notifier    // optional
	Cache    StatusCache // optional
	Log      *zap.Logger

	Now       func() time.Time
	NewNumber func(time.Time) string
}

func (l *Ledger) now() time.Time {
	if l.Now != nil {
		return l.Now().UTC()
	}
	return time.Now().UTC()
}

func (l *Ledger) number(t time.Time) string {
	if l.NewNumber != nil {
		return l.NewNumber(t)
	}
	return NewNumber(t)
}

func (l *Ledger) log() *zap.Logger { return logger.OrNop(l.Log) }

func (l *Ledger) Create(ctx context.Context, n NewOrder) (*Order, error) {
	return l.CreateWith(ctx, l.Store, n)
}

// CreateWith persists n through s, which may be bound to the caller's
// transaction. A number collision is retried with a fresh number.
func (l *Ledger) CreateWith(ctx context.Context, s Store, n NewOrder) (*Order, error) {
	if len(n.Items) == 0 {
		return nil, apperr.New(apperr.KindValidation, "order has no items")
	}
	if n.Status == "" {
		n.Status = StatusPending
	}
	if !n.Status.Valid() {
		return nil, apperr.New(apperr.KindValidation, "unknown order status %q", n.Status)
	}
	if n.ShippingAddress.Country == "" {
		n.ShippingAddress.Country = "US"
	}

	now := l.now()
	o := &Order{
		Totals:           n.Totals,
		Items:            n.Items,
		Status:           n.Status,
		Customer:         n.Customer,
		ShippingAddress:  n.ShippingAddress,
		PaymentSessionID: n.PaymentSessionID,
		PaymentIntentID:  n.PaymentIntentID,
		ExternalID:       n.ExternalID,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	o.Customer.Email = strings.ToLower(strings.TrimSpace(o.Customer.Email))

	number := n.Number
	var err error
	for attempt := 0; attempt < createAttempts; attempt++ {
		if number == "" {
			number = l.number(now)
		}
		o.Number = number
		err = s.Insert(ctx, o)
		if !errors.Is(err, apperr.ErrDuplicateOrderNumber) {
			break
		}
		l.log().Warn("order number collision", zap.String("order_number", number), zap.Int("attempt", attempt+1))
		number = ""
	}
	if err != nil {
		return nil, err
	}
	return o, nil
}

// SendConfirmation tells the customer about a new order. Failures are only logged.
func (l *Ledger) SendConfirmation(ctx context.Context, o *Order) {
	if l.Notifier == nil {
		return
	}
	if err := l.Notifier.SendOrderConfirmation(ctx, ConfirmationOf(o)); err != nil {
		l.log().Warn("order confirmation not sent", zap.String("order_number", o.Number), zap.Error(err))
	}
}

// UpdateStatus moves an order along the status machine. The write is
// conditional on the status that was read, so concurrent updates re-validate.
func (l *Ledger) UpdateStatus(ctx context.Context, number string, to Status, tracking *Tracking) (*Order, error) {
	if !to.Valid() {
		return nil, apperr.New(apperr.KindValidation, "unknown order status %q", to)
	}
	for attempt := 0; attempt < updateAttempts; attempt++ {
		o, err := l.Store.Get(ctx, number)
		if err != nil {
			return nil, err
		}
		if !CanTransition(o.Status, to) {
			return nil, apperr.New(apperr.KindInvalidTransition,
				"order %s cannot move from %s to %s", number, o.Status, to)
		}
		now := l.now()
		ok, err := l.Store.UpdateStatus(ctx, number, o.Status, to, tracking, now)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}

		from := o.Status
		o.Status, o.UpdatedAt = to, now
		if !tracking.Empty() {
			if tracking.Carrier != "" {
				o.Tracking.Carrier = tracking.Carrier
			}
			if tracking.Number != "" {
				o.Tracking.Number = tracking.Number
			}
		}
		if l.Cache != nil {
			l.Cache.Invalidate(ctx, number)
		}
		l.log().Info("order status changed", zap.String("order_number", number),
			zap.String("from", string(from)), zap.String("to", string(to)))
		if to.CustomerVisible() && l.Notifier != nil {
			if err := l.Notifier.SendShippingUpdate(ctx, shippingUpdateOf(o)); err != nil {
				l.log().Warn("shipping update not sent", zap.String("order_number", number), zap.Error(err))
			}
		}
		return o, nil
	}
	return nil, fmt.Errorf("order %s: status changed concurrently %d times", number, updateAttempts)
}

func (l *Ledger) FindByNumber(ctx context.Context, number string) (*Order, error) {
	return l.Store.Get(ctx, number)
}

// FindByCustomer lists a customer's orders, newest first.
func (l *Ledger) FindByCustomer(ctx context.Context, email string) ([]Order, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil, apperr.New(apperr.KindValidation, "email is required")
	}
	return l.Store.ListByEmail(ctx, email)
}

func (l *Ledger) FindBySession(ctx context.Context, sessionID string) (*Order, error) {
	return l.Store.GetBySession(ctx, sessionID)
}

func (l *Ledger) FindByExternalID(ctx context.Context, externalID string) (*Order, error) {
	return l.Store.GetByExternalID(ctx, externalID)
}

// StatusOf serves status lookups from the cache when possible.
func (l *Ledger) StatusOf(ctx context.Context, number string) (Status, error) {
	if l.Cache != nil {
		if s, ok := l.Cache.Get(ctx, number); ok {
			return s, nil
		}
	}
	o, err := l.Store.Get(ctx, number)
	if err != nil {
		return "", err
	}
	if l.Cache != nil {
		l.Cache.Set(ctx, number, o.Status)
	}
	return o.Status, nil
}

func ConfirmationOf(o *Order) notify.OrderConfirmation {
	items := make([]notify.OrderLine, 0, len(o.Items))
	for _, it := range o.Items {
		var variant string
		if it.Color != "" || it.Size != "" {
			variant = it.Color + "/" + it.Size
		}
		items = append(items, notify.OrderLine{
			Title:     it.Title,
			Variant:   variant,
			Quantity:  it.Quantity,
			UnitPrice: money.Format(it.UnitPrice),
		})
	}
	a := o.ShippingAddress
	return notify.OrderConfirmation{
		OrderNumber:   o.Number,
		CustomerName:  o.Customer.Name,
		CustomerEmail: o.Customer.Email,
		Items:         items,
		Subtotal:      money.Format(o.Subtotal),
		Shipping:      money.Format(o.Shipping),
		Tax:           money.Format(o.Tax),
		Total:         money.Format(o.Total),
		ShippingAddress: notify.Address{
			Line1: a.Line1, Line2: a.Line2, City: a.City, State: a.State, Zip: a.Zip, Country: a.Country,
		},
	}
}

func shippingUpdateOf(o *Order) notify.ShippingUpdate {
	return notify.ShippingUpdate{
		OrderNumber:    o.Number,
		CustomerName:   o.Customer.Name,
		CustomerEmail:  o.Customer.Email,
		Status:         string(o.Status),
		Carrier:        o.Tracking.Carrier,
		TrackingNumber: o.Tracking.Number,
	}
}
