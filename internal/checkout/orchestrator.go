// Package checkout turns a cart into an order. It is the only place where
// pricing, stock reservation and order creation meet.
package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ariefcatur/go-storefront-orders/internal/apperr"
	"github.com/ariefcatur/go-storefront-orders/internal/inventory"
	"github.com/ariefcatur/go-storefront-orders/internal/logger"
	"github.com/ariefcatur/go-storefront-orders/internal/orders"
	"github.com/ariefcatur/go-storefront-orders/internal/payment"
	"github.com/ariefcatur/go-storefront-orders/internal/pricing"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	metaOrderNumber = "order_number"
	metaEmail       = "customer_email"
	metaCheckout    = "checkout"
)

type Orchestrator struct {
	Catalog   pricing.Lookup
	Pricing   pricing.Calculator
	Inventory *inventory.Ledger
	Orders    *orders.Ledger
	Tx        Transactor

	Payments payment.Provider // nil disables the deferred flow
	Dedup    Dedup            // optional
	Idem     IdempotencyCache // optional

	Retry       RetryPolicy
	Currency    string
	FrontendURL string
	Log         *zap.Logger
	Now         func() time.Time
}

type Result struct {
	Flow        Flow             `json:"flow"`
	Order       *orders.Order    `json:"order,omitempty"`
	Session     *payment.Session `json:"session,omitempty"`
	OrderNumber string           `json:"orderNumber"`
	Replayed    bool             `json:"replayed,omitempty"`
}

type Confirmation struct {
	Order     *orders.Order
	Duplicate bool
	Ignored   bool
}

// pendingCheckout is the priced cart carried through the payment provider.
type pendingCheckout struct {
	Number   string            `json:"n"`
	Customer orders.Customer   `json:"c"`
	Address  orders.Address    `json:"a"`
	Items    []orders.LineItem `json:"i"`
	Totals   orders.Totals     `json:"t"`
}

func (o *Orchestrator) log() *zap.Logger { return logger.OrNop(o.Log) }

func (o *Orchestrator) now() time.Time {
	if o.Now != nil {
		return o.Now().UTC()
	}
	return time.Now().UTC()
}

// ConfiguredFlow is deferred when a payment provider is configured and
// direct otherwise. Callers cannot pick a different one.
func (o *Orchestrator) ConfiguredFlow() Flow {
	if o.Payments != nil {
		return FlowDeferred
	}
	return FlowDirect
}

// Checkout validates, prices and then either places the order right away
// (direct) or opens a payment session (deferred). Stock is only touched when
// the order is created.
func (o *Orchestrator) Checkout(ctx context.Context, req Request) (*Result, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	flow := o.ConfiguredFlow()
	if req.Flow != "" && req.Flow != flow {
		return nil, apperr.New(apperr.KindValidation, "%s checkout is not available, this store uses %s checkout", req.Flow, flow)
	}

	if flow == FlowDirect && req.IdempotencyKey != "" {
		if prev, err := o.replay(ctx, req.IdempotencyKey); err != nil || prev != nil {
			return prev, err
		}
	}

	quote, err := o.price(ctx, req)
	if err != nil {
		return nil, err
	}
	if flow == FlowDeferred {
		return o.openSession(ctx, req, quote)
	}
	return o.placeDirect(ctx, req, quote)
}

func (o *Orchestrator) price(ctx context.Context, req Request) (*pricing.Quote, error) {
	lines := make([]pricing.CartLine, len(req.Items))
	for i, it := range req.Items {
		lines[i] = pricing.CartLine{ProductID: it.ProductID, VariantSKU: it.VariantSKU, Quantity: it.Quantity}
	}
	var q *pricing.Quote
	err := o.Retry.Do(ctx, o.log(), "price", func(ctx context.Context) error {
		var err error
		q, err = o.Pricing.Price(ctx, lines, o.Catalog)
		return err
	})
	return q, err
}

func (o *Orchestrator) replay(ctx context.Context, key string) (*Result, error) {
	var (
		prev *orders.Order
		err  error
	)
	if o.Idem != nil {
		if number, ok := o.Idem.Lookup(ctx, key); ok {
			prev, err = o.Orders.FindByNumber(ctx, number)
		}
	}
	if prev == nil {
		prev, err = o.Orders.FindByExternalID(ctx, key)
	}
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &Result{Flow: FlowDirect, Order: prev, OrderNumber: prev.Number, Replayed: true}, nil
}

func (o *Orchestrator) placeDirect(ctx context.Context, req Request, q *pricing.Quote) (*Result, error) {
	n := orders.NewOrder{
		Customer:        orders.Customer{Name: req.CustomerName, Email: req.CustomerEmail, ID: req.CustomerID},
		ShippingAddress: addressOf(req.ShippingAddress),
		Items:           lineItemsOf(q),
		Totals:          orders.Totals{Subtotal: q.Subtotal, Shipping: q.Shipping, Tax: q.Tax, Total: q.Total},
		Status:          orders.StatusProcessing,
		ExternalID:      req.IdempotencyKey,
	}
	order, err := o.place(ctx, n, stockLinesOf(n.Items), nil)
	if errors.Is(err, orders.ErrDuplicateExternalID) {
		// a concurrent request with the same key won
		return o.replay(ctx, req.IdempotencyKey)
	}
	if err != nil {
		return nil, err
	}
	if req.IdempotencyKey != "" && o.Idem != nil {
		o.Idem.Remember(ctx, req.IdempotencyKey, order.Number)
	}
	o.afterPlaced(ctx, order)
	return &Result{Flow: FlowDirect, Order: order, OrderNumber: order.Number}, nil
}

type claim struct {
	sessionID, intentID string
}

var errAlreadyClaimed = apperr.New(apperr.KindConflict, "payment session already claimed")

// place reserves stock and writes the order in one transaction. With a
// claim, the payment session is recorded first and a second claimer gets
// errAlreadyClaimed without touching stock.
func (o *Orchestrator) place(ctx context.Context, n orders.NewOrder, lines []inventory.StockLine, c *claim) (*orders.Order, error) {
	var order *orders.Order
	err := o.Retry.Do(ctx, o.log(), "place order", func(ctx context.Context) error {
		return o.Tx.InTx(ctx, func(ctx context.Context, tx Tx) error {
			if c != nil {
				first, err := tx.Sessions().Claim(ctx, c.sessionID, n.Number, c.intentID)
				if err != nil {
					return err
				}
				if !first {
					return errAlreadyClaimed
				}
			}
			if err := inventory.Reserve(ctx, tx.Stock(), lines); err != nil {
				return err
			}
			var err error
			if order, err = o.Orders.CreateWith(ctx, tx.Orders(), n); err != nil {
				return err
			}
			if c != nil && order.Number != n.Number {
				// the pre-assigned number collided and was replaced
				return tx.Sessions().Bind(ctx, c.sessionID, order.Number)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

func (o *Orchestrator) afterPlaced(ctx context.Context, order *orders.Order) {
	o.log().Info("order placed", zap.String("order_number", order.Number),
		zap.String("total", order.Total.StringFixed(2)), zap.Int("lines", len(order.Items)),
		zap.String("session_id", order.PaymentSessionID))
	if o.Inventory != nil {
		o.Inventory.CheckLevelsAfter(ctx, productIDs(order.Items)...)
	}
	o.Orders.SendConfirmation(ctx, order)
}

func (o *Orchestrator) openSession(ctx context.Context, req Request, q *pricing.Quote) (*Result, error) {
	pending := pendingCheckout{
		Number:   orders.NewNumber(o.now()),
		Customer: orders.Customer{Name: req.CustomerName, Email: req.CustomerEmail, ID: req.CustomerID},
		Address:  addressOf(req.ShippingAddress),
		Items:    lineItemsOf(q),
		Totals:   orders.Totals{Subtotal: q.Subtotal, Shipping: q.Shipping, Tax: q.Tax, Total: q.Total},
	}
	blob, err := json.Marshal(pending)
	if err != nil {
		return nil, fmt.Errorf("encode checkout: %w", err)
	}
	md := map[string]string{metaOrderNumber: pending.Number, metaEmail: req.CustomerEmail}
	payment.ChunkMetadata(md, metaCheckout, string(blob))

	sreq := payment.SessionRequest{
		OrderNumber:   pending.Number,
		CustomerEmail: req.CustomerEmail,
		Currency:      o.Currency,
		Items:         paymentItemsOf(q),
		Metadata:      md,
		SuccessURL:    o.FrontendURL + "/checkout/success?session_id={CHECKOUT_SESSION_ID}",
		CancelURL:     o.FrontendURL + "/checkout",
	}
	var s *payment.Session
	err = o.Retry.Do(ctx, o.log(), "create payment session", func(ctx context.Context) error {
		var err error
		s, err = o.Payments.CreateSession(ctx, sreq)
		return err
	})
	if err != nil {
		return nil, err
	}
	o.log().Info("payment session opened", zap.String("order_number", pending.Number),
		zap.String("session_id", s.ID), zap.String("total", q.Total.StringFixed(2)))
	return &Result{Flow: FlowDeferred, Session: s, OrderNumber: pending.Number}, nil
}

// ConfirmPayment verifies a provider webhook delivery and finalizes the order.
func (o *Orchestrator) ConfirmPayment(ctx context.Context, payload []byte, signature string) (*Confirmation, error) {
	if o.Payments == nil {
		return nil, apperr.New(apperr.KindValidation, "no payment provider configured")
	}
	ev, err := o.Payments.ParseEvent(payload, signature)
	if err != nil {
		o.log().Warn("webhook rejected", zap.Error(err))
		return nil, err
	}
	if ev == nil {
		return &Confirmation{Ignored: true}, nil
	}
	return o.Finalize(ctx, *ev)
}

// Finalize creates the order for a paid session exactly once.
func (o *Orchestrator) Finalize(ctx context.Context, ev payment.CompletedEvent) (*Confirmation, error) {
	if o.Dedup != nil && o.Dedup.Seen(ctx, ev.SessionID) {
		if prev, err := o.Orders.FindBySession(ctx, ev.SessionID); err == nil {
			return &Confirmation{Order: prev, Duplicate: true}, nil
		}
	}

	pending, err := decodePending(ev.Metadata)
	if err != nil {
		o.log().Warn("webhook metadata rejected", zap.String("session_id", ev.SessionID), zap.Error(err))
		return nil, err
	}

	n := orders.NewOrder{
		Number:           pending.Number,
		Customer:         pending.Customer,
		ShippingAddress:  pending.Address,
		Items:            pending.Items,
		Totals:           pending.Totals,
		Status:           orders.StatusProcessing,
		PaymentSessionID: ev.SessionID,
		PaymentIntentID:  ev.PaymentIntentID,
	}
	order, err := o.place(ctx, n, stockLinesOf(n.Items), &claim{sessionID: ev.SessionID, intentID: ev.PaymentIntentID})
	switch {
	case errors.Is(err, errAlreadyClaimed), errors.Is(err, orders.ErrDuplicateSession):
		if o.Dedup != nil {
			o.Dedup.Mark(ctx, ev.SessionID)
		}
		prev, ferr := o.Orders.FindBySession(ctx, ev.SessionID)
		if ferr != nil {
			return nil, ferr
		}
		return &Confirmation{Order: prev, Duplicate: true}, nil
	case errors.Is(err, apperr.ErrInsufficientStock), errors.Is(err, apperr.ErrVariantNotFound):
		o.log().Error("paid checkout cannot be fulfilled", zap.String("session_id", ev.SessionID),
			zap.String("order_number", pending.Number), zap.String("payment_intent_id", ev.PaymentIntentID), zap.Error(err))
		return nil, err
	case err != nil:
		return nil, err
	}

	if o.Dedup != nil {
		o.Dedup.Mark(ctx, ev.SessionID)
	}
	o.afterPlaced(ctx, order)
	return &Confirmation{Order: order}, nil
}

// SessionOrder is the success-page lookup.
func (o *Orchestrator) SessionOrder(ctx context.Context, sessionID string) (*orders.Order, error) {
	return o.Orders.FindBySession(ctx, sessionID)
}

func decodePending(md map[string]string) (*pendingCheckout, error) {
	blob, err := payment.JoinMetadata(md, metaCheckout)
	if err != nil {
		return nil, err
	}
	var p pendingCheckout
	if err := json.Unmarshal([]byte(blob), &p); err != nil {
		return nil, apperr.Wrap(apperr.KindValidation, err, "decode checkout metadata")
	}
	if p.Number == "" || p.Number != md[metaOrderNumber] {
		return nil, apperr.New(apperr.KindValidation, "checkout metadata order number mismatch")
	}
	if len(p.Items) == 0 || p.Customer.Email == "" {
		return nil, apperr.New(apperr.KindValidation, "checkout metadata incomplete")
	}
	for i, it := range p.Items {
		if it.ProductID == "" || it.SKU == "" || it.Quantity < 1 || it.Quantity > MaxQuantity {
			return nil, apperr.New(apperr.KindValidation, "checkout metadata line %d invalid", i+1)
		}
	}
	return &p, nil
}

func addressOf(a Address) orders.Address {
	return orders.Address{Line1: a.Line1, Line2: a.Line2, City: a.City, State: a.State, Zip: a.Zip, Country: a.Country}
}

func lineItemsOf(q *pricing.Quote) []orders.LineItem {
	out := make([]orders.LineItem, len(q.Lines))
	for i, l := range q.Lines {
		out[i] = orders.LineItem{
			ProductID: l.ProductID,
			Title:     l.Title,
			UnitPrice: l.UnitPrice,
			Quantity:  l.Quantity,
			Color:     l.Color,
			Size:      l.Size,
			SKU:       l.SKU,
			Image:     l.Image,
		}
	}
	return out
}

func stockLinesOf(items []orders.LineItem) []inventory.StockLine {
	out := make([]inventory.StockLine, len(items))
	for i, it := range items {
		name := it.Title
		if it.Color != "" || it.Size != "" {
			name = fmt.Sprintf("%s (%s/%s)", it.Title, it.Color, it.Size)
		}
		out[i] = inventory.StockLine{Line: i + 1, ProductID: it.ProductID, SKU: it.SKU, Name: name, Quantity: it.Quantity}
	}
	return out
}

func paymentItemsOf(q *pricing.Quote) []payment.LineItem {
	out := make([]payment.LineItem, 0, len(q.Lines)+2)
	for _, l := range q.Lines {
		var desc string
		if l.Color != "" || l.Size != "" {
			desc = l.Color + " / " + l.Size
		}
		out = append(out, payment.LineItem{
			Name: l.Title, Description: desc, Image: l.Image, UnitAmount: l.UnitPrice, Quantity: l.Quantity,
		})
	}
	if q.Shipping.GreaterThan(decimal.Zero) {
		out = append(out, payment.LineItem{Name: "Shipping", UnitAmount: q.Shipping, Quantity: 1})
	}
	if q.Tax.GreaterThan(decimal.Zero) {
		out = append(out, payment.LineItem{Name: "Tax", UnitAmount: q.Tax, Quantity: 1})
	}
	return out
}

func productIDs(items []orders.LineItem) []string {
	seen := make(map[string]bool, len(items))
	var out []string
	for _, it := range items {
		if !seen[it.ProductID] {
			seen[it.ProductID] = true
			out = append(out, it.ProductID)
		}
	}
	return out
}
