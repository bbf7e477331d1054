package memstore

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/ariefcatur/go-storefront-orders/internal/apperr"
	"github.com/ariefcatur/go-storefront-orders/internal/catalog"
	"github.com/ariefcatur/go-storefront-orders/internal/checkout"
	"github.com/ariefcatur/go-storefront-orders/internal/inventory"
	"github.com/ariefcatur/go-storefront-orders/internal/orders"
)

type sessionClaim struct {
	orderNumber, intentID string
	at                    time.Time
}

// state holds all data and implements every store interface without
// locking. Store serializes access to it.
type state struct {
	products map[string]*catalog.Product
	alerts   map[string]*inventory.Alert
	alertSeq map[string]int
	reorders []inventory.ReorderEvent
	orders   map[string]*orders.Order
	sessions map[string]sessionClaim
	seq      int
}

func newState() *state {
	return &state{
		products: map[string]*catalog.Product{},
		alerts:   map[string]*inventory.Alert{},
		alertSeq: map[string]int{},
		orders:   map[string]*orders.Order{},
		sessions: map[string]sessionClaim{},
	}
}

func copyProduct(p *catalog.Product) *catalog.Product {
	cp := *p
	cp.Images = append([]string(nil), p.Images...)
	cp.Variants = append([]catalog.Variant(nil), p.Variants...)
	return &cp
}

func copyAlert(a *inventory.Alert) *inventory.Alert {
	cp := *a
	if a.ResolvedAt != nil {
		t := *a.ResolvedAt
		cp.ResolvedAt = &t
	}
	if a.NotifiedAt != nil {
		t := *a.NotifiedAt
		cp.NotifiedAt = &t
	}
	return &cp
}

func copyOrder(o *orders.Order) *orders.Order {
	cp := *o
	cp.Items = append([]orders.LineItem(nil), o.Items...)
	return &cp
}

func (s *state) clone() *state {
	c := newState()
	for k, p := range s.products {
		c.products[k] = copyProduct(p)
	}
	for k, a := range s.alerts {
		c.alerts[k] = copyAlert(a)
	}
	for k, v := range s.alertSeq {
		c.alertSeq[k] = v
	}
	c.reorders = append([]inventory.ReorderEvent(nil), s.reorders...)
	for k, o := range s.orders {
		c.orders[k] = copyOrder(o)
	}
	for k, v := range s.sessions {
		c.sessions[k] = v
	}
	c.seq = s.seq
	return c
}

// catalog

func (s *state) GetProduct(_ context.Context, id string) (*catalog.Product, error) {
	p, ok := s.products[id]
	if !ok {
		return nil, catalog.ErrProductNotFound
	}
	return copyProduct(p), nil
}

func (s *state) ListActiveProductIDs(context.Context) ([]string, error) {
	var out []string
	for id, p := range s.products {
		if p.IsActive {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out, nil
}

// stock

func (s *state) variant(productID, sku string) (*catalog.Variant, error) {
	if p, ok := s.products[productID]; ok {
		if v, ok := p.Variant(sku); ok {
			return v, nil
		}
	}
	return nil, apperr.New(apperr.KindVariantNotFound, "variant not found: %s/%s", productID, sku)
}

func (s *state) DecrementStock(_ context.Context, productID, sku string, qty int) (int, error) {
	v, err := s.variant(productID, sku)
	if err != nil {
		return 0, err
	}
	if v.Stock < qty {
		return 0, apperr.InsufficientStock(productID+"/"+sku, v.Stock)
	}
	v.Stock -= qty
	return v.Stock, nil
}

func (s *state) IncrementStock(_ context.Context, productID, sku string, qty int) (int, error) {
	v, err := s.variant(productID, sku)
	if err != nil {
		return 0, err
	}
	v.Stock += qty
	return v.Stock, nil
}

func (s *state) LockStock(_ context.Context, productID, sku string) (int, error) {
	v, err := s.variant(productID, sku)
	if err != nil {
		return 0, err
	}
	return v.Stock, nil
}

// alerts

func (s *state) sortedAlerts(keep func(*inventory.Alert) bool, newestFirst bool) []inventory.Alert {
	var out []inventory.Alert
	for _, a := range s.alerts {
		if keep(a) {
			out = append(out, *copyAlert(a))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		si, sj := s.alertSeq[out[i].ID], s.alertSeq[out[j].ID]
		if newestFirst {
			return si > sj
		}
		return si < sj
	})
	return out
}

func (s *state) OpenAlerts(_ context.Context, productID, sku string) ([]inventory.Alert, error) {
	return s.sortedAlerts(func(a *inventory.Alert) bool {
		return !a.IsResolved && a.ProductID == productID && a.VariantSKU == sku
	}, false), nil
}

func (s *state) InsertAlert(_ context.Context, a *inventory.Alert) (bool, error) {
	for _, x := range s.alerts {
		if !x.IsResolved && x.ProductID == a.ProductID && x.VariantSKU == a.VariantSKU && x.Type == a.Type {
			return false, nil
		}
	}
	s.seq++
	s.alerts[a.ID] = copyAlert(a)
	s.alertSeq[a.ID] = s.seq
	return true, nil
}

func resolve(a *inventory.Alert, at time.Time) {
	t := at
	a.IsResolved, a.ResolvedAt, a.UpdatedAt = true, &t, at
}

func (s *state) ResolveAlerts(_ context.Context, productID, sku string, types []inventory.AlertType, at time.Time) (int, error) {
	n := 0
	for _, a := range s.alerts {
		if a.IsResolved || a.ProductID != productID || a.VariantSKU != sku {
			continue
		}
		for _, t := range types {
			if a.Type == t {
				resolve(a, at)
				n++
				break
			}
		}
	}
	return n, nil
}

func (s *state) GetAlert(_ context.Context, id string) (*inventory.Alert, error) {
	a, ok := s.alerts[id]
	if !ok {
		return nil, apperr.New(apperr.KindAlertNotFound, "alert not found: %s", id)
	}
	return copyAlert(a), nil
}

func (s *state) ResolveAlert(_ context.Context, id string, as inventory.AlertType, at time.Time) (bool, error) {
	a, ok := s.alerts[id]
	if !ok {
		return false, apperr.New(apperr.KindAlertNotFound, "alert not found: %s", id)
	}
	if a.IsResolved {
		return false, nil
	}
	resolve(a, at)
	if as != "" {
		a.Type = as
	}
	return true, nil
}

func (s *state) SetAutoReorder(_ context.Context, id string, enabled bool, qty int) error {
	a, ok := s.alerts[id]
	if !ok {
		return apperr.New(apperr.KindAlertNotFound, "alert not found: %s", id)
	}
	a.AutoReorder, a.ReorderQuantity = enabled, qty
	return nil
}

func (s *state) MarkNotified(_ context.Context, id string, at time.Time) error {
	if a, ok := s.alerts[id]; ok {
		t := at
		a.NotifiedAt = &t
	}
	return nil
}

func (s *state) ListOpen(context.Context) ([]inventory.Alert, error) {
	return s.sortedAlerts(func(a *inventory.Alert) bool { return !a.IsResolved }, true), nil
}

func (s *state) History(_ context.Context, limit int) ([]inventory.Alert, error) {
	out := s.sortedAlerts(func(*inventory.Alert) bool { return true }, true)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *state) CountResolved(context.Context) (int, error) {
	n := 0
	for _, a := range s.alerts {
		if a.IsResolved {
			n++
		}
	}
	return n, nil
}

func (s *state) ListAutoReorder(context.Context) ([]inventory.Alert, error) {
	return s.sortedAlerts(func(a *inventory.Alert) bool {
		return !a.IsResolved && a.AutoReorder &&
			(a.Type == inventory.AlertLowStock || a.Type == inventory.AlertOutOfStock)
	}, false), nil
}

func (s *state) InsertReorderEvent(_ context.Context, e inventory.ReorderEvent) error {
	s.reorders = append(s.reorders, e)
	return nil
}

// orders

func (s *state) Insert(_ context.Context, o *orders.Order) error {
	if _, ok := s.orders[o.Number]; ok {
		return apperr.New(apperr.KindDuplicateOrderNumber, "order number %s already exists", o.Number)
	}
	for _, x := range s.orders {
		if o.ExternalID != "" && x.ExternalID == o.ExternalID {
			return orders.ErrDuplicateExternalID
		}
		if o.PaymentSessionID != "" && x.PaymentSessionID == o.PaymentSessionID {
			return orders.ErrDuplicateSession
		}
	}
	s.orders[o.Number] = copyOrder(o)
	return nil
}

func (s *state) find(what string, match func(*orders.Order) bool) (*orders.Order, error) {
	for _, o := range s.orders {
		if match(o) {
			return copyOrder(o), nil
		}
	}
	return nil, apperr.New(apperr.KindNotFound, "order not found: %s", what)
}

func (s *state) Get(_ context.Context, number string) (*orders.Order, error) {
	if o, ok := s.orders[number]; ok {
		return copyOrder(o), nil
	}
	return nil, apperr.New(apperr.KindNotFound, "order not found: %s", number)
}

func (s *state) GetByExternalID(_ context.Context, externalID string) (*orders.Order, error) {
	return s.find(externalID, func(o *orders.Order) bool { return externalID != "" && o.ExternalID == externalID })
}

func (s *state) GetBySession(_ context.Context, sessionID string) (*orders.Order, error) {
	return s.find(sessionID, func(o *orders.Order) bool { return sessionID != "" && o.PaymentSessionID == sessionID })
}

func (s *state) ListByEmail(_ context.Context, email string) ([]orders.Order, error) {
	var out []orders.Order
	for _, o := range s.orders {
		if strings.EqualFold(o.Customer.Email, email) {
			out = append(out, *copyOrder(o))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].Number > out[j].Number
	})
	return out, nil
}

func (s *state) UpdateStatus(_ context.Context, number string, from, to orders.Status, tracking *orders.Tracking, at time.Time) (bool, error) {
	o, ok := s.orders[number]
	if !ok || o.Status != from {
		return false, nil
	}
	o.Status, o.UpdatedAt = to, at
	if tracking != nil {
		if tracking.Carrier != "" {
			o.Tracking.Carrier = tracking.Carrier
		}
		if tracking.Number != "" {
			o.Tracking.Number = tracking.Number
		}
	}
	return true, nil
}

// payment sessions

func (s *state) Claim(_ context.Context, sessionID, orderNumber, intentID string) (bool, error) {
	if _, ok := s.sessions[sessionID]; ok {
		return false, nil
	}
	s.sessions[sessionID] = sessionClaim{orderNumber: orderNumber, intentID: intentID, at: time.Now().UTC()}
	return true, nil
}

func (s *state) Bind(_ context.Context, sessionID, orderNumber string) error {
	c, ok := s.sessions[sessionID]
	if !ok {
		return apperr.New(apperr.KindNotFound, "payment session not claimed: %s", sessionID)
	}
	c.orderNumber = orderNumber
	s.sessions[sessionID] = c
	return nil
}

// checkout.Tx

func (s *state) Stock() inventory.StockStore     { return s }
func (s *state) Orders() orders.Store            { return s }
func (s *state) Sessions() checkout.SessionStore { return s }
