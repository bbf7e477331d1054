// Package memstore keeps the whole storefront in process memory. It backs
// STORE_BACKEND=memory and the service-level tests.
package memstore

import (
	"context"
	"sync"
	"time"

	"github.com/ariefcatur/go-storefront-orders/internal/catalog"
	"github.com/ariefcatur/go-storefront-orders/internal/checkout"
	"github.com/ariefcatur/go-storefront-orders/internal/inventory"
	"github.com/ariefcatur/go-storefront-orders/internal/orders"
)

// Store is safe for concurrent use. Transactions hold the lock for their
// whole duration and restore a snapshot when fn fails.
type Store struct {
	mu sync.Mutex
	st *state
}

func New() *Store { return &Store{st: newState()} }

// Seed replaces or adds products.
func (s *Store) Seed(products ...catalog.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range products {
		s.st.products[products[i].ID] = copyProduct(&products[i])
	}
}

// Stock reports the current level of a variant, -1 when unknown.
func (s *Store) Stock(productID, sku string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, err := s.st.variant(productID, sku)
	if err != nil {
		return -1
	}
	return v.Stock
}

func (s *Store) OrderCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.st.orders)
}

// ClaimedOrder returns the order number recorded for a payment session.
func (s *Store) ClaimedOrder(sessionID string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.st.sessions[sessionID]
	return c.orderNumber, ok
}

func (s *Store) ReorderEvents() []inventory.ReorderEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]inventory.ReorderEvent(nil), s.st.reorders...)
}

func (s *Store) inTx(ctx context.Context, fn func(st *state) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	snapshot := s.st.clone()
	err := fn(s.st)
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		s.st = snapshot
	}
	return err
}

type inventoryTx struct{ s *Store }

func (t inventoryTx) InTx(ctx context.Context, fn func(ctx context.Context, s inventory.Store) error) error {
	return t.s.inTx(ctx, func(st *state) error { return fn(ctx, st) })
}

type checkoutTx struct{ s *Store }

func (t checkoutTx) InTx(ctx context.Context, fn func(ctx context.Context, tx checkout.Tx) error) error {
	return t.s.inTx(ctx, func(st *state) error { return fn(ctx, st) })
}

func (s *Store) InventoryTx() inventory.Transactor { return inventoryTx{s} }
func (s *Store) CheckoutTx() checkout.Transactor   { return checkoutTx{s} }

func lock[T any](s *Store, fn func(st *state) (T, error)) (T, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.st)
}

// catalog.Store

func (s *Store) GetProduct(ctx context.Context, id string) (*catalog.Product, error) {
	return lock(s, func(st *state) (*catalog.Product, error) { return st.GetProduct(ctx, id) })
}

func (s *Store) ListActiveProductIDs(ctx context.Context) ([]string, error) {
	return lock(s, func(st *state) ([]string, error) { return st.ListActiveProductIDs(ctx) })
}

// inventory.Store

func (s *Store) DecrementStock(ctx context.Context, productID, sku string, qty int) (int, error) {
	return lock(s, func(st *state) (int, error) { return st.DecrementStock(ctx, productID, sku, qty) })
}

func (s *Store) IncrementStock(ctx context.Context, productID, sku string, qty int) (int, error) {
	return lock(s, func(st *state) (int, error) { return st.IncrementStock(ctx, productID, sku, qty) })
}

func (s *Store) LockStock(ctx context.Context, productID, sku string) (int, error) {
	return lock(s, func(st *state) (int, error) { return st.LockStock(ctx, productID, sku) })
}

func (s *Store) OpenAlerts(ctx context.Context, productID, sku string) ([]inventory.Alert, error) {
	return lock(s, func(st *state) ([]inventory.Alert, error) { return st.OpenAlerts(ctx, productID, sku) })
}

func (s *Store) InsertAlert(ctx context.Context, a *inventory.Alert) (bool, error) {
	return lock(s, func(st *state) (bool, error) { return st.InsertAlert(ctx, a) })
}

func (s *Store) ResolveAlerts(ctx context.Context, productID, sku string, types []inventory.AlertType, at time.Time) (int, error) {
	return lock(s, func(st *state) (int, error) { return st.ResolveAlerts(ctx, productID, sku, types, at) })
}

func (s *Store) GetAlert(ctx context.Context, id string) (*inventory.Alert, error) {
	return lock(s, func(st *state) (*inventory.Alert, error) { return st.GetAlert(ctx, id) })
}

func (s *Store) ResolveAlert(ctx context.Context, id string, as inventory.AlertType, at time.Time) (bool, error) {
	return lock(s, func(st *state) (bool, error) { return st.ResolveAlert(ctx, id, as, at) })
}

func (s *Store) SetAutoReorder(ctx context.Context, id string, enabled bool, qty int) error {
	_, err := lock(s, func(st *state) (struct{}, error) { return struct{}{}, st.SetAutoReorder(ctx, id, enabled, qty) })
	return err
}

func (s *Store) MarkNotified(ctx context.Context, id string, at time.Time) error {
	_, err := lock(s, func(st *state) (struct{}, error) { return struct{}{}, st.MarkNotified(ctx, id, at) })
	return err
}

func (s *Store) ListOpen(ctx context.Context) ([]inventory.Alert, error) {
	return lock(s, func(st *state) ([]inventory.Alert, error) { return st.ListOpen(ctx) })
}

func (s *Store) History(ctx context.Context, limit int) ([]inventory.Alert, error) {
	return lock(s, func(st *state) ([]inventory.Alert, error) { return st.History(ctx, limit) })
}

func (s *Store) CountResolved(ctx context.Context) (int, error) {
	return lock(s, func(st *state) (int, error) { return st.CountResolved(ctx) })
}

func (s *Store) ListAutoReorder(ctx context.Context) ([]inventory.Alert, error) {
	return lock(s, func(st *state) ([]inventory.Alert, error) { return st.ListAutoReorder(ctx) })
}

func (s *Store) InsertReorderEvent(ctx context.Context, e inventory.ReorderEvent) error {
	_, err := lock(s, func(st *state) (struct{}, error) { return struct{}{}, st.InsertReorderEvent(ctx, e) })
	return err
}

// orders.Store

func (s *Store) Insert(ctx context.Context, o *orders.Order) error {
	_, err := lock(s, func(st *state) (struct{}, error) { return struct{}{}, st.Insert(ctx, o) })
	return err
}

func (s *Store) Get(ctx context.Context, number string) (*orders.Order, error) {
	return lock(s, func(st *state) (*orders.Order, error) { return st.Get(ctx, number) })
}

func (s *Store) GetByExternalID(ctx context.Context, externalID string) (*orders.Order, error) {
	return lock(s, func(st *state) (*orders.Order, error) { return st.GetByExternalID(ctx, externalID) })
}

func (s *Store) GetBySession(ctx context.Context, sessionID string) (*orders.Order, error) {
	return lock(s, func(st *state) (*orders.Order, error) { return st.GetBySession(ctx, sessionID) })
}

func (s *Store) ListByEmail(ctx context.Context, email string) ([]orders.Order, error) {
	return lock(s, func(st *state) ([]orders.Order, error) { return st.ListByEmail(ctx, email) })
}

func (s *Store) UpdateStatus(ctx context.Context, number string, from, to orders.Status, tracking *orders.Tracking, at time.Time) (bool, error) {
	return lock(s, func(st *state) (bool, error) { return st.UpdateStatus(ctx, number, from, to, tracking, at) })
}

var (
	_ catalog.Store   = (*Store)(nil)
	_ inventory.Store = (*Store)(nil)
	_ orders.Store    = (*Store)(nil)
	_ checkout.Tx     = (*state)(nil)
)
