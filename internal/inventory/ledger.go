// Package inventory owns stock levels and the alerts derived from them.
package inventory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ariefcatur/go-storefront-orders/internal/apperr"
	"github.com/ariefcatur/go-storefront-orders/internal/catalog"
	"github.com/ariefcatur/go-storefront-orders/internal/logger"
	"github.com/ariefcatur/go-storefront-orders/internal/notify"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	DefaultThreshold  = 10
	DefaultReorderQty = 50
	historyLimit      = 100
)

type AlertNotifier interface {
	SendInventoryAlert(ctx context.Context, n notify.InventoryAlert) error
}

type Ledger struct {
	Store    Store
	Tx       Transactor
	Catalog  catalog.Store
	Notifier AlertNotifier // optional

	Threshold         int
	DefaultReorderQty int
	Log               *zap.Logger
	Now               func() time.Time
}

func (l *Ledger) now() time.Time {
	if l.Now != nil {
		return l.Now().UTC()
	}
	return time.Now().UTC()
}

func (l *Ledger) threshold() int {
	if l.Threshold > 0 {
		return l.Threshold
	}
	return DefaultThreshold
}

func (l *Ledger) reorderQty() int {
	if l.DefaultReorderQty > 0 {
		return l.DefaultReorderQty
	}
	return DefaultReorderQty
}

func (l *Ledger) log() *zap.Logger { return logger.OrNop(l.Log) }

// Decrement takes qty units off a variant and re-evaluates alerts for the
// product. Alert failures are logged; the decrement stands.
func (l *Ledger) Decrement(ctx context.Context, productID, sku string, qty int) (int, error) {
	if qty <= 0 {
		return 0, apperr.New(apperr.KindValidation, "quantity must be positive")
	}
	stock, err := l.Store.DecrementStock(ctx, productID, sku, qty)
	if err != nil {
		return 0, err
	}
	l.CheckLevelsAfter(ctx, productID)
	return stock, nil
}

// Increment restocks a variant and closes its low/out-of-stock alerts.
func (l *Ledger) Increment(ctx context.Context, productID, sku string, qty int) (int, error) {
	if qty <= 0 {
		return 0, apperr.New(apperr.KindValidation, "quantity must be positive")
	}
	var stock int
	err := l.Tx.InTx(ctx, func(ctx context.Context, s Store) error {
		var err error
		if stock, err = s.IncrementStock(ctx, productID, sku, qty); err != nil {
			return err
		}
		_, err = s.ResolveAlerts(ctx, productID, sku, []AlertType{AlertLowStock, AlertOutOfStock}, l.now())
		return err
	})
	if err != nil {
		return 0, err
	}
	l.log().Info("restocked", zap.String("product_id", productID), zap.String("sku", sku),
		zap.Int("quantity", qty), zap.Int("stock", stock))
	return stock, nil
}

// CheckLevelsAfter runs CheckLevels for each product and only logs failures.
// Used after a committed checkout, where the sale must not be undone.
func (l *Ledger) CheckLevelsAfter(ctx context.Context, productIDs ...string) {
	for _, id := range productIDs {
		if err := l.CheckLevels(ctx, id); err != nil {
			l.log().Warn("inventory check failed", zap.String("product_id", id), zap.Error(err))
		}
	}
}

// CheckLevels reconciles the open alerts of every variant of a product with
// its current stock. Running it twice on unchanged stock is a no-op.
func (l *Ledger) CheckLevels(ctx context.Context, productID string) error {
	p, err := l.Catalog.GetProduct(ctx, productID)
	if errors.Is(err, catalog.ErrProductNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	for i := range p.Variants {
		raised, err := l.reconcile(ctx, p.ID, p.Variants[i].SKU)
		if err != nil {
			return err
		}
		for _, a := range raised {
			l.announce(ctx, p, &p.Variants[i], a)
		}
	}
	return nil
}

// reconcile compares one variant's alerts with its stock while holding the
// stock row, so a concurrent restock cannot slip in between the read and the
// alert writes. It returns the alerts it created.
func (l *Ledger) reconcile(ctx context.Context, productID, sku string) ([]*Alert, error) {
	var raised []*Alert
	err := l.Tx.InTx(ctx, func(ctx context.Context, s Store) error {
		raised = raised[:0]
		stock, err := s.LockStock(ctx, productID, sku)
		if errors.Is(err, apperr.ErrVariantNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		open, err := s.OpenAlerts(ctx, productID, sku)
		if err != nil {
			return err
		}
		has := map[AlertType]bool{}
		for _, a := range open {
			has[a.Type] = true
		}

		raise := func(t AlertType) error {
			a, err := l.insert(ctx, s, productID, sku, t, stock)
			if a != nil {
				raised = append(raised, a)
			}
			return err
		}
		switch {
		case stock == 0:
			if !has[AlertOutOfStock] {
				return raise(AlertOutOfStock)
			}
		case stock <= l.threshold():
			if has[AlertOutOfStock] {
				if _, err := s.ResolveAlerts(ctx, productID, sku, []AlertType{AlertOutOfStock}, l.now()); err != nil {
					return err
				}
			}
			if !has[AlertLowStock] {
				return raise(AlertLowStock)
			}
		default:
			if has[AlertLowStock] || has[AlertOutOfStock] {
				_, err := s.ResolveAlerts(ctx, productID, sku, []AlertType{AlertLowStock, AlertOutOfStock}, l.now())
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return raised, nil
}

// insert returns nil when an open alert of the same type already exists.
func (l *Ledger) insert(ctx context.Context, s Store, productID, sku string, t AlertType, stock int) (*Alert, error) {
	now := l.now()
	a := &Alert{
		ID:              uuid.NewString(),
		ProductID:       productID,
		VariantSKU:      sku,
		Type:            t,
		Threshold:       l.threshold(),
		CurrentStock:    stock,
		ReorderQuantity: l.reorderQty(),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	inserted, err := s.InsertAlert(ctx, a)
	if err != nil {
		return nil, fmt.Errorf("insert %s alert %s/%s: %w", t, productID, sku, err)
	}
	if !inserted {
		return nil, nil
	}
	return a, nil
}

// announce logs and sends a committed alert. Notification failures are
// only logged.
func (l *Ledger) announce(ctx context.Context, p *catalog.Product, v *catalog.Variant, a *Alert) {
	l.log().Info("inventory alert raised", zap.String("product_id", p.ID), zap.String("sku", v.SKU),
		zap.String("type", string(a.Type)), zap.Int("stock", a.CurrentStock))

	if l.Notifier == nil {
		return
	}
	err := l.Notifier.SendInventoryAlert(ctx, notify.InventoryAlert{
		ProductID:    p.ID,
		ProductTitle: p.Title,
		VariantSKU:   v.SKU,
		AlertType:    string(a.Type),
		Stock:        a.CurrentStock,
		Threshold:    a.Threshold,
	})
	if err != nil {
		l.log().Warn("inventory alert notification failed", zap.String("alert_id", a.ID), zap.Error(err))
		return
	}
	if err := l.Store.MarkNotified(ctx, a.ID, l.now()); err != nil {
		l.log().Warn("mark alert notified", zap.String("alert_id", a.ID), zap.Error(err))
	}
}

type ReorderResult struct {
	Alert    *Alert `json:"alert"`
	NewStock int    `json:"newStock"`
}

// AutoReorder restocks the variant of an auto-reorder alert by its reorder
// quantity and closes the alert as a reorder.
func (l *Ledger) AutoReorder(ctx context.Context, alertID string) (*ReorderResult, error) {
	if _, err := uuid.Parse(alertID); err != nil {
		return nil, apperr.New(apperr.KindAlertNotFound, "alert not found: %s", alertID)
	}
	var res ReorderResult
	err := l.Tx.InTx(ctx, func(ctx context.Context, s Store) error {
		a, err := s.GetAlert(ctx, alertID)
		if err != nil {
			return err
		}
		if a.IsResolved {
			return apperr.New(apperr.KindAlertAlreadyResolved, "alert already resolved: %s", alertID)
		}
		if !a.AutoReorder {
			return apperr.New(apperr.KindValidation, "auto-reorder is not enabled for alert %s", alertID)
		}
		stock, err := s.IncrementStock(ctx, a.ProductID, a.VariantSKU, a.ReorderQuantity)
		if err != nil {
			return err
		}
		now := l.now()
		ok, err := s.ResolveAlert(ctx, a.ID, AlertReorder, now)
		if err != nil {
			return err
		}
		if !ok {
			return apperr.New(apperr.KindAlertAlreadyResolved, "alert already resolved: %s", alertID)
		}
		if err := s.InsertReorderEvent(ctx, ReorderEvent{
			ID:         uuid.NewString(),
			AlertID:    a.ID,
			ProductID:  a.ProductID,
			VariantSKU: a.VariantSKU,
			Quantity:   a.ReorderQuantity,
			CreatedAt:  now,
		}); err != nil {
			return err
		}
		if stock > l.threshold() {
			if _, err := s.ResolveAlerts(ctx, a.ProductID, a.VariantSKU,
				[]AlertType{AlertLowStock, AlertOutOfStock}, now); err != nil {
				return err
			}
		}
		a.Type, a.IsResolved, a.ResolvedAt, a.UpdatedAt = AlertReorder, true, &now, now
		res = ReorderResult{Alert: a, NewStock: stock}
		return nil
	})
	if err != nil {
		return nil, err
	}
	l.log().Info("auto-reordered", zap.String("alert_id", alertID), zap.String("product_id", res.Alert.ProductID),
		zap.String("sku", res.Alert.VariantSKU), zap.Int("quantity", res.Alert.ReorderQuantity), zap.Int("stock", res.NewStock))
	return &res, nil
}

// ResolveAlert closes an alert by hand.
func (l *Ledger) ResolveAlert(ctx context.Context, alertID string) (*Alert, error) {
	if _, err := uuid.Parse(alertID); err != nil {
		return nil, apperr.New(apperr.KindAlertNotFound, "alert not found: %s", alertID)
	}
	ok, err := l.Store.ResolveAlert(ctx, alertID, "", l.now())
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperr.New(apperr.KindAlertAlreadyResolved, "alert already resolved: %s", alertID)
	}
	return l.Store.GetAlert(ctx, alertID)
}

// ConfigureAutoReorder toggles auto-reorder. A zero quantity means the default.
func (l *Ledger) ConfigureAutoReorder(ctx context.Context, alertID string, enabled bool, qty int) (*Alert, error) {
	if qty < 0 {
		return nil, apperr.New(apperr.KindValidation, "reorder quantity must not be negative")
	}
	if qty == 0 {
		qty = l.reorderQty()
	}
	if _, err := uuid.Parse(alertID); err != nil {
		return nil, apperr.New(apperr.KindAlertNotFound, "alert not found: %s", alertID)
	}
	if err := l.Store.SetAutoReorder(ctx, alertID, enabled, qty); err != nil {
		return nil, err
	}
	return l.Store.GetAlert(ctx, alertID)
}

func (l *Ledger) ListOpenAlerts(ctx context.Context) ([]Alert, Stats, error) {
	open, err := l.Store.ListOpen(ctx)
	if err != nil {
		return nil, Stats{}, err
	}
	resolved, err := l.Store.CountResolved(ctx)
	if err != nil {
		return nil, Stats{}, err
	}
	return open, Stats{Active: len(open), Resolved: resolved}, nil
}

// AlertHistory returns the newest alerts first, at most 100.
func (l *Ledger) AlertHistory(ctx context.Context, limit int) ([]Alert, error) {
	if limit <= 0 || limit > historyLimit {
		limit = historyLimit
	}
	return l.Store.History(ctx, limit)
}

type ReorderSummary struct {
	Reordered int `json:"reordered"`
	Errors    int `json:"errors"`
}

// ProcessAutoReorders runs AutoReorder for every eligible open alert. One
// failing alert does not stop the batch.
func (l *Ledger) ProcessAutoReorders(ctx context.Context) (ReorderSummary, error) {
	alerts, err := l.Store.ListAutoReorder(ctx)
	if err != nil {
		return ReorderSummary{}, err
	}
	var sum ReorderSummary
	for _, a := range alerts {
		if ctx.Err() != nil {
			return sum, ctx.Err()
		}
		if _, err := l.AutoReorder(ctx, a.ID); err != nil {
			if errors.Is(err, apperr.ErrAlertAlreadyResolved) {
				continue
			}
			sum.Errors++
			l.log().Error("auto-reorder failed", zap.String("alert_id", a.ID), zap.Error(err))
			continue
		}
		sum.Reordered++
	}
	return sum, nil
}

// Sweep runs CheckLevels over every active product and returns how many were checked.
func (l *Ledger) Sweep(ctx context.Context) (int, error) {
	ids, err := l.Catalog.ListActiveProductIDs(ctx)
	if err != nil {
		return 0, err
	}
	failed := 0
	for _, id := range ids {
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		if err := l.CheckLevels(ctx, id); err != nil {
			failed++
			l.log().Warn("inventory check failed", zap.String("product_id", id), zap.Error(err))
		}
	}
	l.log().Info("inventory sweep done", zap.Int("products", len(ids)), zap.Int("failed", failed))
	return len(ids), nil
}
