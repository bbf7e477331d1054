package inventory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ariefcatur/go-storefront-orders/internal/apperr"
	"github.com/ariefcatur/go-storefront-orders/internal/postgres"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repo is the Postgres Store. DB may be the pool or a transaction.
type Repo struct{ DB postgres.DBTX }

func (r *Repo) DecrementStock(ctx context.Context, productID, sku string, qty int) (int, error) {
	var stock int
	err := r.DB.QueryRow(ctx, `
		UPDATE product_variants SET stock = stock - $3, updated_at = now()
		WHERE product_id=$1 AND sku=$2 AND stock >= $3
		RETURNING stock`, productID, sku, qty).Scan(&stock)
	if err == nil {
		return stock, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("decrement %s/%s: %w", productID, sku, err)
	}

	// nothing updated: either the variant is gone or there is not enough stock
	err = r.DB.QueryRow(ctx, `SELECT stock FROM product_variants WHERE product_id=$1 AND sku=$2`,
		productID, sku).Scan(&stock)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, apperr.New(apperr.KindVariantNotFound, "variant not found: %s/%s", productID, sku)
	}
	if err != nil {
		return 0, err
	}
	return 0, apperr.InsufficientStock(productID+"/"+sku, stock)
}

func (r *Repo) IncrementStock(ctx context.Context, productID, sku string, qty int) (int, error) {
	var stock int
	err := r.DB.QueryRow(ctx, `
		UPDATE product_variants SET stock = stock + $3, updated_at = now()
		WHERE product_id=$1 AND sku=$2
		RETURNING stock`, productID, sku, qty).Scan(&stock)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, apperr.New(apperr.KindVariantNotFound, "variant not found: %s/%s", productID, sku)
	}
	if err != nil {
		return 0, fmt.Errorf("increment %s/%s: %w", productID, sku, err)
	}
	return stock, nil
}

func (r *Repo) LockStock(ctx context.Context, productID, sku string) (int, error) {
	var stock int
	err := r.DB.QueryRow(ctx, `SELECT stock FROM product_variants WHERE product_id=$1 AND sku=$2 FOR UPDATE`,
		productID, sku).Scan(&stock)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, apperr.New(apperr.KindVariantNotFound, "variant not found: %s/%s", productID, sku)
	}
	if err != nil {
		return 0, fmt.Errorf("lock stock %s/%s: %w", productID, sku, err)
	}
	return stock, nil
}

const alertColumns = `id::text, product_id, variant_sku, type, threshold, current_stock, is_resolved,
	resolved_at, auto_reorder, reorder_quantity, notified_at, created_at, updated_at`

func scanAlert(row pgx.Row) (Alert, error) {
	var (
		a Alert
		t string
	)
	err := row.Scan(&a.ID, &a.ProductID, &a.VariantSKU, &t, &a.Threshold, &a.CurrentStock, &a.IsResolved,
		&a.ResolvedAt, &a.AutoReorder, &a.ReorderQuantity, &a.NotifiedAt, &a.CreatedAt, &a.UpdatedAt)
	a.Type = AlertType(t)
	return a, err
}

func (r *Repo) queryAlerts(ctx context.Context, sql string, args ...any) ([]Alert, error) {
	rows, err := r.DB.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Alert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *Repo) OpenAlerts(ctx context.Context, productID, sku string) ([]Alert, error) {
	return r.queryAlerts(ctx, `SELECT `+alertColumns+` FROM inventory_alerts
		WHERE product_id=$1 AND variant_sku=$2 AND NOT is_resolved`, productID, sku)
}

func (r *Repo) InsertAlert(ctx context.Context, a *Alert) (bool, error) {
	ct, err := r.DB.Exec(ctx, `
		INSERT INTO inventory_alerts(id, product_id, variant_sku, type, threshold, current_stock,
			auto_reorder, reorder_quantity, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$9)
		ON CONFLICT (product_id, variant_sku, type) WHERE NOT is_resolved DO NOTHING`,
		a.ID, a.ProductID, a.VariantSKU, string(a.Type), a.Threshold, a.CurrentStock,
		a.AutoReorder, a.ReorderQuantity, a.CreatedAt)
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() == 1, nil
}

func (r *Repo) ResolveAlerts(ctx context.Context, productID, sku string, types []AlertType, at time.Time) (int, error) {
	ts := make([]string, len(types))
	for i, t := range types {
		ts[i] = string(t)
	}
	ct, err := r.DB.Exec(ctx, `
		UPDATE inventory_alerts SET is_resolved = TRUE, resolved_at = $4, updated_at = $4
		WHERE product_id=$1 AND variant_sku=$2 AND type = ANY($3) AND NOT is_resolved`,
		productID, sku, ts, at)
	if err != nil {
		return 0, err
	}
	return int(ct.RowsAffected()), nil
}

func (r *Repo) GetAlert(ctx context.Context, id string) (*Alert, error) {
	a, err := scanAlert(r.DB.QueryRow(ctx, `SELECT `+alertColumns+` FROM inventory_alerts WHERE id=$1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.New(apperr.KindAlertNotFound, "alert not found: %s", id)
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *Repo) ResolveAlert(ctx context.Context, id string, as AlertType, at time.Time) (bool, error) {
	ct, err := r.DB.Exec(ctx, `
		UPDATE inventory_alerts
		SET is_resolved = TRUE, resolved_at = $2, updated_at = $2, type = COALESCE(NULLIF($3, ''), type)
		WHERE id=$1 AND NOT is_resolved`, id, at, string(as))
	if err != nil {
		return false, err
	}
	if ct.RowsAffected() == 1 {
		return true, nil
	}
	if _, err := r.GetAlert(ctx, id); err != nil {
		return false, err
	}
	return false, nil
}

func (r *Repo) SetAutoReorder(ctx context.Context, id string, enabled bool, qty int) error {
	ct, err := r.DB.Exec(ctx, `
		UPDATE inventory_alerts SET auto_reorder=$2, reorder_quantity=$3, updated_at=now()
		WHERE id=$1`, id, enabled, qty)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return apperr.New(apperr.KindAlertNotFound, "alert not found: %s", id)
	}
	return nil
}

func (r *Repo) MarkNotified(ctx context.Context, id string, at time.Time) error {
	_, err := r.DB.Exec(ctx, `UPDATE inventory_alerts SET notified_at=$2 WHERE id=$1`, id, at)
	return err
}

func (r *Repo) ListOpen(ctx context.Context) ([]Alert, error) {
	return r.queryAlerts(ctx, `SELECT `+alertColumns+` FROM inventory_alerts
		WHERE NOT is_resolved ORDER BY created_at DESC`)
}

func (r *Repo) History(ctx context.Context, limit int) ([]Alert, error) {
	return r.queryAlerts(ctx, `SELECT `+alertColumns+` FROM inventory_alerts
		ORDER BY created_at DESC LIMIT $1`, limit)
}

func (r *Repo) CountResolved(ctx context.Context) (int, error) {
	var n int
	err := r.DB.QueryRow(ctx, `SELECT COUNT(*) FROM inventory_alerts WHERE is_resolved`).Scan(&n)
	return n, err
}

func (r *Repo) ListAutoReorder(ctx context.Context) ([]Alert, error) {
	return r.queryAlerts(ctx, `SELECT `+alertColumns+` FROM inventory_alerts
		WHERE NOT is_resolved AND auto_reorder AND type IN ('low_stock','out_of_stock')
		ORDER BY created_at`)
}

func (r *Repo) InsertReorderEvent(ctx context.Context, e ReorderEvent) error {
	_, err := r.DB.Exec(ctx, `
		INSERT INTO reorder_events(id, alert_id, product_id, variant_sku, quantity, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)`,
		e.ID, e.AlertID, e.ProductID, e.VariantSKU, e.Quantity, e.CreatedAt)
	return err
}

type PGTransactor struct{ Pool *pgxpool.Pool }

func (t PGTransactor) InTx(ctx context.Context, fn func(ctx context.Context, s Store) error) error {
	return postgres.WithTx(ctx, t.Pool, func(tx pgx.Tx) error {
		return fn(ctx, &Repo{DB: tx})
	})
}
