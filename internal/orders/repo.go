package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ariefcatur/go-storefront-orders/internal/apperr"
	"github.com/ariefcatur/go-storefront-orders/internal/money"
	"github.com/ariefcatur/go-storefront-orders/internal/postgres"
	"github.com/jackc/pgx/v5"
)

// Repo is the Postgres Store. DB may be the pool or a transaction.
type Repo struct{ DB postgres.DBTX }

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Insert never aborts the surrounding transaction on a number collision:
// the order number conflict is absorbed by ON CONFLICT and reported as
// KindDuplicateOrderNumber so the caller can retry in the same transaction.
func (r *Repo) Insert(ctx context.Context, o *Order) error {
	ct, err := r.DB.Exec(ctx, `
		INSERT INTO orders(order_number, external_id, customer_id, customer_name, customer_email,
			shipping_address, subtotal_cents, shipping_cents, tax_cents, total_cents, status,
			payment_session_id, payment_intent_id, carrier, tracking_number, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$16)
		ON CONFLICT (order_number) DO NOTHING`,
		o.Number, nullable(o.ExternalID), o.Customer.ID, o.Customer.Name, o.Customer.Email,
		o.ShippingAddress, money.ToCents(o.Subtotal), money.ToCents(o.Shipping),
		money.ToCents(o.Tax), money.ToCents(o.Total), string(o.Status),
		nullable(o.PaymentSessionID), o.PaymentIntentID, o.Tracking.Carrier, o.Tracking.Number, o.CreatedAt)
	if err != nil {
		if c, ok := postgres.UniqueViolation(err); ok {
			switch c {
			case "orders_external_id_key":
				return ErrDuplicateExternalID
			case "orders_payment_session_id_key":
				return ErrDuplicateSession
			}
		}
		return fmt.Errorf("insert order %s: %w", o.Number, err)
	}
	if ct.RowsAffected() == 0 {
		return apperr.New(apperr.KindDuplicateOrderNumber, "order number %s already exists", o.Number)
	}

	for i, it := range o.Items {
		if _, err := r.DB.Exec(ctx, `
			INSERT INTO order_items(order_number, position, product_id, title, unit_price_cents,
				quantity, color, size, sku, image)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
			o.Number, i+1, it.ProductID, it.Title, money.ToCents(it.UnitPrice),
			it.Quantity, it.Color, it.Size, it.SKU, it.Image); err != nil {
			return fmt.Errorf("insert order item %s/%d: %w", o.Number, i+1, err)
		}
	}
	return nil
}

const orderColumns = `order_number, COALESCE(external_id, ''), customer_id, customer_name, customer_email,
	shipping_address, subtotal_cents, shipping_cents, tax_cents, total_cents, status,
	COALESCE(payment_session_id, ''), payment_intent_id, carrier, tracking_number, created_at, updated_at`

func scanOrder(row pgx.Row) (*Order, error) {
	var (
		o                   Order
		status              string
		sub, ship, tax, tot int64
	)
	err := row.Scan(&o.Number, &o.ExternalID, &o.Customer.ID, &o.Customer.Name, &o.Customer.Email,
		&o.ShippingAddress, &sub, &ship, &tax, &tot, &status,
		&o.PaymentSessionID, &o.PaymentIntentID, &o.Tracking.Carrier, &o.Tracking.Number, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return nil, err
	}
	o.Status = Status(status)
	o.Subtotal, o.Shipping = money.FromCents(sub), money.FromCents(ship)
	o.Tax, o.Total = money.FromCents(tax), money.FromCents(tot)
	return &o, nil
}

func (r *Repo) getOne(ctx context.Context, what, where string, arg any) (*Order, error) {
	o, err := scanOrder(r.DB.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE `+where, arg))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.New(apperr.KindNotFound, "order not found: %s %v", what, arg)
	}
	if err != nil {
		return nil, err
	}
	if err := r.loadItems(ctx, []*Order{o}); err != nil {
		return nil, err
	}
	return o, nil
}

func (r *Repo) Get(ctx context.Context, number string) (*Order, error) {
	return r.getOne(ctx, "number", "order_number=$1", number)
}

func (r *Repo) GetByExternalID(ctx context.Context, externalID string) (*Order, error) {
	return r.getOne(ctx, "external id", "external_id=$1", externalID)
}

func (r *Repo) GetBySession(ctx context.Context, sessionID string) (*Order, error) {
	return r.getOne(ctx, "session", "payment_session_id=$1", sessionID)
}

func (r *Repo) ListByEmail(ctx context.Context, email string) ([]Order, error) {
	rows, err := r.DB.Query(ctx, `SELECT `+orderColumns+` FROM orders
		WHERE customer_email=$1 ORDER BY created_at DESC, order_number DESC`, email)
	if err != nil {
		return nil, err
	}
	var ptrs []*Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		ptrs = append(ptrs, o)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := r.loadItems(ctx, ptrs); err != nil {
		return nil, err
	}
	out := make([]Order, len(ptrs))
	for i, o := range ptrs {
		out[i] = *o
	}
	return out, nil
}

func (r *Repo) loadItems(ctx context.Context, list []*Order) error {
	if len(list) == 0 {
		return nil
	}
	byNumber := make(map[string]*Order, len(list))
	numbers := make([]string, 0, len(list))
	for _, o := range list {
		byNumber[o.Number] = o
		numbers = append(numbers, o.Number)
	}
	rows, err := r.DB.Query(ctx, `
		SELECT order_number, product_id, title, unit_price_cents, quantity, color, size, sku, image
		FROM order_items WHERE order_number = ANY($1) ORDER BY order_number, position`, numbers)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			number string
			it     LineItem
			unit   int64
		)
		if err := rows.Scan(&number, &it.ProductID, &it.Title, &unit, &it.Quantity,
			&it.Color, &it.Size, &it.SKU, &it.Image); err != nil {
			return err
		}
		it.UnitPrice = money.FromCents(unit)
		o := byNumber[number]
		o.Items = append(o.Items, it)
	}
	return rows.Err()
}

func (r *Repo) UpdateStatus(ctx context.Context, number string, from, to Status, tracking *Tracking, at time.Time) (bool, error) {
	var carrier, trackingNo string
	if tracking != nil {
		carrier, trackingNo = tracking.Carrier, tracking.Number
	}
	ct, err := r.DB.Exec(ctx, `
		UPDATE orders SET status=$3,
			carrier = COALESCE(NULLIF($4, ''), carrier),
			tracking_number = COALESCE(NULLIF($5, ''), tracking_number),
			updated_at=$6
		WHERE order_number=$1 AND status=$2`,
		number, string(from), string(to), carrier, trackingNo, at)
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() == 1, nil
}
