package checkout

import (
	"context"

	"github.com/ariefcatur/go-storefront-orders/internal/inventory"
	"github.com/ariefcatur/go-storefront-orders/internal/orders"
	"github.com/ariefcatur/go-storefront-orders/internal/postgres"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type SessionRepo struct{ DB postgres.DBTX }

func (r *SessionRepo) Claim(ctx context.Context, sessionID, orderNumber, paymentIntentID string) (bool, error) {
	ct, err := r.DB.Exec(ctx, `
		INSERT INTO payment_sessions(session_id, order_number, payment_intent_id)
		VALUES ($1,$2,$3)
		ON CONFLICT (session_id) DO NOTHING`, sessionID, orderNumber, paymentIntentID)
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() == 1, nil
}

func (r *SessionRepo) Bind(ctx context.Context, sessionID, orderNumber string) error {
	_, err := r.DB.Exec(ctx, `UPDATE payment_sessions SET order_number=$2 WHERE session_id=$1`, sessionID, orderNumber)
	return err
}

type pgTx struct{ tx pgx.Tx }

func (t pgTx) Stock() inventory.StockStore { return &inventory.Repo{DB: t.tx} }
func (t pgTx) Orders() orders.Store        { return &orders.Repo{DB: t.tx} }
func (t pgTx) Sessions() SessionStore      { return &SessionRepo{DB: t.tx} }

type PGTransactor struct{ Pool *pgxpool.Pool }

func (p PGTransactor) InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	return postgres.WithTx(ctx, p.Pool, func(tx pgx.Tx) error {
		return fn(ctx, pgTx{tx: tx})
	})
}
