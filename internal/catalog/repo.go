package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/ariefcatur/go-storefront-orders/internal/money"
	"github.com/ariefcatur/go-storefront-orders/internal/postgres"
	"github.com/jackc/pgx/v5"
)

type Repo struct{ DB postgres.DBTX }

func (r *Repo) GetProduct(ctx context.Context, id string) (*Product, error) {
	var (
		p     Product
		price int64
	)
	err := r.DB.QueryRow(ctx, `
		SELECT id, title, slug, price_cents, images, is_active
		FROM products WHERE id=$1`, id).
		Scan(&p.ID, &p.Title, &p.Slug, &price, &p.Images, &p.IsActive)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrProductNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load product %s: %w", id, err)
	}
	p.Price = money.FromCents(price)

	rows, err := r.DB.Query(ctx, `
		SELECT sku, color, size, stock, price_modifier_cents
		FROM product_variants WHERE product_id=$1 ORDER BY sku`, id)
	if err != nil {
		return nil, fmt.Errorf("load variants %s: %w", id, err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			v   Variant
			mod int64
		)
		if err := rows.Scan(&v.SKU, &v.Color, &v.Size, &v.Stock, &mod); err != nil {
			return nil, err
		}
		v.PriceModifier = money.FromCents(mod)
		p.Variants = append(p.Variants, v)
	}
	return &p, rows.Err()
}

func (r *Repo) ListActiveProductIDs(ctx context.Context) ([]string, error) {
	rows, err := r.DB.Query(ctx, `SELECT id FROM products WHERE is_active ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// Upsert writes a product and its variants. Used by seeding and admin import.
func (r *Repo) Upsert(ctx context.Context, p *Product) error {
	if _, err := r.DB.Exec(ctx, `
		INSERT INTO products(id, title, slug, price_cents, images, is_active)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (id) DO UPDATE SET title=EXCLUDED.title, slug=EXCLUDED.slug,
			price_cents=EXCLUDED.price_cents, images=EXCLUDED.images,
			is_active=EXCLUDED.is_active, updated_at=now()`,
		p.ID, p.Title, p.Slug, money.ToCents(p.Price), p.Images, p.IsActive); err != nil {
		return fmt.Errorf("upsert product %s: %w", p.ID, err)
	}
	for _, v := range p.Variants {
		if _, err := r.DB.Exec(ctx, `
			INSERT INTO product_variants(product_id, sku, color, size, stock, price_modifier_cents)
			VALUES ($1,$2,$3,$4,$5,$6)
			ON CONFLICT (product_id, sku) DO UPDATE SET color=EXCLUDED.color, size=EXCLUDED.size,
				stock=EXCLUDED.stock, price_modifier_cents=EXCLUDED.price_modifier_cents, updated_at=now()`,
			p.ID, v.SKU, v.Color, v.Size, v.Stock, money.ToCents(v.PriceModifier)); err != nil {
			return fmt.Errorf("upsert variant %s/%s: %w", p.ID, v.SKU, err)
		}
	}
	return nil
}
