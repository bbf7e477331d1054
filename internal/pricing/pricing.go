// Package pricing derives line totals, shipping and tax for a cart. It never
// writes anything; stock is only read to reject carts that cannot be filled.
package pricing

import (
	"context"
	"errors"
	"strconv"

	"github.com/ariefcatur/go-storefront-orders/internal/apperr"
	"github.com/ariefcatur/go-storefront-orders/internal/catalog"
	"github.com/ariefcatur/go-storefront-orders/internal/money"
	"github.com/shopspring/decimal"
)

type CartLine struct {
	ProductID  string
	VariantSKU string
	Quantity   int
}

type Lookup interface {
	GetProduct(ctx context.Context, id string) (*catalog.Product, error)
}

type PricedLine struct {
	Line        int // 1-based position in the cart
	ProductID   string
	Title       string
	DisplayName string
	SKU         string
	Color       string
	Size        string
	Image       string
	UnitPrice   decimal.Decimal
	Quantity    int
	LineTotal   decimal.Decimal
}

type Quote struct {
	Lines    []PricedLine
	Subtotal decimal.Decimal
	Shipping decimal.Decimal
	Tax      decimal.Decimal
	Total    decimal.Decimal
}

type Calculator struct {
	ShippingFee           decimal.Decimal
	FreeShippingThreshold decimal.Decimal
	TaxRate               decimal.Decimal
}

func DefaultCalculator() Calculator {
	return Calculator{
		ShippingFee:           money.MustParse("5.99"),
		FreeShippingThreshold: money.MustParse("50.00"),
		TaxRate:               money.MustParse("0.08"),
	}
}

// Shipping is the flat fee below the free-shipping threshold, zero at or above it.
func (c Calculator) Shipping(subtotal decimal.Decimal) decimal.Decimal {
	if subtotal.GreaterThanOrEqual(c.FreeShippingThreshold) {
		return decimal.Zero
	}
	return money.Round2(c.ShippingFee)
}

func Tax(subtotal, rate decimal.Decimal) decimal.Decimal {
	return money.Round2(subtotal.Mul(rate))
}

// Totals computes shipping, tax and total for an already priced subtotal.
func (c Calculator) Totals(subtotal decimal.Decimal) (shipping, tax, total decimal.Decimal) {
	subtotal = money.Round2(subtotal)
	shipping = c.Shipping(subtotal)
	tax = Tax(subtotal, c.TaxRate)
	total = money.Round2(subtotal.Add(shipping).Add(tax))
	return shipping, tax, total
}

type resolved struct {
	product *catalog.Product
	variant *catalog.Variant
}

// Price resolves every line against the catalog. Checks run in phases: every
// product must exist and be active, then every variant must exist, then every
// variant must have enough stock for the summed demand of the cart.
func (c Calculator) Price(ctx context.Context, lines []CartLine, lookup Lookup) (*Quote, error) {
	if len(lines) == 0 {
		return nil, apperr.New(apperr.KindValidation, "cart is empty")
	}

	products := make(map[string]*catalog.Product, len(lines))
	res := make([]resolved, len(lines))

	for i, l := range lines {
		p, ok := products[l.ProductID]
		if !ok {
			var err error
			p, err = lookup.GetProduct(ctx, l.ProductID)
			if errors.Is(err, catalog.ErrProductNotFound) {
				p = nil
			} else if err != nil {
				return nil, err
			}
			products[l.ProductID] = p
		}
		if p == nil {
			return nil, apperr.New(apperr.KindProductUnavailable,
				"line %d: product not found: %s", i+1, l.ProductID).WithLine(i + 1)
		}
		if !p.IsActive {
			return nil, apperr.New(apperr.KindProductUnavailable,
				"line %d: product %s is no longer available", i+1, p.Title).WithLine(i + 1)
		}
		res[i].product = p
	}

	for i, l := range lines {
		v, ok := res[i].product.Variant(l.VariantSKU)
		if !ok {
			return nil, apperr.New(apperr.KindVariantNotFound,
				"line %d: variant not found: %s", i+1, l.VariantSKU).WithLine(i + 1)
		}
		res[i].variant = v
	}

	demand := make(map[string]int, len(lines))
	for i, l := range lines {
		key := l.ProductID + "\x00" + l.VariantSKU
		demand[key] += l.Quantity
		v := res[i].variant
		if demand[key] > v.Stock {
			e := apperr.InsufficientStock(res[i].product.DisplayName(v), v.Stock)
			e.Message = "line " + strconv.Itoa(i+1) + ": " + e.Message
			return nil, e.WithLine(i + 1)
		}
	}

	q := &Quote{Lines: make([]PricedLine, 0, len(lines)), Subtotal: decimal.Zero}
	for i, l := range lines {
		p, v := res[i].product, res[i].variant
		unit := money.Round2(p.Price.Add(v.PriceModifier))
		total := unit.Mul(decimal.NewFromInt(int64(l.Quantity)))
		q.Lines = append(q.Lines, PricedLine{
			Line:        i + 1,
			ProductID:   p.ID,
			Title:       p.Title,
			DisplayName: p.DisplayName(v),
			SKU:         v.SKU,
			Color:       v.Color,
			Size:        v.Size,
			Image:       p.PrimaryImage(),
			UnitPrice:   unit,
			Quantity:    l.Quantity,
			LineTotal:   total,
		})
		q.Subtotal = q.Subtotal.Add(total)
	}
	q.Subtotal = money.Round2(q.Subtotal)
	q.Shipping, q.Tax, q.Total = c.Totals(q.Subtotal)
	return q, nil
}
