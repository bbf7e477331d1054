package pricing

import (
	"context"
	"errors"
	"testing"

	"github.com/ariefcatur/go-storefront-orders/internal/apperr"
	"github.com/ariefcatur/go-storefront-orders/internal/catalog"
	"github.com/ariefcatur/go-storefront-orders/internal/money"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type lookupFunc func(ctx context.Context, id string) (*catalog.Product, error)

func (f lookupFunc) GetProduct(ctx context.Context, id string) (*catalog.Product, error) {
	return f(ctx, id)
}

func catalogOf(products ...*catalog.Product) lookupFunc {
	byID := map[string]*catalog.Product{}
	for _, p := range products {
		byID[p.ID] = p
	}
	return func(_ context.Context, id string) (*catalog.Product, error) {
		if p, ok := byID[id]; ok {
			return p, nil
		}
		return nil, catalog.ErrProductNotFound
	}
}

func tee() *catalog.Product {
	return &catalog.Product{
		ID: "P1", Title: "Tee", Price: money.MustParse("20.00"), IsActive: true,
		Images: []string{"tee.jpg"},
		Variants: []catalog.Variant{
			{SKU: "RED-M", Color: "Red", Size: "M", Stock: 5},
			{SKU: "RED-XL", Color: "Red", Size: "XL", Stock: 2, PriceModifier: money.MustParse("2.50")},
		},
	}
}

func TestShippingThreshold(t *testing.T) {
	c := DefaultCalculator()
	assert.Equal(t, "5.99", money.Format(c.Shipping(money.MustParse("49.99"))))
	assert.Equal(t, "0.00", money.Format(c.Shipping(money.MustParse("50.00"))))
}

func TestTax(t *testing.T) {
	assert.Equal(t, "4.00", money.Format(Tax(money.MustParse("50.00"), money.MustParse("0.08"))))
	// 0.045 rounds half away from zero
	assert.Equal(t, "0.05", money.Format(Tax(money.MustParse("0.5625"), money.MustParse("0.08"))))
}

func TestTotalsAreSumOfRoundedParts(t *testing.T) {
	c := DefaultCalculator()
	shipping, tax, total := c.Totals(money.MustParse("49.99"))
	assert.Equal(t, "5.99", money.Format(shipping))
	assert.Equal(t, "4.00", money.Format(tax))
	assert.Equal(t, "59.98", money.Format(total))
}

func TestPriceEndToEndScenario(t *testing.T) {
	q, err := DefaultCalculator().Price(context.Background(),
		[]CartLine{{ProductID: "P1", VariantSKU: "RED-M", Quantity: 2}}, catalogOf(tee()))
	require.NoError(t, err)

	assert.Equal(t, "40.00", money.Format(q.Subtotal))
	assert.Equal(t, "5.99", money.Format(q.Shipping))
	assert.Equal(t, "3.20", money.Format(q.Tax))
	assert.Equal(t, "49.19", money.Format(q.Total))
	require.Len(t, q.Lines, 1)
	assert.Equal(t, "Tee", q.Lines[0].Title)
	assert.Equal(t, "tee.jpg", q.Lines[0].Image)
}

func TestPriceAppliesVariantModifier(t *testing.T) {
	q, err := DefaultCalculator().Price(context.Background(),
		[]CartLine{{ProductID: "P1", VariantSKU: "RED-XL", Quantity: 2}}, catalogOf(tee()))
	require.NoError(t, err)
	assert.Equal(t, "22.50", money.Format(q.Lines[0].UnitPrice))
	assert.Equal(t, "45.00", money.Format(q.Subtotal))
}

func TestPriceErrors(t *testing.T) {
	inactive := tee()
	inactive.ID = "P2"
	inactive.IsActive = false

	cases := []struct {
		name  string
		lines []CartLine
		kind  apperr.Kind
		line  int
	}{
		{"missing product", []CartLine{{"P1", "RED-M", 1}, {"NOPE", "X", 1}}, apperr.KindProductUnavailable, 2},
		{"inactive product", []CartLine{{"P2", "RED-M", 1}}, apperr.KindProductUnavailable, 1},
		{"missing variant", []CartLine{{"P1", "BLUE-S", 1}}, apperr.KindVariantNotFound, 1},
		{"too many", []CartLine{{"P1", "RED-M", 10}}, apperr.KindInsufficientStock, 1},
		{"repeated sku sums demand", []CartLine{{"P1", "RED-M", 3}, {"P1", "RED-M", 3}}, apperr.KindInsufficientStock, 2},
		{"product checked before variant", []CartLine{{"P1", "BLUE-S", 1}, {"NOPE", "X", 1}}, apperr.KindProductUnavailable, 2},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := DefaultCalculator().Price(context.Background(), tc.lines, catalogOf(tee(), inactive))
			require.Error(t, err)
			var ae *apperr.Error
			require.True(t, errors.As(err, &ae))
			assert.Equal(t, tc.kind, ae.Kind)
			assert.Equal(t, tc.line, ae.Line)
		})
	}
}

func TestPriceInsufficientStockMessage(t *testing.T) {
	_, err := DefaultCalculator().Price(context.Background(),
		[]CartLine{{ProductID: "P1", VariantSKU: "RED-M", Quantity: 10}}, catalogOf(tee()))
	var ae *apperr.Error
	require.True(t, errors.As(err, &ae))
	assert.Equal(t, 5, ae.Available)
	assert.Equal(t, "line 1: insufficient stock for Tee (Red/M), only 5 available", ae.Error())
}

func TestPriceInactiveProductMessage(t *testing.T) {
	inactive := tee()
	inactive.IsActive = false
	_, err := DefaultCalculator().Price(context.Background(),
		[]CartLine{{ProductID: "P1", VariantSKU: "RED-M", Quantity: 1}}, catalogOf(inactive))
	assert.EqualError(t, err, "line 1: product Tee is no longer available")
	assert.ErrorIs(t, err, apperr.ErrProductUnavailable)
}

func TestPricePropagatesLookupFailure(t *testing.T) {
	boom := errors.New("catalog down")
	_, err := DefaultCalculator().Price(context.Background(),
		[]CartLine{{ProductID: "P1", VariantSKU: "RED-M", Quantity: 1}},
		lookupFunc(func(context.Context, string) (*catalog.Product, error) { return nil, boom }))
	assert.ErrorIs(t, err, boom)
	assert.True(t, apperr.Retryable(err))
}
