package memstore

import (
	"github.com/ariefcatur/go-storefront-orders/internal/catalog"
	"github.com/ariefcatur/go-storefront-orders/internal/money"
)

// DemoCatalog is the product set seeded when running without Postgres.
func DemoCatalog() []catalog.Product {
	return []catalog.Product{
		{
			ID: "P1", Title: "Classic Tee", Slug: "classic-tee", Price: money.MustParse("20.00"), IsActive: true,
			Images: []string{"/images/classic-tee.jpg"},
			Variants: []catalog.Variant{
				{SKU: "RED-M", Color: "Red", Size: "M", Stock: 5},
				{SKU: "RED-L", Color: "Red", Size: "L", Stock: 12},
				{SKU: "BLK-XL", Color: "Black", Size: "XL", Stock: 30, PriceModifier: money.MustParse("2.50")},
			},
		},
		{
			ID: "P2", Title: "Canvas Tote", Slug: "canvas-tote", Price: money.MustParse("34.00"), IsActive: true,
			Images: []string{"/images/canvas-tote.jpg"},
			Variants: []catalog.Variant{
				{SKU: "NAT-OS", Color: "Natural", Size: "OS", Stock: 40},
			},
		},
		{
			ID: "P3", Title: "Retired Hoodie", Slug: "retired-hoodie", Price: money.MustParse("55.00"), IsActive: false,
			Variants: []catalog.Variant{
				{SKU: "GRY-M", Color: "Grey", Size: "M", Stock: 3},
			},
		},
	}
}
