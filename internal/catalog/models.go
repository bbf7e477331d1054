package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var ErrProductNotFound = errors.New("product not found")

type Variant struct {
	SKU           string          `json:"sku"`
	Color         string          `json:"color"`
	Size          string          `json:"size"`
	Stock         int             `json:"stock"`
	PriceModifier decimal.Decimal `json:"priceModifier"`
}

type Product struct {
	ID       string          `json:"id"`
	Title    string          `json:"title"`
	Slug     string          `json:"slug"`
	Price    decimal.Decimal `json:"price"`
	Images   []string        `json:"images"`
	IsActive bool            `json:"isActive"`
	Variants []Variant       `json:"variants"`
}

func (p *Product) Variant(sku string) (*Variant, bool) {
	for i := range p.Variants {
		if p.Variants[i].SKU == sku {
			return &p.Variants[i], true
		}
	}
	return nil, false
}

func (p *Product) PrimaryImage() string {
	if len(p.Images) == 0 {
		return ""
	}
	return p.Images[0]
}

// DisplayName renders "Title (Color/Size)" for messages shown to shoppers.
func (p *Product) DisplayName(v *Variant) string {
	if v == nil || (v.Color == "" && v.Size == "") {
		return p.Title
	}
	return fmt.Sprintf("%s (%s/%s)", p.Title, v.Color, v.Size)
}

// Store is the read side of the catalog. Stock counters are owned by the
// inventory ledger and only read here.
type Store interface {
	GetProduct(ctx context.Context, id string) (*Product, error)
	ListActiveProductIDs(ctx context.Context) ([]string, error)
}
