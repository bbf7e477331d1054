package inventory

import (
	"context"
	"errors"
	"fmt"

	"github.com/ariefcatur/go-storefront-orders/internal/apperr"
)

type StockLine struct {
	Line      int
	ProductID string
	SKU       string
	Name      string // shopper-facing, e.g. "Tee (Red/M)"
	Quantity  int
}

// Reserve decrements every line through s. It stops at the first failure;
// the caller's transaction is expected to undo earlier lines.
func Reserve(ctx context.Context, s StockStore, lines []StockLine) error {
	for _, l := range lines {
		if _, err := s.DecrementStock(ctx, l.ProductID, l.SKU, l.Quantity); err != nil {
			return lineError(l, err)
		}
	}
	return nil
}

func lineError(l StockLine, err error) error {
	var ae *apperr.Error
	if !errors.As(err, &ae) {
		return err
	}
	switch ae.Kind {
	case apperr.KindInsufficientStock:
		e := apperr.InsufficientStock(l.Name, ae.Available)
		e.Message = fmt.Sprintf("line %d: %s", l.Line, e.Message)
		return e.WithLine(l.Line)
	case apperr.KindVariantNotFound:
		return apperr.New(apperr.KindVariantNotFound, "line %d: variant not found: %s", l.Line, l.SKU).WithLine(l.Line)
	}
	return err
}
