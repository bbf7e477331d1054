package checkout

import (
	"errors"
	"reflect"
	"strings"

	"github.com/ariefcatur/go-storefront-orders/internal/apperr"
	"github.com/go-playground/validator/v10"
)

const MaxQuantity = 100

type Flow string

const (
	FlowDirect   Flow = "direct"
	FlowDeferred Flow = "deferred"
)

type Item struct {
	ProductID  string `json:"productId" validate:"required"`
	VariantSKU string `json:"variantSku" validate:"required"`
	Quantity   int    `json:"quantity" validate:"min=1,max=100"`
}

type Address struct {
	Line1   string `json:"line1" validate:"required"`
	Line2   string `json:"line2,omitempty"`
	City    string `json:"city" validate:"required"`
	State   string `json:"state" validate:"required"`
	Zip     string `json:"zip" validate:"required"`
	Country string `json:"country"`
}

// Request is the validated checkout input. Build it from JSON, then call
// Validate once before handing it to the Orchestrator.
type Request struct {
	Items           []Item  `json:"items" validate:"required,min=1,dive"`
	CustomerEmail   string  `json:"customerEmail" validate:"required,email"`
	CustomerName    string  `json:"customerName" validate:"required"`
	CustomerID      string  `json:"customerId,omitempty"`
	ShippingAddress Address `json:"shippingAddress"`
	// Flow, when set, must match the store's configured flow.
	Flow Flow `json:"flow,omitempty" validate:"omitempty,oneof=direct deferred"`

	// IdempotencyKey comes from the Idempotency-Key header.
	IdempotencyKey string `json:"-"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func (r *Request) normalize() {
	for i := range r.Items {
		r.Items[i].ProductID = strings.TrimSpace(r.Items[i].ProductID)
		r.Items[i].VariantSKU = strings.TrimSpace(r.Items[i].VariantSKU)
	}
	r.CustomerEmail = strings.ToLower(strings.TrimSpace(r.CustomerEmail))
	r.CustomerName = strings.TrimSpace(r.CustomerName)
	r.CustomerID = strings.TrimSpace(r.CustomerID)
	a := &r.ShippingAddress
	a.Line1, a.Line2 = strings.TrimSpace(a.Line1), strings.TrimSpace(a.Line2)
	a.City, a.State, a.Zip = strings.TrimSpace(a.City), strings.TrimSpace(a.State), strings.TrimSpace(a.Zip)
	a.Country = strings.ToUpper(strings.TrimSpace(a.Country))
	if a.Country == "" {
		a.Country = "US"
	}
	r.Flow = Flow(strings.ToLower(strings.TrimSpace(string(r.Flow))))
	r.IdempotencyKey = strings.TrimSpace(r.IdempotencyKey)
}

// Validate normalizes r in place and reports every violation in one
// KindValidation error.
func (r *Request) Validate() error {
	r.normalize()
	err := validate.Struct(r)
	if err == nil {
		return nil
	}
	var ves validator.ValidationErrors
	if !errors.As(err, &ves) {
		return apperr.Wrap(apperr.KindValidation, err, "invalid checkout request")
	}
	fields := make([]string, 0, len(ves))
	for _, fe := range ves {
		fields = append(fields, describe(fe))
	}
	return apperr.New(apperr.KindValidation, "invalid checkout request: %s", strings.Join(fields, "; "))
}

func describe(fe validator.FieldError) string {
	field := fe.Namespace()
	if i := strings.IndexByte(field, '.'); i >= 0 {
		field = field[i+1:]
	}
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "email":
		return field + " must be a valid email address"
	case "min":
		if fe.Kind() == reflect.Slice {
			return field + " must not be empty"
		}
		return field + " must be at least " + fe.Param()
	case "max":
		return field + " must be at most " + fe.Param()
	case "oneof":
		return field + " must be one of " + fe.Param()
	}
	return field + " is invalid"
}
