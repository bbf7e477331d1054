// Package apperr holds the error taxonomy shared by the checkout, inventory
// and order packages. Business errors carry enough detail for the caller to
// act on (which cart line, how many units are left); everything else is an
// infrastructure failure and may be retried.
package apperr

import (
	"context"
	"errors"
	"fmt"
)

type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindNotFound
	KindProductUnavailable
	KindVariantNotFound
	KindInsufficientStock
	KindInvalidTransition
	KindDuplicateOrderNumber
	KindPaymentProvider
	KindWebhookVerification
	KindAlertNotFound
	KindAlertAlreadyResolved
	KindConflict
)

var kindNames = map[Kind]string{
	KindInternal:             "internal",
	KindValidation:           "validation_error",
	KindNotFound:             "not_found",
	KindProductUnavailable:   "product_unavailable",
	KindVariantNotFound:      "variant_not_found",
	KindInsufficientStock:    "insufficient_stock",
	KindInvalidTransition:    "invalid_transition",
	KindDuplicateOrderNumber: "duplicate_order_number",
	KindPaymentProvider:      "payment_provider_error",
	KindWebhookVerification:  "webhook_verification_failed",
	KindAlertNotFound:        "alert_not_found",
	KindAlertAlreadyResolved: "alert_already_resolved",
	KindConflict:             "conflict",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Error is the typed application error.
type Error struct {
	Kind    Kind
	Message string
	// Line is the 1-based cart line the error refers to, 0 when not line specific.
	Line int
	// Available is the stock on hand for KindInsufficientStock.
	Available int
	Err       error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Kind.String()
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches sentinel errors (no message) by kind, so callers can write
// errors.Is(err, apperr.ErrInsufficientStock).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Message == "" && t.Err == nil && t.Kind == e.Kind
}

// WithLine returns a copy of e annotated with the cart line.
func (e *Error) WithLine(line int) *Error {
	cp := *e
	cp.Line = line
	return &cp
}

var (
	ErrValidation           = &Error{Kind: KindValidation}
	ErrNotFound             = &Error{Kind: KindNotFound}
	ErrProductUnavailable   = &Error{Kind: KindProductUnavailable}
	ErrVariantNotFound      = &Error{Kind: KindVariantNotFound}
	ErrInsufficientStock    = &Error{Kind: KindInsufficientStock}
	ErrInvalidTransition    = &Error{Kind: KindInvalidTransition}
	ErrDuplicateOrderNumber = &Error{Kind: KindDuplicateOrderNumber}
	ErrPaymentProvider      = &Error{Kind: KindPaymentProvider}
	ErrWebhookVerification  = &Error{Kind: KindWebhookVerification}
	ErrAlertNotFound        = &Error{Kind: KindAlertNotFound}
	ErrAlertAlreadyResolved = &Error{Kind: KindAlertAlreadyResolved}
	ErrConflict             = &Error{Kind: KindConflict}
)

func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func Wrap(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

func InsufficientStock(name string, available int) *Error {
	return &Error{
		Kind:      KindInsufficientStock,
		Message:   fmt.Sprintf("insufficient stock for %s, only %d available", name, available),
		Available: available,
	}
}

// KindOf reports the kind of the first *Error in err's chain, KindInternal otherwise.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Retryable reports whether err looks like a transient infrastructure
// failure. Business rule violations and cancelled contexts are never retried.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	switch KindOf(err) {
	case KindInternal, KindPaymentProvider:
		return true
	default:
		return false
	}
}
