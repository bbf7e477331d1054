// Package payment talks to the hosted checkout provider: it opens payment
// sessions and turns verified webhook deliveries into completion events.
package payment

import (
	"context"

	"github.com/shopspring/decimal"
)

const SignatureHeader = "Stripe-Signature"

type LineItem struct {
	Name        string
	Description string
	Image       string
	UnitAmount  decimal.Decimal
	Quantity    int
}

type SessionRequest struct {
	OrderNumber   string
	CustomerEmail string
	Currency      string
	Items         []LineItem
	Metadata      map[string]string
	SuccessURL    string
	CancelURL     string
}

type Session struct {
	ID  string `json:"sessionId"`
	URL string `json:"url"`
}

// CompletedEvent is a paid checkout session.
type CompletedEvent struct {
	EventID         string
	SessionID       string
	PaymentIntentID string
	Metadata        map[string]string
}

type Provider interface {
	CreateSession(ctx context.Context, req SessionRequest) (*Session, error)
	// ParseEvent verifies and decodes a webhook delivery. It returns nil, nil
	// for events that do not complete a payment.
	ParseEvent(payload []byte, signature string) (*CompletedEvent, error)
}
