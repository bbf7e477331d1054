package payment

import (
	"context"
	"encoding/json"

	"github.com/ariefcatur/go-storefront-orders/internal/apperr"
	"github.com/ariefcatur/go-storefront-orders/internal/money"
	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/checkout/session"
	"github.com/stripe/stripe-go/v81/webhook"
)

type StripeProvider struct {
	client        session.Client
	webhookSecret string
}

func NewStripeProvider(secretKey, webhookSecret string) *StripeProvider {
	return &StripeProvider{
		client:        session.Client{B: stripe.GetBackend(stripe.APIBackend), Key: secretKey},
		webhookSecret: webhookSecret,
	}
}

func (p *StripeProvider) CreateSession(ctx context.Context, req SessionRequest) (*Session, error) {
	params := &stripe.CheckoutSessionParams{
		Mode:               stripe.String(string(stripe.CheckoutSessionModePayment)),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		CustomerEmail:      stripe.String(req.CustomerEmail),
		SuccessURL:         stripe.String(req.SuccessURL),
		CancelURL:          stripe.String(req.CancelURL),
		LineItems:          stripeLineItems(req),
	}
	params.Context = ctx
	// the order number is unique per checkout, so a retried create returns the same session
	params.SetIdempotencyKey("checkout-" + req.OrderNumber)
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}

	s, err := p.client.New(params)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindPaymentProvider, err, "create checkout session")
	}
	return &Session{ID: s.ID, URL: s.URL}, nil
}

func stripeLineItems(req SessionRequest) []*stripe.CheckoutSessionLineItemParams {
	currency := req.Currency
	if currency == "" {
		currency = string(stripe.CurrencyUSD)
	}
	out := make([]*stripe.CheckoutSessionLineItemParams, 0, len(req.Items))
	for _, it := range req.Items {
		product := &stripe.CheckoutSessionLineItemPriceDataProductDataParams{Name: stripe.String(it.Name)}
		if it.Description != "" {
			product.Description = stripe.String(it.Description)
		}
		if it.Image != "" {
			product.Images = stripe.StringSlice([]string{it.Image})
		}
		out = append(out, &stripe.CheckoutSessionLineItemParams{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:    stripe.String(currency),
				ProductData: product,
				UnitAmount:  stripe.Int64(money.ToCents(it.UnitAmount)),
			},
			Quantity: stripe.Int64(int64(it.Quantity)),
		})
	}
	return out
}

func (p *StripeProvider) ParseEvent(payload []byte, signature string) (*CompletedEvent, error) {
	return parseEvent(payload, signature, p.webhookSecret)
}

// parseEvent verifies the signature header and extracts the paid session.
// Shared by the Stripe and offline providers.
func parseEvent(payload []byte, signature, secret string) (*CompletedEvent, error) {
	if secret == "" {
		return nil, apperr.New(apperr.KindWebhookVerification, "webhook secret not configured")
	}
	ev, err := webhook.ConstructEventWithOptions(payload, signature, secret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return nil, apperr.Wrap(apperr.KindWebhookVerification, err, "webhook verification failed")
	}

	switch ev.Type {
	case stripe.EventTypeCheckoutSessionCompleted, stripe.EventTypeCheckoutSessionAsyncPaymentSucceeded:
	default:
		return nil, nil
	}

	var s stripe.CheckoutSession
	if ev.Data == nil {
		return nil, apperr.New(apperr.KindValidation, "event %s has no data", ev.ID)
	}
	if err := json.Unmarshal(ev.Data.Raw, &s); err != nil {
		return nil, apperr.Wrap(apperr.KindValidation, err, "decode checkout session")
	}
	if s.ID == "" {
		return nil, apperr.New(apperr.KindValidation, "event %s has no session id", ev.ID)
	}
	// async payment methods complete the session before the money arrives
	if ev.Type == stripe.EventTypeCheckoutSessionCompleted && s.PaymentStatus == stripe.CheckoutSessionPaymentStatusUnpaid {
		return nil, nil
	}

	out := &CompletedEvent{EventID: ev.ID, SessionID: s.ID, Metadata: s.Metadata}
	if s.PaymentIntent != nil {
		out.PaymentIntentID = s.PaymentIntent.ID
	}
	return out, nil
}
