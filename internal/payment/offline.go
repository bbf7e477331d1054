package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/ariefcatur/go-storefront-orders/internal/apperr"
	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v81/webhook"
)

// OfflineProvider stands in for Stripe when no secret key is configured.
// Sessions live in memory and are completed by posting a webhook signed with
// the same scheme Stripe uses, see SignedCompletion.
type OfflineProvider struct {
	FrontendURL   string
	WebhookSecret string

	mu       sync.Mutex
	sessions map[string]map[string]string
}

func (p *OfflineProvider) CreateSession(ctx context.Context, req SessionRequest) (*Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	id := "mock_session_" + req.OrderNumber

	md := make(map[string]string, len(req.Metadata))
	for k, v := range req.Metadata {
		md[k] = v
	}
	p.mu.Lock()
	if p.sessions == nil {
		p.sessions = map[string]map[string]string{}
	}
	p.sessions[id] = md
	p.mu.Unlock()

	return &Session{
		ID:  id,
		URL: fmt.Sprintf("%s/checkout/success?order=%s&mock=true", p.FrontendURL, url.QueryEscape(req.OrderNumber)),
	}, nil
}

func (p *OfflineProvider) ParseEvent(payload []byte, signature string) (*CompletedEvent, error) {
	return parseEvent(payload, signature, p.WebhookSecret)
}

// SignedCompletion builds a checkout.session.completed delivery for a session
// created by this provider, with a valid signature header.
func (p *OfflineProvider) SignedCompletion(sessionID string) (payload []byte, signature string, err error) {
	p.mu.Lock()
	md, ok := p.sessions[sessionID]
	p.mu.Unlock()
	if !ok {
		return nil, "", apperr.New(apperr.KindNotFound, "session not found: %s", sessionID)
	}
	payload, err = CompletionPayload("evt_"+uuid.NewString(), sessionID, "pi_"+uuid.NewString(), md)
	if err != nil {
		return nil, "", err
	}
	return payload, Sign(payload, p.WebhookSecret, time.Now()), nil
}

// CompletionPayload renders a checkout.session.completed event body.
func CompletionPayload(eventID, sessionID, paymentIntentID string, md map[string]string) ([]byte, error) {
	return json.Marshal(map[string]any{
		"id":          eventID,
		"object":      "event",
		"type":        "checkout.session.completed",
		"api_version": "2024-09-30.acacia",
		"data": map[string]any{
			"object": map[string]any{
				"id":             sessionID,
				"object":         "checkout.session",
				"payment_status": "paid",
				"payment_intent": paymentIntentID,
				"metadata":       md,
			},
		},
	})
}

// Sign produces a Stripe-Signature header value for payload.
func Sign(payload []byte, secret string, at time.Time) string {
	sig := webhook.ComputeSignature(at, payload, secret)
	return fmt.Sprintf("t=%d,v1=%x", at.Unix(), sig)
}
