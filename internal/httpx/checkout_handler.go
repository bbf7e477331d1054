package httpx

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/ariefcatur/go-storefront-orders/internal/apperr"
	"github.com/ariefcatur/go-storefront-orders/internal/checkout"
	"github.com/ariefcatur/go-storefront-orders/internal/orders"
	"github.com/ariefcatur/go-storefront-orders/internal/payment"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// stripe caps webhook payloads well below this
const maxWebhookBody = 64 << 10

type CheckoutService interface {
	Checkout(ctx context.Context, req checkout.Request) (*checkout.Result, error)
	ConfirmPayment(ctx context.Context, payload []byte, signature string) (*checkout.Confirmation, error)
	SessionOrder(ctx context.Context, sessionID string) (*orders.Order, error)
}

type CheckoutHandler struct {
	Svc CheckoutService
	Log *zap.Logger
}

type sessionResp struct {
	SessionID   string `json:"sessionId"`
	URL         string `json:"url"`
	OrderNumber string `json:"orderNumber"`
}

type webhookResp struct {
	Received    bool   `json:"received"`
	OrderNumber string `json:"orderNumber,omitempty"`
	Duplicate   bool   `json:"duplicate,omitempty"`
}

func (h *CheckoutHandler) Register(r chi.Router) {
	r.Post("/checkout", h.checkout)
	r.Post("/checkout/webhook", h.webhook)
	r.Get("/checkout/sessions/{sessionId}", h.sessionOrder)
}

func (h *CheckoutHandler) checkout(w http.ResponseWriter, r *http.Request) {
	var req checkout.Request
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.Log, err)
		return
	}
	req.IdempotencyKey = r.Header.Get("Idempotency-Key")

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	res, err := h.Svc.Checkout(ctx, req)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	switch {
	case res.Flow == checkout.FlowDeferred:
		writeJSON(w, http.StatusOK, sessionResp{SessionID: res.Session.ID, URL: res.Session.URL, OrderNumber: res.OrderNumber})
	case res.Replayed:
		w.Header().Set("Idempotent-Replayed", "true")
		writeJSON(w, http.StatusOK, res.Order)
	default:
		writeJSON(w, http.StatusCreated, res.Order)
	}
}

// webhook answers 2xx only when the delivery is fully handled; anything
// else makes the provider redeliver.
func (h *CheckoutHandler) webhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		writeError(w, h.Log, apperr.Wrap(apperr.KindValidation, err, "read webhook body"))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	conf, err := h.Svc.ConfirmPayment(ctx, payload, r.Header.Get(payment.SignatureHeader))
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	resp := webhookResp{Received: true, Duplicate: conf.Duplicate}
	if conf.Order != nil {
		resp.OrderNumber = conf.Order.Number
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *CheckoutHandler) sessionOrder(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	o, err := h.Svc.SessionOrder(ctx, chi.URLParam(r, "sessionId"))
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}
