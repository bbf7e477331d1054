package httpx

import (
	"context"
	"net/http"
	"time"

	"github.com/ariefcatur/go-storefront-orders/internal/orders"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type OrderService interface {
	FindByNumber(ctx context.Context, number string) (*orders.Order, error)
	FindByCustomer(ctx context.Context, email string) ([]orders.Order, error)
	StatusOf(ctx context.Context, number string) (orders.Status, error)
	UpdateStatus(ctx context.Context, number string, to orders.Status, tracking *orders.Tracking) (*orders.Order, error)
}

type OrdersHandler struct {
	Svc OrderService
	Log *zap.Logger
}

type updateStatusReq struct {
	Status         orders.Status `json:"status"`
	Carrier        string        `json:"carrier"`
	TrackingNumber string        `json:"trackingNumber"`
}

func (h *OrdersHandler) Register(r chi.Router, admin func(http.Handler) http.Handler) {
	r.Get("/orders", h.listByEmail)
	r.Get("/orders/{number}", h.getOrder)
	r.Get("/orders/{number}/status", h.getStatus)
	r.With(admin).Put("/orders/{number}/status", h.updateStatus)
}

func (h *OrdersHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	o, err := h.Svc.FindByNumber(ctx, chi.URLParam(r, "number"))
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (h *OrdersHandler) getStatus(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	number := chi.URLParam(r, "number")
	s, err := h.Svc.StatusOf(ctx, number)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"orderNumber": number, "status": s})
}

func (h *OrdersHandler) listByEmail(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	list, err := h.Svc.FindByCustomer(ctx, r.URL.Query().Get("email"))
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	if list == nil {
		list = []orders.Order{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *OrdersHandler) updateStatus(w http.ResponseWriter, r *http.Request) {
	var req updateStatusReq
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.Log, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	var tracking *orders.Tracking
	if req.Carrier != "" || req.TrackingNumber != "" {
		tracking = &orders.Tracking{Carrier: req.Carrier, Number: req.TrackingNumber}
	}
	o, err := h.Svc.UpdateStatus(ctx, chi.URLParam(r, "number"), req.Status, tracking)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}
