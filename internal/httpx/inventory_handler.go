package httpx

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/ariefcatur/go-storefront-orders/internal/inventory"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type InventoryService interface {
	ListOpenAlerts(ctx context.Context) ([]inventory.Alert, inventory.Stats, error)
	AlertHistory(ctx context.Context, limit int) ([]inventory.Alert, error)
	ResolveAlert(ctx context.Context, id string) (*inventory.Alert, error)
	ConfigureAutoReorder(ctx context.Context, id string, enabled bool, qty int) (*inventory.Alert, error)
	AutoReorder(ctx context.Context, id string) (*inventory.ReorderResult, error)
	ProcessAutoReorders(ctx context.Context) (inventory.ReorderSummary, error)
	CheckLevels(ctx context.Context, productID string) error
	Sweep(ctx context.Context) (int, error)
	Increment(ctx context.Context, productID, sku string, qty int) (int, error)
}

// InventoryHandler serves the operator endpoints; every route is admin only.
type InventoryHandler struct {
	Svc InventoryService
	Log *zap.Logger
}

type alertsResp struct {
	Alerts []inventory.Alert `json:"alerts"`
	Stats  inventory.Stats   `json:"stats"`
}

type autoReorderReq struct {
	Enabled  bool `json:"enabled"`
	Quantity int  `json:"quantity"`
}

type checkReq struct {
	ProductID string `json:"productId"`
}

type restockReq struct {
	ProductID  string `json:"productId"`
	VariantSKU string `json:"variantSku"`
	Quantity   int    `json:"quantity"`
}

func (h *InventoryHandler) Register(r chi.Router, admin func(http.Handler) http.Handler) {
	r.Route("/inventory", func(r chi.Router) {
		r.Use(admin)
		r.Get("/alerts", h.listAlerts)
		r.Get("/alerts/history", h.history)
		r.Put("/alerts/{id}/resolve", h.resolve)
		r.Put("/alerts/{id}/auto-reorder", h.configureAutoReorder)
		r.Post("/alerts/{id}/reorder", h.reorder)
		r.Post("/auto-reorder", h.processAutoReorders)
		r.Post("/check", h.check)
		r.Post("/restock", h.restock)
	})
}

func (h *InventoryHandler) listAlerts(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	alerts, stats, err := h.Svc.ListOpenAlerts(ctx)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	if alerts == nil {
		alerts = []inventory.Alert{}
	}
	writeJSON(w, http.StatusOK, alertsResp{Alerts: alerts, Stats: stats})
}

func (h *InventoryHandler) history(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	alerts, err := h.Svc.AlertHistory(ctx, limit)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	if alerts == nil {
		alerts = []inventory.Alert{}
	}
	writeJSON(w, http.StatusOK, alerts)
}

func (h *InventoryHandler) resolve(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	a, err := h.Svc.ResolveAlert(ctx, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (h *InventoryHandler) configureAutoReorder(w http.ResponseWriter, r *http.Request) {
	var req autoReorderReq
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.Log, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	a, err := h.Svc.ConfigureAutoReorder(ctx, chi.URLParam(r, "id"), req.Enabled, req.Quantity)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (h *InventoryHandler) reorder(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	res, err := h.Svc.AutoReorder(ctx, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *InventoryHandler) processAutoReorders(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	sum, err := h.Svc.ProcessAutoReorders(ctx)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

// check runs CheckLevels for one product, or a full sweep without a body.
func (h *InventoryHandler) check(w http.ResponseWriter, r *http.Request) {
	var req checkReq
	if err := decodeJSON(w, r, &req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, h.Log, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	if req.ProductID != "" {
		if err := h.Svc.CheckLevels(ctx, req.ProductID); err != nil {
			writeError(w, h.Log, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]int{"checked": 1})
		return
	}
	n, err := h.Svc.Sweep(ctx)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"checked": n})
}

func (h *InventoryHandler) restock(w http.ResponseWriter, r *http.Request) {
	var req restockReq
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.Log, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	stock, err := h.Svc.Increment(ctx, req.ProductID, req.VariantSKU, req.Quantity)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"productId": req.ProductID, "variantSku": req.VariantSKU, "stock": stock})
}
