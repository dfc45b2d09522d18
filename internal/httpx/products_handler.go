package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/ariefcatur/go-inventory-ledger.git/internal/inventory"
	"github.com/go-chi/chi/v5"
)

type AdjustStockReq struct {
	Delta int    `json:"delta"` // signed correction to current stock
	Actor string `json:"actor"`
}

type ProductsHandler struct {
	Store   inventory.StockStore
	Manager *inventory.Manager
	Monitor *inventory.AlertMonitor
}

func (h *ProductsHandler) Register(r *chi.Mux) {
	r.Get("/products", h.listProducts)
	r.Post("/products/{id}/adjust", h.adjustStock)
	r.Get("/alerts", h.listAlerts)
}

func (h *ProductsHandler) listProducts(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	ps, err := h.Store.ListProducts(ctx)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, ps)
}

func (h *ProductsHandler) adjustStock(w http.ResponseWriter, r *http.Request) {
	productID := chi.URLParam(r, "id")
	var req AdjustStockReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if req.Actor == "" {
		req.Actor = "admin"
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	err := h.Manager.Adjust(ctx, productID, req.Delta, req.Actor)
	switch {
	case err == nil:
	case errors.Is(err, inventory.ErrProductNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "product not found"})
		return
	default:
		var short *inventory.InsufficientStockError
		if errors.As(err, &short) {
			writeJSON(w, http.StatusConflict, map[string]any{"error": "adjustment below reserved stock", "detail": short})
			return
		}
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	p, err := h.Store.GetProduct(ctx, productID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// listAlerts runs an on-demand scan; the periodic worker handles
// notification delivery, this endpoint only reports.
func (h *ProductsHandler) listAlerts(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	alerts, err := h.Monitor.CheckLowStockAlerts(ctx)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if alerts == nil {
		alerts = []inventory.LowStockAlert{}
	}
	writeJSON(w, http.StatusOK, alerts)
}
