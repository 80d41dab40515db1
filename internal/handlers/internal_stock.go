package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/clovemart/api/internal/domain"
	"github.com/clovemart/api/internal/platform/httpx"
	"github.com/clovemart/api/internal/services"
)

const maxStockBodySize = 4 * 1024

// StockHandlers exposes the per-SKU inventory counters on the internal
// surface. Callers are trusted services, so authentication happens in the
// /internal group middleware, not here.
type StockHandlers struct {
	inventory services.InventoryService
}

// NewStockHandlers constructs the internal stock handlers.
func NewStockHandlers(inventory services.InventoryService) *StockHandlers {
	return &StockHandlers{inventory: inventory}
}

// Routes wires the /internal/stock endpoints onto the provided router.
func (h *StockHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/{sku}", h.get)
	r.Post("/{sku}/adjust", h.adjust)
}

func (h *StockHandlers) get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sku := strings.TrimSpace(chi.URLParam(r, "sku"))
	if h.inventory == nil {
		httpx.WriteError(ctx, w, httpx.NewError("inventory_unavailable", "inventory service unavailable", http.StatusServiceUnavailable))
		return
	}

	record, err := h.inventory.GetStock(ctx, sku)
	if err != nil {
		h.writeStockError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildStockPayload(record))
}

type adjustStockRequest struct {
	Delta  int64  `json:"delta"`
	Reason string `json:"reason"`
}

func (h *StockHandlers) adjust(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sku := strings.TrimSpace(chi.URLParam(r, "sku"))
	if h.inventory == nil {
		httpx.WriteError(ctx, w, httpx.NewError("inventory_unavailable", "inventory service unavailable", http.StatusServiceUnavailable))
		return
	}

	var req adjustStockRequest
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxStockBodySize))
	if err := decoder.Decode(&req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body must be valid JSON", http.StatusBadRequest))
		return
	}

	record, err := h.inventory.AdjustStock(ctx, services.AdjustStockCommand{
		SKU:    sku,
		Delta:  req.Delta,
		Reason: req.Reason,
	})
	if err != nil {
		h.writeStockError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildStockPayload(record))
}

type stockPayload struct {
	SKU       string `json:"sku"`
	Available int64  `json:"available"`
	UpdatedAt string `json:"updatedAt,omitempty"`
}

func buildStockPayload(record domain.StockRecord) stockPayload {
	return stockPayload{
		SKU:       record.SKU,
		Available: record.Available,
		UpdatedAt: formatTime(record.UpdatedAt),
	}
}

func (h *StockHandlers) writeStockError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrInventoryInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "sku and a non-zero delta are required", http.StatusBadRequest))
	case errors.Is(err, services.ErrStockNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("stock_not_found", "no stock record for sku", http.StatusNotFound))
	case errors.Is(err, services.ErrInsufficientStock):
		httpx.WriteError(ctx, w, httpx.NewError("insufficient_stock", "adjustment would drop availability below zero", http.StatusConflict))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("inventory_error", "failed to process inventory request", http.StatusInternalServerError))
	}
}
