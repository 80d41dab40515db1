package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/clovemart/api/internal/platform/auth"
	"github.com/clovemart/api/internal/platform/httpx"
	"github.com/clovemart/api/internal/services"
)

const maxCartBodySize = 16 * 1024

// CartHandlers exposes cart endpoints for customers and, when enabled, guests.
type CartHandlers struct {
	authn      *auth.Authenticator
	carts      services.CartService
	allowGuest bool
}

// NewCartHandlers constructs cart handlers. Authentication is optional when
// guest carts are enabled; guests identify themselves through the guest id
// header instead.
func NewCartHandlers(authn *auth.Authenticator, carts services.CartService, allowGuest bool) *CartHandlers {
	return &CartHandlers{
		authn:      authn,
		carts:      carts,
		allowGuest: allowGuest,
	}
}

// Routes wires the /cart endpoints onto the provided router.
func (h *CartHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		if h.allowGuest {
			r.Use(h.authn.OptionalFirebaseAuth())
		} else {
			r.Use(h.authn.RequireFirebaseAuth())
		}
	}
	r.Get("/", h.getCart)
	r.Delete("/", h.clearCart)
	r.Put("/items", h.upsertItem)
	r.Delete("/items/{itemID}", h.removeItem)
	r.Get("/estimate", h.estimate)
}

func (h *CartHandlers) getCart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	who, ok := h.caller(w, r)
	if !ok {
		return
	}

	cart, err := h.carts.GetCart(ctx, who.OwnerID)
	if err != nil {
		h.writeCartError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, cartResponse{Cart: buildCartPayload(cart)})
}

type upsertCartItemRequest struct {
	ProductID string `json:"productId"`
	SKU       string `json:"sku"`
	Title     string `json:"title"`
	Quantity  int    `json:"quantity"`
	UnitPrice int64  `json:"unitPrice"`
	Currency  string `json:"currency"`
}

func (h *CartHandlers) upsertItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	who, ok := h.caller(w, r)
	if !ok {
		return
	}

	body, err := readLimitedBody(r, maxCartBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}
	var req upsertCartItemRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body must be valid JSON", http.StatusBadRequest))
		return
	}

	cart, err := h.carts.UpsertItem(ctx, services.UpsertCartItemCommand{
		OwnerID:   who.OwnerID,
		ProductID: strings.TrimSpace(req.ProductID),
		SKU:       strings.TrimSpace(req.SKU),
		Title:     strings.TrimSpace(req.Title),
		Quantity:  req.Quantity,
		UnitPrice: req.UnitPrice,
		Currency:  strings.ToUpper(strings.TrimSpace(req.Currency)),
	})
	if err != nil {
		h.writeCartError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, cartResponse{Cart: buildCartPayload(cart)})
}

func (h *CartHandlers) removeItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	who, ok := h.caller(w, r)
	if !ok {
		return
	}

	itemID := strings.TrimSpace(chi.URLParam(r, "itemID"))
	if itemID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "item id is required", http.StatusBadRequest))
		return
	}

	cart, err := h.carts.RemoveItem(ctx, services.RemoveCartItemCommand{
		OwnerID: who.OwnerID,
		ItemID:  itemID,
	})
	if err != nil {
		h.writeCartError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, cartResponse{Cart: buildCartPayload(cart)})
}

func (h *CartHandlers) estimate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	who, ok := h.caller(w, r)
	if !ok {
		return
	}

	breakdown, err := h.carts.Estimate(ctx, who.OwnerID)
	if err != nil {
		h.writeCartError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{
		"estimate": buildBreakdownPayload(breakdown),
	})
}

func (h *CartHandlers) clearCart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	who, ok := h.caller(w, r)
	if !ok {
		return
	}

	if err := h.carts.Clear(ctx, who.OwnerID); err != nil {
		h.writeCartError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *CartHandlers) caller(w http.ResponseWriter, r *http.Request) (caller, bool) {
	ctx := r.Context()
	if h.carts == nil {
		httpx.WriteError(ctx, w, httpx.NewError("cart_service_unavailable", "cart service is unavailable", http.StatusServiceUnavailable))
		return caller{}, false
	}
	who, err := resolveCaller(r, h.allowGuest)
	if err != nil {
		writeCallerError(ctx, w, err)
		return caller{}, false
	}
	return who, true
}

func (h *CartHandlers) writeCartError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrCartInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrInvalidCart):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_cart_state", err.Error(), http.StatusUnprocessableEntity))
	case errors.Is(err, services.ErrPricingOverflow), errors.Is(err, services.ErrPricingConfig):
		httpx.WriteError(ctx, w, httpx.NewError("pricing_error", err.Error(), http.StatusUnprocessableEntity))
	case errors.Is(err, services.ErrCartNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("cart_not_found", "cart not found", http.StatusNotFound))
	case errors.Is(err, services.ErrCartConflict):
		httpx.WriteError(ctx, w, httpx.NewError("cart_conflict", "cart has been modified; refresh and retry", http.StatusConflict))
	case errors.Is(err, services.ErrCartUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("cart_service_unavailable", "cart service is unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("cart_error", "failed to process cart request", http.StatusInternalServerError))
	}
}

func writeCallerError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, errUnauthenticated), errors.Is(err, errGuestsNotAllowed):
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication or a guest id is required", http.StatusUnauthorized))
	case errors.Is(err, errInvalidGuestID):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_guest_id", err.Error(), http.StatusBadRequest))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
	}
}

func writeBodyError(ctx context.Context, w http.ResponseWriter, err error) {
	status := http.StatusBadRequest
	code := "invalid_request"
	if errors.Is(err, errBodyTooLarge) {
		status = http.StatusRequestEntityTooLarge
		code = "payload_too_large"
	}
	httpx.WriteError(ctx, w, httpx.NewError(code, err.Error(), status))
}

type cartResponse struct {
	Cart cartPayload `json:"cart"`
}

type cartPayload struct {
	ID         string            `json:"id"`
	UserID     string            `json:"userId,omitempty"`
	Currency   string            `json:"currency"`
	ItemsCount int               `json:"itemsCount"`
	Items      []cartItemPayload `json:"items"`
	Metadata   map[string]any    `json:"metadata,omitempty"`
	CreatedAt  string            `json:"createdAt,omitempty"`
	UpdatedAt  string            `json:"updatedAt,omitempty"`
}

type cartItemPayload struct {
	ID        string `json:"id"`
	ProductID string `json:"productId"`
	SKU       string `json:"sku"`
	Title     string `json:"title"`
	Quantity  int    `json:"quantity"`
	UnitPrice int64  `json:"unitPrice"`
	Currency  string `json:"currency"`
	LineTotal int64  `json:"lineTotal"`
	AddedAt   string `json:"addedAt,omitempty"`
	UpdatedAt string `json:"updatedAt,omitempty"`
}

type breakdownPayload struct {
	Currency string `json:"currency"`
	Subtotal int64  `json:"subtotal"`
	Tax      int64  `json:"tax"`
	Shipping int64  `json:"shipping"`
	Total    int64  `json:"total"`
}

func buildCartPayload(cart services.Cart) cartPayload {
	payload := cartPayload{
		ID:         strings.TrimSpace(cart.ID),
		UserID:     strings.TrimSpace(cart.UserID),
		Currency:   strings.ToUpper(strings.TrimSpace(cart.Currency)),
		ItemsCount: len(cart.Items),
		Items:      buildCartItems(cart.Items),
		Metadata:   cloneMap(cart.Metadata),
		CreatedAt:  formatTime(cart.CreatedAt),
		UpdatedAt:  formatTime(cart.UpdatedAt),
	}
	return payload
}

func buildCartItems(items []services.CartItem) []cartItemPayload {
	payload := make([]cartItemPayload, 0, len(items))
	for _, item := range items {
		entry := cartItemPayload{
			ID:        strings.TrimSpace(item.ID),
			ProductID: strings.TrimSpace(item.ProductID),
			SKU:       strings.TrimSpace(item.SKU),
			Title:     item.Title,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
			Currency:  strings.ToUpper(strings.TrimSpace(item.Currency)),
			LineTotal: item.UnitPrice * int64(item.Quantity),
			AddedAt:   formatTime(item.AddedAt),
		}
		if item.UpdatedAt != nil {
			entry.UpdatedAt = formatTime(*item.UpdatedAt)
		}
		payload = append(payload, entry)
	}
	return payload
}

func buildBreakdownPayload(breakdown services.PriceBreakdown) breakdownPayload {
	return breakdownPayload{
		Currency: breakdown.Currency,
		Subtotal: breakdown.Subtotal,
		Tax:      breakdown.Tax,
		Shipping: breakdown.Shipping,
		Total:    breakdown.Total,
	}
}
