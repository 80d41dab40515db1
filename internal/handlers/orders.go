package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/clovemart/api/internal/domain"
	"github.com/clovemart/api/internal/platform/auth"
	"github.com/clovemart/api/internal/platform/httpx"
	"github.com/clovemart/api/internal/services"
)

const maxOrderBodySize = 8 * 1024

// OrderHandlers exposes the authenticated order history endpoints.
type OrderHandlers struct {
	authn  *auth.Authenticator
	orders services.OrderService
}

// NewOrderHandlers constructs order handlers guarded by Firebase authentication.
func NewOrderHandlers(authn *auth.Authenticator, orders services.OrderService) *OrderHandlers {
	return &OrderHandlers{
		authn:  authn,
		orders: orders,
	}
}

// Routes wires the /orders endpoints onto the provided router.
func (h *OrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth())
	}
	r.Get("/", h.list)
	r.Get("/{orderID}", h.get)
	r.Post("/{orderID}/cancel", h.cancel)
}

func (h *OrderHandlers) list(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := h.requireIdentity(w, r)
	if !ok {
		return
	}

	query := services.ListOrdersQuery{
		UserID: identity.UID,
		Pagination: services.Pagination{
			PageToken: strings.TrimSpace(r.URL.Query().Get("pageToken")),
		},
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("pageSize")); raw != "" {
		size, err := strconv.Atoi(raw)
		if err != nil || size < 0 {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "pageSize must be a non-negative integer", http.StatusBadRequest))
			return
		}
		query.Pagination.PageSize = size
	}
	statuses, err := parseOrderStatuses(r.URL.Query()["status"])
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}
	query.Status = statuses

	page, err := h.orders.ListOrders(ctx, query)
	if err != nil {
		h.writeOrderError(ctx, w, err)
		return
	}

	items := make([]orderPayload, 0, len(page.Items))
	for _, order := range page.Items {
		items = append(items, buildOrderPayload(order))
	}
	writeJSONResponse(w, http.StatusOK, orderListResponse{
		Orders:        items,
		NextPageToken: page.NextPageToken,
	})
}

func (h *OrderHandlers) get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := h.requireIdentity(w, r)
	if !ok {
		return
	}

	order, err := h.orders.GetOrder(ctx, chi.URLParam(r, "orderID"), identity.UID)
	if err != nil {
		h.writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

type cancelOrderRequest struct {
	Reason string `json:"reason"`
}

func (h *OrderHandlers) cancel(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := h.requireIdentity(w, r)
	if !ok {
		return
	}

	body, err := readLimitedBody(r, maxOrderBodySize)
	if err != nil && !errors.Is(err, errEmptyBody) {
		writeBodyError(ctx, w, err)
		return
	}
	var req cancelOrderRequest
	if len(body) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body must be valid JSON", http.StatusBadRequest))
			return
		}
	}

	order, err := h.orders.CancelOrder(ctx, services.CancelOrderCommand{
		OrderID: chi.URLParam(r, "orderID"),
		UserID:  identity.UID,
		Reason:  strings.TrimSpace(req.Reason),
	})
	if err != nil {
		h.writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func (h *OrderHandlers) requireIdentity(w http.ResponseWriter, r *http.Request) (*auth.Identity, bool) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return nil, false
	}
	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || identity == nil || strings.TrimSpace(identity.UID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return nil, false
	}
	return identity, true
}

func (h *OrderHandlers) writeOrderError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrOrderInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrOrderNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
	case errors.Is(err, services.ErrOrderInvalidState):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_order_state", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrStockUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("insufficient_stock", "insufficient stock for one or more items", http.StatusConflict))
	case errors.Is(err, services.ErrOrderUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("order_error", "failed to process order request", http.StatusInternalServerError))
	}
}

func parseOrderStatuses(values []string) ([]domain.OrderStatus, error) {
	var statuses []domain.OrderStatus
	for _, raw := range values {
		for _, part := range strings.Split(raw, ",") {
			part = strings.ToLower(strings.TrimSpace(part))
			if part == "" {
				continue
			}
			switch status := domain.OrderStatus(part); status {
			case domain.OrderStatusPlaced, domain.OrderStatusPaid, domain.OrderStatusShipped,
				domain.OrderStatusDelivered, domain.OrderStatusCanceled:
				statuses = append(statuses, status)
			default:
				return nil, errors.New("status must be one of placed, paid, shipped, delivered, canceled")
			}
		}
	}
	return statuses, nil
}

type orderListResponse struct {
	Orders        []orderPayload `json:"orders"`
	NextPageToken string         `json:"nextPageToken,omitempty"`
}

type orderResponse struct {
	Order orderPayload `json:"order"`
}

type orderPayload struct {
	ID              string             `json:"id"`
	OrderNumber     string             `json:"orderNumber"`
	UserID          string             `json:"userId,omitempty"`
	CheckoutRef     string             `json:"checkoutRef,omitempty"`
	Status          string             `json:"status"`
	Currency        string             `json:"currency"`
	Totals          orderTotalsPayload `json:"totals"`
	Items           []orderItemPayload `json:"items"`
	ShippingAddress addressPayload     `json:"shippingAddress"`
	Contact         contactPayload     `json:"contact"`
	DeliveryNote    string             `json:"deliveryNote,omitempty"`
	Payment         orderPaymentInfo   `json:"payment"`
	PlacedAt        string             `json:"placedAt,omitempty"`
	CreatedAt       string             `json:"createdAt,omitempty"`
	UpdatedAt       string             `json:"updatedAt,omitempty"`
	CanceledAt      string             `json:"canceledAt,omitempty"`
	CancelReason    string             `json:"cancelReason,omitempty"`
}

type orderTotalsPayload struct {
	Subtotal int64 `json:"subtotal"`
	Tax      int64 `json:"tax"`
	Shipping int64 `json:"shipping"`
	Total    int64 `json:"total"`
}

type orderItemPayload struct {
	ProductRef string `json:"productRef"`
	SKU        string `json:"sku"`
	Title      string `json:"title"`
	Quantity   int    `json:"quantity"`
	UnitPrice  int64  `json:"unitPrice"`
	Total      int64  `json:"total"`
}

type orderPaymentInfo struct {
	Method           string `json:"method"`
	State            string `json:"state"`
	GatewayReference string `json:"gatewayReference,omitempty"`
	PaymentID        string `json:"paymentId,omitempty"`
	Amount           int64  `json:"amount"`
	Currency         string `json:"currency"`
	CapturedAt       string `json:"capturedAt,omitempty"`
}

func buildOrderPayload(order services.Order) orderPayload {
	items := make([]orderItemPayload, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, orderItemPayload{
			ProductRef: item.ProductRef,
			SKU:        item.SKU,
			Title:      item.Title,
			Quantity:   item.Quantity,
			UnitPrice:  item.UnitPrice,
			Total:      item.Total,
		})
	}

	payload := orderPayload{
		ID:          order.ID,
		OrderNumber: order.OrderNumber,
		UserID:      order.UserID,
		CheckoutRef: order.CheckoutRef,
		Status:      string(order.Status),
		Currency:    order.Currency,
		Totals: orderTotalsPayload{
			Subtotal: order.Totals.Subtotal,
			Tax:      order.Totals.Tax,
			Shipping: order.Totals.Shipping,
			Total:    order.Totals.Total,
		},
		Items:           items,
		ShippingAddress: buildAddressPayload(order.ShippingAddress),
		Contact:         contactPayload{Email: order.Contact.Email, Phone: order.Contact.Phone},
		DeliveryNote:    order.DeliveryNote,
		Payment: orderPaymentInfo{
			Method:           string(order.Payment.Method),
			State:            string(order.Payment.State),
			GatewayReference: order.Payment.GatewayReference,
			PaymentID:        order.Payment.PaymentID,
			Amount:           order.Payment.Amount,
			Currency:         order.Payment.Currency,
		},
		PlacedAt:  formatTime(order.PlacedAt),
		CreatedAt: formatTime(order.CreatedAt),
		UpdatedAt: formatTime(order.UpdatedAt),
	}
	if order.Payment.CapturedAt != nil {
		payload.Payment.CapturedAt = formatTime(*order.Payment.CapturedAt)
	}
	if order.CanceledAt != nil {
		payload.CanceledAt = formatTime(*order.CanceledAt)
	}
	if order.CancelReason != nil {
		payload.CancelReason = *order.CancelReason
	}
	return payload
}
