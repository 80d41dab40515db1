package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/clovemart/api/internal/payments"
	"github.com/clovemart/api/internal/platform/httpx"
	"github.com/clovemart/api/internal/services"
)

const (
	maxWebhookBodySize      = 256 * 1024
	razorpaySignatureHeader = "X-Razorpay-Signature"
)

// WebhookHandlers receives asynchronous gateway notifications and reconciles
// them onto orders. The client-driven finalize flow is authoritative; webhooks
// catch captures the client never reported.
type WebhookHandlers struct {
	orders services.OrderService

	razorpaySecret string
}

// WebhookOption customises the webhook handlers.
type WebhookOption func(*WebhookHandlers)

// WithRazorpayWebhookSecret sets the shared secret Razorpay signs webhook
// deliveries with.
func WithRazorpayWebhookSecret(secret string) WebhookOption {
	return func(h *WebhookHandlers) {
		h.razorpaySecret = strings.TrimSpace(secret)
	}
}

// NewWebhookHandlers constructs the gateway webhook handlers.
func NewWebhookHandlers(orders services.OrderService, opts ...WebhookOption) *WebhookHandlers {
	h := &WebhookHandlers{orders: orders}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes wires the /webhooks endpoints onto the provided router.
func (h *WebhookHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/razorpay", h.razorpay)
}

// razorpayEvent mirrors the delivery envelope Razorpay posts.
type razorpayEvent struct {
	Event   string `json:"event"`
	Payload struct {
		Payment struct {
			Entity struct {
				ID      string `json:"id"`
				OrderID string `json:"order_id"`
				Status  string `json:"status"`
			} `json:"entity"`
		} `json:"payment"`
	} `json:"payload"`
}

func (h *WebhookHandlers) razorpay(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("webhook_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}
	if h.razorpaySecret == "" {
		httpx.WriteError(ctx, w, httpx.NewError("webhook_unavailable", "webhook secret not configured", http.StatusServiceUnavailable))
		return
	}

	body, err := readLimitedBody(r, maxWebhookBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	if !payments.VerifyWebhookSignature(h.razorpaySecret, body, r.Header.Get(razorpaySignatureHeader)) {
		httpx.WriteError(ctx, w, httpx.NewError("signature_mismatch", "webhook signature verification failed", http.StatusUnauthorized))
		return
	}

	var event razorpayEvent
	if err := json.Unmarshal(body, &event); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "webhook body must be valid JSON", http.StatusBadRequest))
		return
	}

	if event.Event != "payment.captured" {
		writeJSONResponse(w, http.StatusOK, map[string]any{"status": "ignored"})
		return
	}

	paymentID := strings.TrimSpace(event.Payload.Payment.Entity.ID)
	orderRef := strings.TrimSpace(event.Payload.Payment.Entity.OrderID)
	if paymentID == "" || orderRef == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "payment id and order id are required", http.StatusBadRequest))
		return
	}

	order, err := h.orders.RecordGatewayCapture(ctx, orderRef, paymentID)
	if err != nil {
		switch {
		// Not-found gets a retryable status: the capture webhook can arrive
		// before the client finalize has created the order.
		case errors.Is(err, services.ErrOrderNotFound):
			httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "no order for gateway reference yet", http.StatusNotFound))
		case errors.Is(err, services.ErrOrderInvalidState):
			writeJSONResponse(w, http.StatusOK, map[string]any{"status": "already_recorded"})
		case errors.Is(err, services.ErrOrderInvalidInput):
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		default:
			httpx.WriteError(ctx, w, httpx.NewError("webhook_error", "failed to record capture", http.StatusInternalServerError))
		}
		return
	}

	writeJSONResponse(w, http.StatusOK, map[string]any{
		"status":  "recorded",
		"orderId": order.ID,
	})
}
