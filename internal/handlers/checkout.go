package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/clovemart/api/internal/domain"
	"github.com/clovemart/api/internal/payments"
	"github.com/clovemart/api/internal/platform/auth"
	"github.com/clovemart/api/internal/platform/httpx"
	"github.com/clovemart/api/internal/services"
)

const maxCheckoutBodySize = 32 * 1024

// CheckoutHandlers drives the checkout session endpoints for customers and,
// when guest checkout is enabled, anonymous shoppers.
type CheckoutHandlers struct {
	authn       *auth.Authenticator
	checkout    services.CheckoutService
	allowGuest  bool
	limiter     rateLimiter
	guestTokens *auth.GuestSessionSigner
}

// CheckoutOption customises checkout handler construction.
type CheckoutOption func(*CheckoutHandlers)

// WithGuestSessionSigner issues resume tokens to guest sessions and requires
// them on every later call to the session.
func WithGuestSessionSigner(signer *auth.GuestSessionSigner) CheckoutOption {
	return func(h *CheckoutHandlers) {
		h.guestTokens = signer
	}
}

// NewCheckoutHandlers constructs the checkout handlers. Session creation is
// rate limited per owner to stop a runaway client from minting sessions.
func NewCheckoutHandlers(authn *auth.Authenticator, checkout services.CheckoutService, allowGuest bool, opts ...CheckoutOption) *CheckoutHandlers {
	h := &CheckoutHandlers{
		authn:      authn,
		checkout:   checkout,
		allowGuest: allowGuest,
		limiter:    newSimpleRateLimiter(30, time.Minute, time.Now),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes wires the /checkout endpoints onto the provided router.
func (h *CheckoutHandlers) Routes(r chi.Router) {
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
	r.Post("/", h.begin)
	r.Get("/{checkoutID}", h.get)
	r.Post("/{checkoutID}/shipping", h.submitShipping)
	r.Post("/{checkoutID}/payment-method", h.selectPayment)
	r.Post("/{checkoutID}/payment", h.initiatePayment)
	r.Post("/{checkoutID}/finalize", h.finalize)
	r.Post("/{checkoutID}/back", h.back)
	r.Post("/{checkoutID}/abandon", h.abandon)
}

func (h *CheckoutHandlers) begin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	who, ok := h.caller(w, r)
	if !ok {
		return
	}
	if h.limiter != nil && !h.limiter.Allow(who.OwnerID) {
		httpx.WriteError(ctx, w, httpx.NewError("rate_limited", "too many checkout sessions; slow down", http.StatusTooManyRequests))
		return
	}

	session, err := h.checkout.Begin(ctx, services.BeginCheckoutCommand{
		OwnerID: who.OwnerID,
		UserID:  who.UserID,
	})
	if err != nil {
		h.writeCheckoutError(ctx, w, err)
		return
	}

	resp := checkoutResponse{Checkout: buildCheckoutPayload(session)}
	if who.UserID == "" && h.guestTokens != nil {
		token, err := h.guestTokens.Issue(auth.GuestSession{Owner: who.OwnerID, CheckoutID: session.ID})
		if err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("checkout_error", "failed to issue guest session token", http.StatusInternalServerError))
			return
		}
		resp.GuestToken = token
	}
	writeJSONResponse(w, http.StatusCreated, resp)
}

func (h *CheckoutHandlers) get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	who, ok := h.sessionCaller(w, r)
	if !ok {
		return
	}

	session, err := h.checkout.Get(ctx, chi.URLParam(r, "checkoutID"), who.UserID)
	if err != nil {
		h.writeCheckoutError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, checkoutResponse{Checkout: buildCheckoutPayload(session)})
}

type guestShippingRequest struct {
	FullName     string `json:"fullName"`
	Line1        string `json:"line1"`
	Line2        string `json:"line2"`
	City         string `json:"city"`
	State        string `json:"state"`
	PostalCode   string `json:"postalCode"`
	Country      string `json:"country"`
	ContactEmail string `json:"contactEmail"`
	ContactPhone string `json:"contactPhone"`
	DeliveryNote string `json:"deliveryNote"`
}

type submitShippingRequest struct {
	AddressID    string                `json:"addressId"`
	Guest        *guestShippingRequest `json:"guest"`
	ContactEmail string                `json:"contactEmail"`
	ContactPhone string                `json:"contactPhone"`
	DeliveryNote string                `json:"deliveryNote"`
}

func (h *CheckoutHandlers) submitShipping(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	who, ok := h.sessionCaller(w, r)
	if !ok {
		return
	}

	body, err := readLimitedBody(r, maxCheckoutBodySize)
	if err != nil && !errors.Is(err, errEmptyBody) {
		writeBodyError(ctx, w, err)
		return
	}
	var req submitShippingRequest
	if len(body) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body must be valid JSON", http.StatusBadRequest))
			return
		}
	}

	cmd := services.SubmitShippingCommand{
		CheckoutID:   chi.URLParam(r, "checkoutID"),
		UserID:       who.UserID,
		AddressID:    strings.TrimSpace(req.AddressID),
		ContactEmail: firstNonEmptyString(req.ContactEmail, who.Email),
		ContactPhone: strings.TrimSpace(req.ContactPhone),
		DeliveryNote: req.DeliveryNote,
	}
	if req.Guest != nil {
		cmd.Guest = &services.GuestShippingForm{
			FullName:     req.Guest.FullName,
			Line1:        req.Guest.Line1,
			Line2:        req.Guest.Line2,
			City:         req.Guest.City,
			State:        req.Guest.State,
			PostalCode:   req.Guest.PostalCode,
			Country:      req.Guest.Country,
			ContactEmail: req.Guest.ContactEmail,
			ContactPhone: req.Guest.ContactPhone,
			DeliveryNote: req.Guest.DeliveryNote,
		}
	}

	session, err := h.checkout.SubmitShipping(ctx, cmd)
	if err != nil {
		h.writeCheckoutError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, checkoutResponse{Checkout: buildCheckoutPayload(session)})
}

type selectPaymentRequest struct {
	Method string `json:"method"`
}

func (h *CheckoutHandlers) selectPayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	who, ok := h.sessionCaller(w, r)
	if !ok {
		return
	}

	body, err := readLimitedBody(r, maxCheckoutBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}
	var req selectPaymentRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body must be valid JSON", http.StatusBadRequest))
		return
	}

	session, err := h.checkout.SelectPayment(ctx, services.SelectPaymentCommand{
		CheckoutID: chi.URLParam(r, "checkoutID"),
		UserID:     who.UserID,
		Method:     domain.PaymentMethod(strings.ToLower(strings.TrimSpace(req.Method))),
	})
	if err != nil {
		h.writeCheckoutError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, checkoutResponse{Checkout: buildCheckoutPayload(session)})
}

func (h *CheckoutHandlers) initiatePayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	who, ok := h.sessionCaller(w, r)
	if !ok {
		return
	}

	session, err := h.checkout.InitiatePayment(ctx, services.InitiatePaymentCommand{
		CheckoutID:     chi.URLParam(r, "checkoutID"),
		UserID:         who.UserID,
		IdempotencyKey: strings.TrimSpace(r.Header.Get("Idempotency-Key")),
	})
	if err != nil {
		h.writeCheckoutError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, checkoutResponse{Checkout: buildCheckoutPayload(session)})
}

type finalizeRequest struct {
	PaymentID string `json:"paymentId"`
	Signature string `json:"signature"`
}

func (h *CheckoutHandlers) finalize(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	who, ok := h.sessionCaller(w, r)
	if !ok {
		return
	}

	body, err := readLimitedBody(r, maxCheckoutBodySize)
	if err != nil && !errors.Is(err, errEmptyBody) {
		writeBodyError(ctx, w, err)
		return
	}
	var req finalizeRequest
	if len(body) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body must be valid JSON", http.StatusBadRequest))
			return
		}
	}

	order, err := h.checkout.Finalize(ctx, services.FinalizeCheckoutCommand{
		CheckoutID: chi.URLParam(r, "checkoutID"),
		UserID:     who.UserID,
		PaymentID:  req.PaymentID,
		Signature:  req.Signature,
	})
	if err != nil {
		h.writeCheckoutError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, orderResponse{Order: buildOrderPayload(order)})
}

func (h *CheckoutHandlers) back(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	who, ok := h.sessionCaller(w, r)
	if !ok {
		return
	}

	session, err := h.checkout.Back(ctx, chi.URLParam(r, "checkoutID"), who.UserID)
	if err != nil {
		h.writeCheckoutError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, checkoutResponse{Checkout: buildCheckoutPayload(session)})
}

func (h *CheckoutHandlers) abandon(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	who, ok := h.sessionCaller(w, r)
	if !ok {
		return
	}

	if err := h.checkout.Abandon(ctx, chi.URLParam(r, "checkoutID"), who.UserID); err != nil {
		h.writeCheckoutError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

const guestTokenHeader = "X-Guest-Token"

// sessionCaller resolves the caller for a session-scoped endpoint. When a
// signer is configured, guests must present the resume token issued at Begin,
// bound to this exact session.
func (h *CheckoutHandlers) sessionCaller(w http.ResponseWriter, r *http.Request) (caller, bool) {
	who, ok := h.caller(w, r)
	if !ok {
		return caller{}, false
	}
	if who.UserID != "" || h.guestTokens == nil {
		return who, true
	}

	session, err := h.guestTokens.Verify(r.Header.Get(guestTokenHeader))
	if err != nil || session.Owner != who.OwnerID || session.CheckoutID != chi.URLParam(r, "checkoutID") {
		httpx.WriteError(r.Context(), w, httpx.NewError("invalid_guest_token", "a valid guest session token is required", http.StatusUnauthorized))
		return caller{}, false
	}
	return who, true
}

func (h *CheckoutHandlers) caller(w http.ResponseWriter, r *http.Request) (caller, bool) {
	ctx := r.Context()
	if h.checkout == nil {
		httpx.WriteError(ctx, w, httpx.NewError("checkout_unavailable", "checkout service unavailable", http.StatusServiceUnavailable))
		return caller{}, false
	}
	who, err := resolveCaller(r, h.allowGuest)
	if err != nil {
		writeCallerError(ctx, w, err)
		return caller{}, false
	}
	return who, true
}

func (h *CheckoutHandlers) writeCheckoutError(ctx context.Context, w http.ResponseWriter, err error) {
	var guestErr *services.GuestInfoError
	switch {
	case errors.As(err, &guestErr):
		httpx.WriteError(ctx, w, httpx.
			NewError("incomplete_guest_info", "guest shipping details are incomplete", http.StatusUnprocessableEntity).
			WithDetails(map[string]any{"missing": guestErr.Missing}))
	case errors.Is(err, services.ErrNoAddress):
		httpx.WriteError(ctx, w, httpx.NewError("no_saved_address", "no saved address to ship to", http.StatusUnprocessableEntity))
	case errors.Is(err, services.ErrCheckoutInvalidInput), errors.Is(err, payments.ErrInvalidRequest):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrCheckoutNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("checkout_not_found", "checkout session not found", http.StatusNotFound))
	case errors.Is(err, services.ErrInvalidTransition):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_transition", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrIncompleteShipping):
		httpx.WriteError(ctx, w, httpx.NewError("incomplete_shipping", "shipping details are incomplete", http.StatusConflict))
	case errors.Is(err, services.ErrCheckoutConflict):
		httpx.WriteError(ctx, w, httpx.NewError("checkout_conflict", "checkout session has changed; refresh and retry", http.StatusConflict))
	case errors.Is(err, payments.ErrSignatureMismatch):
		httpx.WriteError(ctx, w, httpx.NewError("payment_verification_failed", "payment signature verification failed", http.StatusBadRequest))
	case errors.Is(err, payments.ErrPaymentNotCompleted):
		httpx.WriteError(ctx, w, httpx.NewError("payment_not_completed", "payment has not completed at the gateway", http.StatusConflict))
	case errors.Is(err, services.ErrDuplicateOrder):
		httpx.WriteError(ctx, w, httpx.NewError("duplicate_order", "an order already exists for this checkout", http.StatusConflict))
	case errors.Is(err, services.ErrStockUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("insufficient_stock", "insufficient stock for one or more items", http.StatusConflict))
	case errors.Is(err, services.ErrInvalidCart), errors.Is(err, services.ErrCartInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_cart_state", err.Error(), http.StatusUnprocessableEntity))
	case errors.Is(err, services.ErrCartNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("cart_not_found", "cart not found", http.StatusNotFound))
	case errors.Is(err, services.ErrAddressUnavailable), errors.Is(err, services.ErrCheckoutUnavailable),
		errors.Is(err, services.ErrCartUnavailable), errors.Is(err, services.ErrOrderUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("checkout_unavailable", "checkout service unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("checkout_error", "failed to process checkout request", http.StatusInternalServerError))
	}
}

type checkoutResponse struct {
	Checkout checkoutPayload `json:"checkout"`
	// GuestToken is only set on Begin for guest sessions; clients echo it in
	// the X-Guest-Token header on every later call.
	GuestToken string `json:"guestToken,omitempty"`
}

type checkoutPayload struct {
	ID              string                `json:"id"`
	UserID          string                `json:"userId,omitempty"`
	State           string                `json:"state"`
	Items           []snapshotItemPayload `json:"items"`
	Breakdown       *breakdownPayload     `json:"breakdown,omitempty"`
	ShippingAddress *addressPayload       `json:"shippingAddress,omitempty"`
	Contact         *contactPayload       `json:"contact,omitempty"`
	DeliveryNote    string                `json:"deliveryNote,omitempty"`
	PaymentMethod   string                `json:"paymentMethod,omitempty"`
	Attempt         *attemptPayload       `json:"paymentAttempt,omitempty"`
	OrderID         string                `json:"orderId,omitempty"`
	Revision        int64                 `json:"revision"`
	CreatedAt       string                `json:"createdAt,omitempty"`
	UpdatedAt       string                `json:"updatedAt,omitempty"`
}

type snapshotItemPayload struct {
	ProductID string `json:"productId"`
	SKU       string `json:"sku"`
	Title     string `json:"title"`
	Quantity  int    `json:"quantity"`
	UnitPrice int64  `json:"unitPrice"`
}

type contactPayload struct {
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
}

// attemptPayload exposes what the client needs to drive the gateway UI. The
// client secret and key id are only ever returned to the session owner.
type attemptPayload struct {
	ID               string `json:"id"`
	Method           string `json:"method"`
	GatewayReference string `json:"gatewayReference,omitempty"`
	ClientSecret     string `json:"clientSecret,omitempty"`
	KeyID            string `json:"keyId,omitempty"`
	Amount           int64  `json:"amount"`
	Currency         string `json:"currency"`
	CreatedAt        string `json:"createdAt,omitempty"`
}

func buildCheckoutPayload(session services.CheckoutSession) checkoutPayload {
	items := make([]snapshotItemPayload, 0, len(session.Snapshot.Items))
	for _, item := range session.Snapshot.Items {
		items = append(items, snapshotItemPayload{
			ProductID: item.ProductID,
			SKU:       item.SKU,
			Title:     item.Title,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
		})
	}

	payload := checkoutPayload{
		ID:            session.ID,
		UserID:        session.UserID,
		State:         string(session.State),
		Items:         items,
		DeliveryNote:  session.DeliveryNote,
		PaymentMethod: string(session.PaymentMethod),
		Revision:      session.Revision,
		CreatedAt:     formatTime(session.CreatedAt),
		UpdatedAt:     formatTime(session.UpdatedAt),
	}
	if session.Breakdown != nil {
		breakdown := buildBreakdownPayload(*session.Breakdown)
		payload.Breakdown = &breakdown
	}
	if session.ShippingAddress != nil {
		addr := buildAddressPayload(*session.ShippingAddress)
		payload.ShippingAddress = &addr
	}
	if session.Contact != nil {
		payload.Contact = &contactPayload{Email: session.Contact.Email, Phone: session.Contact.Phone}
	}
	if session.Attempt != nil {
		payload.Attempt = &attemptPayload{
			ID:               session.Attempt.ID,
			Method:           string(session.Attempt.Method),
			GatewayReference: session.Attempt.GatewayReference,
			ClientSecret:     session.Attempt.ClientSecret,
			KeyID:            session.Attempt.KeyID,
			Amount:           session.Attempt.Amount,
			Currency:         session.Attempt.Currency,
			CreatedAt:        formatTime(session.Attempt.CreatedAt),
		}
	}
	if session.OrderID != nil {
		payload.OrderID = *session.OrderID
	}
	return payload
}

func firstNonEmptyString(values ...string) string {
	for _, v := range values {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
