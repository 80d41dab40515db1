package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/clovemart/api/internal/domain"
	"github.com/clovemart/api/internal/payments"
	"github.com/clovemart/api/internal/platform/auth"
	"github.com/clovemart/api/internal/services"
)

type stubCheckoutService struct {
	begin           func(ctx context.Context, cmd services.BeginCheckoutCommand) (services.CheckoutSession, error)
	get             func(ctx context.Context, checkoutID string, userID string) (services.CheckoutSession, error)
	submitShipping  func(ctx context.Context, cmd services.SubmitShippingCommand) (services.CheckoutSession, error)
	selectPayment   func(ctx context.Context, cmd services.SelectPaymentCommand) (services.CheckoutSession, error)
	initiatePayment func(ctx context.Context, cmd services.InitiatePaymentCommand) (services.CheckoutSession, error)
	finalize        func(ctx context.Context, cmd services.FinalizeCheckoutCommand) (services.Order, error)
	back            func(ctx context.Context, checkoutID string, userID string) (services.CheckoutSession, error)
	abandon         func(ctx context.Context, checkoutID string, userID string) error
}

func (s *stubCheckoutService) Begin(ctx context.Context, cmd services.BeginCheckoutCommand) (services.CheckoutSession, error) {
	return s.begin(ctx, cmd)
}

func (s *stubCheckoutService) Get(ctx context.Context, checkoutID string, userID string) (services.CheckoutSession, error) {
	return s.get(ctx, checkoutID, userID)
}

func (s *stubCheckoutService) SubmitShipping(ctx context.Context, cmd services.SubmitShippingCommand) (services.CheckoutSession, error) {
	return s.submitShipping(ctx, cmd)
}

func (s *stubCheckoutService) SelectPayment(ctx context.Context, cmd services.SelectPaymentCommand) (services.CheckoutSession, error) {
	return s.selectPayment(ctx, cmd)
}

func (s *stubCheckoutService) InitiatePayment(ctx context.Context, cmd services.InitiatePaymentCommand) (services.CheckoutSession, error) {
	return s.initiatePayment(ctx, cmd)
}

func (s *stubCheckoutService) Finalize(ctx context.Context, cmd services.FinalizeCheckoutCommand) (services.Order, error) {
	return s.finalize(ctx, cmd)
}

func (s *stubCheckoutService) Back(ctx context.Context, checkoutID string, userID string) (services.CheckoutSession, error) {
	return s.back(ctx, checkoutID, userID)
}

func (s *stubCheckoutService) Abandon(ctx context.Context, checkoutID string, userID string) error {
	return s.abandon(ctx, checkoutID, userID)
}

var _ services.CheckoutService = (*stubCheckoutService)(nil)

func newCheckoutRouter(h *CheckoutHandlers, uid string) chi.Router {
	r := chi.NewRouter()
	if uid != "" {
		r.Use(identityMiddleware(uid))
	}
	r.Route("/checkout", h.Routes)
	return r
}

func sampleSession(state domain.CheckoutState) services.CheckoutSession {
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	breakdown := services.PriceBreakdown{Currency: "INR", Subtotal: 150000, Tax: 27000, Shipping: 9900, Total: 186900}
	return services.CheckoutSession{
		ID:     "chk_01",
		UserID: "u_1",
		State:  state,
		Snapshot: domain.CartSnapshot{
			CartID:   "cart_u_1",
			Currency: "INR",
			Items: []domain.SnapshotItem{
				{ProductID: "prod_1", SKU: "SKU-001", Title: "Clove Jar", Quantity: 2, UnitPrice: 75000},
			},
			TakenAt: now,
		},
		Breakdown: &breakdown,
		Revision:  1,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestCheckoutHandlersBegin(t *testing.T) {
	var seen services.BeginCheckoutCommand
	svc := &stubCheckoutService{
		begin: func(_ context.Context, cmd services.BeginCheckoutCommand) (services.CheckoutSession, error) {
			seen = cmd
			return sampleSession(domain.CheckoutStateShippingInfo), nil
		},
	}

	router := newCheckoutRouter(NewCheckoutHandlers(nil, svc, false), "u_1")
	req := httptest.NewRequest(http.MethodPost, "/checkout/", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	if seen.OwnerID != "u_1" || seen.UserID != "u_1" {
		t.Fatalf("unexpected begin command %#v", seen)
	}

	var body checkoutResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if body.Checkout.State != string(domain.CheckoutStateShippingInfo) {
		t.Fatalf("expected shipping_info state, got %q", body.Checkout.State)
	}
	if body.Checkout.Breakdown == nil || body.Checkout.Breakdown.Total != 186900 {
		t.Fatalf("unexpected breakdown %#v", body.Checkout.Breakdown)
	}
}

func TestCheckoutHandlersBeginGuest(t *testing.T) {
	var seen services.BeginCheckoutCommand
	svc := &stubCheckoutService{
		begin: func(_ context.Context, cmd services.BeginCheckoutCommand) (services.CheckoutSession, error) {
			seen = cmd
			session := sampleSession(domain.CheckoutStateShippingInfo)
			session.UserID = ""
			return session, nil
		},
	}

	router := newCheckoutRouter(NewCheckoutHandlers(nil, svc, true), "")
	req := httptest.NewRequest(http.MethodPost, "/checkout/", nil)
	req.Header.Set("X-Guest-Id", "f8a31c2d9e")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	if seen.OwnerID != "guest:f8a31c2d9e" {
		t.Fatalf("expected guest owner key, got %q", seen.OwnerID)
	}
	if seen.UserID != "" {
		t.Fatalf("expected empty user id for guest, got %q", seen.UserID)
	}
}

func TestCheckoutHandlersBeginRateLimited(t *testing.T) {
	svc := &stubCheckoutService{
		begin: func(context.Context, services.BeginCheckoutCommand) (services.CheckoutSession, error) {
			return sampleSession(domain.CheckoutStateShippingInfo), nil
		},
	}

	h := NewCheckoutHandlers(nil, svc, false)
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	h.limiter = newSimpleRateLimiter(2, time.Minute, func() time.Time { return now })
	router := newCheckoutRouter(h, "u_1")

	for i := 0; i < 2; i++ {
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/checkout/", nil))
		if rr.Code != http.StatusCreated {
			t.Fatalf("request %d: expected 201, got %d", i, rr.Code)
		}
	}

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/checkout/", nil))
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 after limit, got %d", rr.Code)
	}
}

func TestCheckoutHandlersSubmitShippingSavedAddress(t *testing.T) {
	var seen services.SubmitShippingCommand
	svc := &stubCheckoutService{
		submitShipping: func(_ context.Context, cmd services.SubmitShippingCommand) (services.CheckoutSession, error) {
			seen = cmd
			return sampleSession(domain.CheckoutStatePaymentSelection), nil
		},
	}

	router := newCheckoutRouter(NewCheckoutHandlers(nil, svc, false), "u_1")
	payload := `{"addressId":"addr_1","contactPhone":"+919876543210","deliveryNote":"leave at gate"}`
	req := httptest.NewRequest(http.MethodPost, "/checkout/chk_01/shipping", strings.NewReader(payload))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if seen.CheckoutID != "chk_01" || seen.AddressID != "addr_1" || seen.UserID != "u_1" {
		t.Fatalf("unexpected command %#v", seen)
	}
	if seen.ContactPhone != "+919876543210" || seen.DeliveryNote != "leave at gate" {
		t.Fatalf("unexpected contact fields %#v", seen)
	}
}

func TestCheckoutHandlersSubmitShippingGuestIncomplete(t *testing.T) {
	svc := &stubCheckoutService{
		submitShipping: func(context.Context, services.SubmitShippingCommand) (services.CheckoutSession, error) {
			return services.CheckoutSession{}, &services.GuestInfoError{Missing: []string{"line1", "contactEmail"}}
		},
	}

	router := newCheckoutRouter(NewCheckoutHandlers(nil, svc, true), "")
	payload := `{"guest":{"fullName":"Asha Rao","city":"Pune","postalCode":"411001","country":"IN"}}`
	req := httptest.NewRequest(http.MethodPost, "/checkout/chk_01/shipping", strings.NewReader(payload))
	req.Header.Set("X-Guest-Id", "f8a31c2d9e")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d: %s", rr.Code, rr.Body.String())
	}

	var body struct {
		Error   string   `json:"error"`
		Missing []string `json:"missing"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if body.Error != "incomplete_guest_info" {
		t.Fatalf("expected incomplete_guest_info, got %q", body.Error)
	}
	if len(body.Missing) != 2 || body.Missing[1] != "contactEmail" {
		t.Fatalf("unexpected missing fields %v", body.Missing)
	}
}

func TestCheckoutHandlersSubmitShippingNoSavedAddress(t *testing.T) {
	svc := &stubCheckoutService{
		submitShipping: func(context.Context, services.SubmitShippingCommand) (services.CheckoutSession, error) {
			return services.CheckoutSession{}, services.ErrNoAddress
		},
	}

	router := newCheckoutRouter(NewCheckoutHandlers(nil, svc, false), "u_1")
	req := httptest.NewRequest(http.MethodPost, "/checkout/chk_01/shipping", strings.NewReader(`{}`))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "no_saved_address") {
		t.Fatalf("expected no_saved_address code, got %s", rr.Body.String())
	}
}

func TestCheckoutHandlersSelectPayment(t *testing.T) {
	var seen services.SelectPaymentCommand
	svc := &stubCheckoutService{
		selectPayment: func(_ context.Context, cmd services.SelectPaymentCommand) (services.CheckoutSession, error) {
			seen = cmd
			session := sampleSession(domain.CheckoutStatePaymentSelection)
			session.PaymentMethod = cmd.Method
			return session, nil
		},
	}

	router := newCheckoutRouter(NewCheckoutHandlers(nil, svc, false), "u_1")
	req := httptest.NewRequest(http.MethodPost, "/checkout/chk_01/payment-method", strings.NewReader(`{"method":"Razorpay"}`))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if seen.Method != domain.PaymentMethodRazorpay {
		t.Fatalf("expected method normalised to razorpay, got %q", seen.Method)
	}
}

func TestCheckoutHandlersSelectPaymentUnsupported(t *testing.T) {
	svc := &stubCheckoutService{
		selectPayment: func(context.Context, services.SelectPaymentCommand) (services.CheckoutSession, error) {
			return services.CheckoutSession{}, fmt.Errorf("%w: unsupported payment method", services.ErrCheckoutInvalidInput)
		},
	}

	router := newCheckoutRouter(NewCheckoutHandlers(nil, svc, false), "u_1")
	req := httptest.NewRequest(http.MethodPost, "/checkout/chk_01/payment-method", strings.NewReader(`{"method":"barter"}`))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestCheckoutHandlersInitiatePayment(t *testing.T) {
	var seen services.InitiatePaymentCommand
	svc := &stubCheckoutService{
		initiatePayment: func(_ context.Context, cmd services.InitiatePaymentCommand) (services.CheckoutSession, error) {
			seen = cmd
			session := sampleSession(domain.CheckoutStateReview)
			session.PaymentMethod = domain.PaymentMethodRazorpay
			session.Attempt = &domain.PaymentAttempt{
				ID:               "att_01",
				Method:           domain.PaymentMethodRazorpay,
				GatewayReference: "order_rzp_123",
				KeyID:            "rzp_test_key",
				Amount:           186900,
				Currency:         "INR",
				CreatedAt:        time.Date(2026, 3, 2, 10, 5, 0, 0, time.UTC),
			}
			return session, nil
		},
	}

	router := newCheckoutRouter(NewCheckoutHandlers(nil, svc, false), "u_1")
	req := httptest.NewRequest(http.MethodPost, "/checkout/chk_01/payment", nil)
	req.Header.Set("Idempotency-Key", "idem-123")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if seen.IdempotencyKey != "idem-123" {
		t.Fatalf("expected idempotency key forwarded, got %q", seen.IdempotencyKey)
	}

	var body checkoutResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if body.Checkout.Attempt == nil || body.Checkout.Attempt.GatewayReference != "order_rzp_123" {
		t.Fatalf("unexpected attempt payload %#v", body.Checkout.Attempt)
	}
	if body.Checkout.Attempt.Amount != 186900 {
		t.Fatalf("expected amount 186900, got %d", body.Checkout.Attempt.Amount)
	}
}

func TestCheckoutHandlersFinalize(t *testing.T) {
	var seen services.FinalizeCheckoutCommand
	svc := &stubCheckoutService{
		finalize: func(_ context.Context, cmd services.FinalizeCheckoutCommand) (services.Order, error) {
			seen = cmd
			return services.Order{
				ID:          "ord_01",
				OrderNumber: "CM-2026-000042",
				UserID:      "u_1",
				Status:      domain.OrderStatusPaid,
				Currency:    "INR",
				Totals:      domain.OrderTotals{Subtotal: 150000, Tax: 27000, Shipping: 9900, Total: 186900},
				Payment: domain.OrderPayment{
					Method:           domain.PaymentMethodRazorpay,
					State:            domain.PaymentStateCaptured,
					GatewayReference: "order_rzp_123",
					PaymentID:        "pay_123",
					Amount:           186900,
					Currency:         "INR",
				},
			}, nil
		},
	}

	router := newCheckoutRouter(NewCheckoutHandlers(nil, svc, false), "u_1")
	payload := `{"paymentId":"pay_123","signature":"deadbeef"}`
	req := httptest.NewRequest(http.MethodPost, "/checkout/chk_01/finalize", strings.NewReader(payload))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	if seen.PaymentID != "pay_123" || seen.Signature != "deadbeef" {
		t.Fatalf("unexpected finalize command %#v", seen)
	}

	var body orderResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if body.Order.OrderNumber != "CM-2026-000042" || body.Order.Totals.Total != 186900 {
		t.Fatalf("unexpected order payload %#v", body.Order)
	}
}

func TestCheckoutHandlersFinalizeErrors(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"signature mismatch", payments.ErrSignatureMismatch, http.StatusBadRequest, "payment_verification_failed"},
		{"payment not completed", payments.ErrPaymentNotCompleted, http.StatusConflict, "payment_not_completed"},
		{"duplicate order", services.ErrDuplicateOrder, http.StatusConflict, "duplicate_order"},
		{"insufficient stock", services.ErrStockUnavailable, http.StatusConflict, "insufficient_stock"},
		{"invalid transition", services.ErrInvalidTransition, http.StatusConflict, "invalid_transition"},
		{"session missing", services.ErrCheckoutNotFound, http.StatusNotFound, "checkout_not_found"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := &stubCheckoutService{
				finalize: func(context.Context, services.FinalizeCheckoutCommand) (services.Order, error) {
					return services.Order{}, tc.err
				},
			}
			router := newCheckoutRouter(NewCheckoutHandlers(nil, svc, false), "u_1")
			req := httptest.NewRequest(http.MethodPost, "/checkout/chk_01/finalize", strings.NewReader(`{}`))
			rr := httptest.NewRecorder()
			router.ServeHTTP(rr, req)

			if rr.Code != tc.wantStatus {
				t.Fatalf("expected %d, got %d: %s", tc.wantStatus, rr.Code, rr.Body.String())
			}
			if !strings.Contains(rr.Body.String(), tc.wantCode) {
				t.Fatalf("expected code %q in %s", tc.wantCode, rr.Body.String())
			}
		})
	}
}

func TestCheckoutHandlersBack(t *testing.T) {
	svc := &stubCheckoutService{
		back: func(_ context.Context, checkoutID string, userID string) (services.CheckoutSession, error) {
			if checkoutID != "chk_01" || userID != "u_1" {
				t.Fatalf("unexpected back args %q %q", checkoutID, userID)
			}
			return sampleSession(domain.CheckoutStatePaymentSelection), nil
		},
	}

	router := newCheckoutRouter(NewCheckoutHandlers(nil, svc, false), "u_1")
	req := httptest.NewRequest(http.MethodPost, "/checkout/chk_01/back", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var body checkoutResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if body.Checkout.Attempt != nil {
		t.Fatalf("expected no attempt after back, got %#v", body.Checkout.Attempt)
	}
}

func TestCheckoutHandlersAbandon(t *testing.T) {
	abandoned := false
	svc := &stubCheckoutService{
		abandon: func(_ context.Context, checkoutID string, userID string) error {
			abandoned = checkoutID == "chk_01" && userID == "u_1"
			return nil
		},
	}

	router := newCheckoutRouter(NewCheckoutHandlers(nil, svc, false), "u_1")
	req := httptest.NewRequest(http.MethodPost, "/checkout/chk_01/abandon", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rr.Code)
	}
	if !abandoned {
		t.Fatalf("expected abandon to be invoked")
	}
}

func newGuestSigner(t *testing.T) *auth.GuestSessionSigner {
	t.Helper()
	signer, err := auth.NewGuestSessionSigner("guest-test-secret", time.Hour, nil)
	if err != nil {
		t.Fatalf("build guest signer: %v", err)
	}
	return signer
}

func TestCheckoutHandlersBeginGuestIssuesResumeToken(t *testing.T) {
	svc := &stubCheckoutService{
		begin: func(context.Context, services.BeginCheckoutCommand) (services.CheckoutSession, error) {
			session := sampleSession(domain.CheckoutStateShippingInfo)
			session.UserID = ""
			return session, nil
		},
	}

	signer := newGuestSigner(t)
	router := newCheckoutRouter(NewCheckoutHandlers(nil, svc, true, WithGuestSessionSigner(signer)), "")
	req := httptest.NewRequest(http.MethodPost, "/checkout/", nil)
	req.Header.Set("X-Guest-Id", "f8a31c2d9e")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}

	var body struct {
		GuestToken string `json:"guestToken"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if body.GuestToken == "" {
		t.Fatalf("expected guest token in begin response")
	}

	session, err := signer.Verify(body.GuestToken)
	if err != nil {
		t.Fatalf("verify issued token: %v", err)
	}
	if session.Owner != "guest:f8a31c2d9e" || session.CheckoutID != "chk_01" {
		t.Fatalf("token bound to wrong session %+v", session)
	}
}

func TestCheckoutHandlersGuestResumeTokenRequired(t *testing.T) {
	svc := &stubCheckoutService{
		get: func(context.Context, string, string) (services.CheckoutSession, error) {
			session := sampleSession(domain.CheckoutStateShippingInfo)
			session.UserID = ""
			return session, nil
		},
	}

	signer := newGuestSigner(t)
	router := newCheckoutRouter(NewCheckoutHandlers(nil, svc, true, WithGuestSessionSigner(signer)), "")

	req := httptest.NewRequest(http.MethodGet, "/checkout/chk_01", nil)
	req.Header.Set("X-Guest-Id", "f8a31c2d9e")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rr.Code)
	}

	token, err := signer.Issue(auth.GuestSession{Owner: "guest:f8a31c2d9e", CheckoutID: "chk_01"})
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	req = httptest.NewRequest(http.MethodGet, "/checkout/chk_01", nil)
	req.Header.Set("X-Guest-Id", "f8a31c2d9e")
	req.Header.Set("X-Guest-Token", token)
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 with token, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestCheckoutHandlersGuestResumeTokenWrongSession(t *testing.T) {
	svc := &stubCheckoutService{
		get: func(context.Context, string, string) (services.CheckoutSession, error) {
			t.Fatalf("service must not be called with a mismatched token")
			return services.CheckoutSession{}, nil
		},
	}

	signer := newGuestSigner(t)
	router := newCheckoutRouter(NewCheckoutHandlers(nil, svc, true, WithGuestSessionSigner(signer)), "")

	token, err := signer.Issue(auth.GuestSession{Owner: "guest:f8a31c2d9e", CheckoutID: "chk_99"})
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	req := httptest.NewRequest(http.MethodGet, "/checkout/chk_01", nil)
	req.Header.Set("X-Guest-Id", "f8a31c2d9e")
	req.Header.Set("X-Guest-Token", token)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for token bound to another session, got %d", rr.Code)
	}
}

func TestCheckoutHandlersAuthenticatedCallersSkipGuestToken(t *testing.T) {
	svc := &stubCheckoutService{
		get: func(context.Context, string, string) (services.CheckoutSession, error) {
			return sampleSession(domain.CheckoutStateShippingInfo), nil
		},
	}

	router := newCheckoutRouter(NewCheckoutHandlers(nil, svc, true, WithGuestSessionSigner(newGuestSigner(t))), "u_1")
	req := httptest.NewRequest(http.MethodGet, "/checkout/chk_01", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 for authenticated caller, got %d: %s", rr.Code, rr.Body.String())
	}
}
