package handlers

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/clovemart/api/internal/services"
)

const testWebhookSecret = "whsec_test_1234"

func signWebhookBody(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func newWebhookRouter(h *WebhookHandlers) chi.Router {
	r := chi.NewRouter()
	r.Route("/webhooks", h.Routes)
	return r
}

func capturedEventBody() string {
	return `{"event":"payment.captured","payload":{"payment":{"entity":{"id":"pay_123","order_id":"order_rzp_123","status":"captured"}}}}`
}

func TestWebhookHandlersRazorpayCaptured(t *testing.T) {
	var seenRef, seenPayment string
	orders := &stubOrderService{
		recordCapture: func(_ context.Context, gatewayReference string, paymentID string) (services.Order, error) {
			seenRef = gatewayReference
			seenPayment = paymentID
			return sampleOrder(), nil
		},
	}

	h := NewWebhookHandlers(orders, WithRazorpayWebhookSecret(testWebhookSecret))
	body := capturedEventBody()
	req := httptest.NewRequest(http.MethodPost, "/webhooks/razorpay", strings.NewReader(body))
	req.Header.Set("X-Razorpay-Signature", signWebhookBody(testWebhookSecret, []byte(body)))
	rr := httptest.NewRecorder()
	newWebhookRouter(h).ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if seenRef != "order_rzp_123" || seenPayment != "pay_123" {
		t.Fatalf("unexpected capture args %q %q", seenRef, seenPayment)
	}
	if !strings.Contains(rr.Body.String(), `"recorded"`) {
		t.Fatalf("expected recorded status, got %s", rr.Body.String())
	}
}

func TestWebhookHandlersRazorpayBadSignature(t *testing.T) {
	orders := &stubOrderService{
		recordCapture: func(context.Context, string, string) (services.Order, error) {
			t.Fatalf("capture must not be recorded on signature mismatch")
			return services.Order{}, nil
		},
	}

	h := NewWebhookHandlers(orders, WithRazorpayWebhookSecret(testWebhookSecret))
	body := capturedEventBody()
	req := httptest.NewRequest(http.MethodPost, "/webhooks/razorpay", strings.NewReader(body))
	req.Header.Set("X-Razorpay-Signature", signWebhookBody("wrong_secret", []byte(body)))
	rr := httptest.NewRecorder()
	newWebhookRouter(h).ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestWebhookHandlersRazorpayTamperedBody(t *testing.T) {
	orders := &stubOrderService{
		recordCapture: func(context.Context, string, string) (services.Order, error) {
			t.Fatalf("capture must not be recorded for tampered body")
			return services.Order{}, nil
		},
	}

	h := NewWebhookHandlers(orders, WithRazorpayWebhookSecret(testWebhookSecret))
	body := capturedEventBody()
	tampered := strings.Replace(body, "pay_123", "pay_999", 1)
	req := httptest.NewRequest(http.MethodPost, "/webhooks/razorpay", strings.NewReader(tampered))
	req.Header.Set("X-Razorpay-Signature", signWebhookBody(testWebhookSecret, []byte(body)))
	rr := httptest.NewRecorder()
	newWebhookRouter(h).ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
}

func TestWebhookHandlersRazorpayIgnoresOtherEvents(t *testing.T) {
	orders := &stubOrderService{
		recordCapture: func(context.Context, string, string) (services.Order, error) {
			t.Fatalf("capture must not be recorded for ignored events")
			return services.Order{}, nil
		},
	}

	h := NewWebhookHandlers(orders, WithRazorpayWebhookSecret(testWebhookSecret))
	body := `{"event":"payment.failed","payload":{"payment":{"entity":{"id":"pay_123","order_id":"order_rzp_123","status":"failed"}}}}`
	req := httptest.NewRequest(http.MethodPost, "/webhooks/razorpay", strings.NewReader(body))
	req.Header.Set("X-Razorpay-Signature", signWebhookBody(testWebhookSecret, []byte(body)))
	rr := httptest.NewRecorder()
	newWebhookRouter(h).ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), `"ignored"`) {
		t.Fatalf("expected ignored status, got %s", rr.Body.String())
	}
}

func TestWebhookHandlersRazorpayOrderNotYetCreated(t *testing.T) {
	orders := &stubOrderService{
		recordCapture: func(context.Context, string, string) (services.Order, error) {
			return services.Order{}, services.ErrOrderNotFound
		},
	}

	h := NewWebhookHandlers(orders, WithRazorpayWebhookSecret(testWebhookSecret))
	body := capturedEventBody()
	req := httptest.NewRequest(http.MethodPost, "/webhooks/razorpay", strings.NewReader(body))
	req.Header.Set("X-Razorpay-Signature", signWebhookBody(testWebhookSecret, []byte(body)))
	rr := httptest.NewRecorder()
	newWebhookRouter(h).ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 so the gateway retries, got %d", rr.Code)
	}
}

func TestWebhookHandlersRazorpayAlreadyRecorded(t *testing.T) {
	orders := &stubOrderService{
		recordCapture: func(context.Context, string, string) (services.Order, error) {
			return services.Order{}, services.ErrOrderInvalidState
		},
	}

	h := NewWebhookHandlers(orders, WithRazorpayWebhookSecret(testWebhookSecret))
	body := capturedEventBody()
	req := httptest.NewRequest(http.MethodPost, "/webhooks/razorpay", strings.NewReader(body))
	req.Header.Set("X-Razorpay-Signature", signWebhookBody(testWebhookSecret, []byte(body)))
	rr := httptest.NewRecorder()
	newWebhookRouter(h).ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 for duplicate delivery, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), `"already_recorded"`) {
		t.Fatalf("expected already_recorded status, got %s", rr.Body.String())
	}
}

func TestWebhookHandlersRazorpayMissingSecret(t *testing.T) {
	h := NewWebhookHandlers(&stubOrderService{})
	body := capturedEventBody()
	req := httptest.NewRequest(http.MethodPost, "/webhooks/razorpay", strings.NewReader(body))
	rr := httptest.NewRecorder()
	newWebhookRouter(h).ServeHTTP(rr, req)

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 when secret unset, got %d", rr.Code)
	}
}
