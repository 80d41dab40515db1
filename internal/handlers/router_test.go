package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
)

func TestRouterHealthEndpoints(t *testing.T) {
	router := NewRouter()

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("healthz: expected 200, got %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("readyz: expected 200, got %d", rr.Code)
	}
}

func TestRouterUnregisteredGroupsReturnNotImplemented(t *testing.T) {
	router := NewRouter()

	for _, path := range []string{"/api/v1/cart", "/api/v1/checkout", "/api/v1/orders", "/api/v1/me/addresses", "/api/v1/webhooks/razorpay"} {
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
		if rr.Code != http.StatusNotImplemented {
			t.Fatalf("%s: expected 501, got %d", path, rr.Code)
		}
	}
}

func TestRouterUnknownRoute(t *testing.T) {
	router := NewRouter()

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v2/cart", nil))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
}

func TestRouterMountsRegistrars(t *testing.T) {
	called := false
	router := NewRouter(WithCartRoutes(func(r chi.Router) {
		r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
			called = true
			w.WriteHeader(http.StatusOK)
		})
	}))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/cart/", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 from registrar, got %d", rr.Code)
	}
	if !called {
		t.Fatalf("expected cart registrar handler to run")
	}
}

func TestRouterWebhookMiddlewaresApply(t *testing.T) {
	var sawHeader bool
	mw := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sawHeader = r.Header.Get("X-Probe") == "1"
			next.ServeHTTP(w, r)
		})
	}

	router := NewRouter(
		WithWebhookMiddlewares(mw),
		WithWebhookRoutes(func(r chi.Router) {
			r.Post("/razorpay", func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusOK)
			})
		}),
	)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/razorpay", nil)
	req.Header.Set("X-Probe", "1")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if !sawHeader {
		t.Fatalf("expected webhook middleware to observe the request")
	}
}
