package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/clovemart/api/internal/platform/auth"
	"github.com/clovemart/api/internal/services"
)

type stubCartService struct {
	getCart    func(ctx context.Context, ownerID string) (services.Cart, error)
	upsertItem func(ctx context.Context, cmd services.UpsertCartItemCommand) (services.Cart, error)
	removeItem func(ctx context.Context, cmd services.RemoveCartItemCommand) (services.Cart, error)
	snapshot   func(ctx context.Context, ownerID string) (services.CartSnapshot, error)
	estimate   func(ctx context.Context, ownerID string) (services.PriceBreakdown, error)
	clear      func(ctx context.Context, ownerID string) error
}

func (s *stubCartService) GetCart(ctx context.Context, ownerID string) (services.Cart, error) {
	return s.getCart(ctx, ownerID)
}

func (s *stubCartService) UpsertItem(ctx context.Context, cmd services.UpsertCartItemCommand) (services.Cart, error) {
	return s.upsertItem(ctx, cmd)
}

func (s *stubCartService) RemoveItem(ctx context.Context, cmd services.RemoveCartItemCommand) (services.Cart, error) {
	return s.removeItem(ctx, cmd)
}

func (s *stubCartService) Snapshot(ctx context.Context, ownerID string) (services.CartSnapshot, error) {
	return s.snapshot(ctx, ownerID)
}

func (s *stubCartService) Estimate(ctx context.Context, ownerID string) (services.PriceBreakdown, error) {
	return s.estimate(ctx, ownerID)
}

func (s *stubCartService) Clear(ctx context.Context, ownerID string) error {
	return s.clear(ctx, ownerID)
}

var _ services.CartService = (*stubCartService)(nil)

func identityMiddleware(uid string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := auth.WithIdentity(r.Context(), &auth.Identity{UID: uid})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func newCartRouter(h *CartHandlers, uid string) chi.Router {
	r := chi.NewRouter()
	if uid != "" {
		r.Use(identityMiddleware(uid))
	}
	r.Route("/cart", h.Routes)
	return r
}

func TestCartHandlersGetCart(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	svc := &stubCartService{
		getCart: func(_ context.Context, ownerID string) (services.Cart, error) {
			if ownerID != "u_1" {
				t.Fatalf("expected owner u_1, got %q", ownerID)
			}
			return services.Cart{
				ID:       "cart_u_1",
				UserID:   "u_1",
				Currency: "INR",
				Items: []services.CartItem{
					{ID: "itm_1", ProductID: "prod_1", SKU: "SKU-001", Title: "Clove Jar", Quantity: 2, UnitPrice: 45000, Currency: "INR", AddedAt: now},
				},
				CreatedAt: now,
				UpdatedAt: now,
			}, nil
		},
	}

	router := newCartRouter(NewCartHandlers(nil, svc, false), "u_1")
	req := httptest.NewRequest(http.MethodGet, "/cart/", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var body struct {
		Cart cartPayload `json:"cart"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if body.Cart.ID != "cart_u_1" || body.Cart.ItemsCount != 1 {
		t.Fatalf("unexpected cart payload %#v", body.Cart)
	}
	if body.Cart.Items[0].LineTotal != 90000 {
		t.Fatalf("expected line total 90000, got %d", body.Cart.Items[0].LineTotal)
	}
}

func TestCartHandlersGuestCart(t *testing.T) {
	var seenOwner string
	svc := &stubCartService{
		getCart: func(_ context.Context, ownerID string) (services.Cart, error) {
			seenOwner = ownerID
			return services.Cart{ID: "cart_guest", Currency: "INR"}, nil
		},
	}

	router := newCartRouter(NewCartHandlers(nil, svc, true), "")
	req := httptest.NewRequest(http.MethodGet, "/cart/", nil)
	req.Header.Set("X-Guest-Id", "f8a31c2d9e")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if seenOwner != "guest:f8a31c2d9e" {
		t.Fatalf("expected prefixed guest owner, got %q", seenOwner)
	}
}

func TestCartHandlersGuestRejectedWhenDisabled(t *testing.T) {
	svc := &stubCartService{}
	router := newCartRouter(NewCartHandlers(nil, svc, false), "")

	req := httptest.NewRequest(http.MethodGet, "/cart/", nil)
	req.Header.Set("X-Guest-Id", "f8a31c2d9e")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
}

func TestCartHandlersGuestIDValidation(t *testing.T) {
	svc := &stubCartService{}
	router := newCartRouter(NewCartHandlers(nil, svc, true), "")

	req := httptest.NewRequest(http.MethodGet, "/cart/", nil)
	req.Header.Set("X-Guest-Id", "short")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed guest id, got %d", rr.Code)
	}
}

func TestCartHandlersUpsertItem(t *testing.T) {
	var seen services.UpsertCartItemCommand
	svc := &stubCartService{
		upsertItem: func(_ context.Context, cmd services.UpsertCartItemCommand) (services.Cart, error) {
			seen = cmd
			return services.Cart{ID: "cart_u_1", UserID: "u_1", Currency: "INR"}, nil
		},
	}

	router := newCartRouter(NewCartHandlers(nil, svc, false), "u_1")
	payload := `{"productId":"prod_1","sku":"SKU-001","title":"Clove Jar","quantity":3,"unitPrice":45000,"currency":"inr"}`
	req := httptest.NewRequest(http.MethodPut, "/cart/items", strings.NewReader(payload))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if seen.OwnerID != "u_1" || seen.SKU != "SKU-001" || seen.Quantity != 3 {
		t.Fatalf("unexpected command %#v", seen)
	}
	if seen.Currency != "INR" {
		t.Fatalf("expected currency uppercased, got %q", seen.Currency)
	}
}

func TestCartHandlersUpsertItemInvalidJSON(t *testing.T) {
	svc := &stubCartService{}
	router := newCartRouter(NewCartHandlers(nil, svc, false), "u_1")

	req := httptest.NewRequest(http.MethodPut, "/cart/items", strings.NewReader("{"))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestCartHandlersEstimateInvalidCart(t *testing.T) {
	svc := &stubCartService{
		estimate: func(context.Context, string) (services.PriceBreakdown, error) {
			return services.PriceBreakdown{}, services.ErrInvalidCart
		},
	}
	router := newCartRouter(NewCartHandlers(nil, svc, false), "u_1")

	req := httptest.NewRequest(http.MethodGet, "/cart/estimate", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rr.Code)
	}
}

func TestCartHandlersClear(t *testing.T) {
	cleared := false
	svc := &stubCartService{
		clear: func(_ context.Context, ownerID string) error {
			cleared = ownerID == "u_1"
			return nil
		},
	}
	router := newCartRouter(NewCartHandlers(nil, svc, false), "u_1")

	req := httptest.NewRequest(http.MethodDelete, "/cart/", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rr.Code)
	}
	if !cleared {
		t.Fatalf("expected clear to be invoked for u_1")
	}
}
