package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/clovemart/api/internal/domain"
	"github.com/clovemart/api/internal/services"
)

type stubInventoryService struct {
	getStock    func(ctx context.Context, sku string) (domain.StockRecord, error)
	adjustStock func(ctx context.Context, cmd services.AdjustStockCommand) (domain.StockRecord, error)
}

func (s *stubInventoryService) GetStock(ctx context.Context, sku string) (domain.StockRecord, error) {
	return s.getStock(ctx, sku)
}

func (s *stubInventoryService) AdjustStock(ctx context.Context, cmd services.AdjustStockCommand) (domain.StockRecord, error) {
	return s.adjustStock(ctx, cmd)
}

var _ services.InventoryService = (*stubInventoryService)(nil)

func newStockRouter(h *StockHandlers) chi.Router {
	r := chi.NewRouter()
	r.Route("/internal/stock", h.Routes)
	return r
}

func TestStockHandlersGet(t *testing.T) {
	updated := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	inventory := &stubInventoryService{
		getStock: func(_ context.Context, sku string) (domain.StockRecord, error) {
			if sku != "SKU-001" {
				t.Fatalf("unexpected sku %q", sku)
			}
			return domain.StockRecord{SKU: "SKU-001", Available: 42, UpdatedAt: updated}, nil
		},
	}

	rr := httptest.NewRecorder()
	newStockRouter(NewStockHandlers(inventory)).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/internal/stock/SKU-001", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if !strings.Contains(rr.Body.String(), `"available":42`) {
		t.Fatalf("unexpected body %s", rr.Body.String())
	}
}

func TestStockHandlersGetNotFound(t *testing.T) {
	inventory := &stubInventoryService{
		getStock: func(context.Context, string) (domain.StockRecord, error) {
			return domain.StockRecord{}, services.ErrStockNotFound
		},
	}

	rr := httptest.NewRecorder()
	newStockRouter(NewStockHandlers(inventory)).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/internal/stock/SKU-404", nil))

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
}

func TestStockHandlersAdjust(t *testing.T) {
	var seen services.AdjustStockCommand
	inventory := &stubInventoryService{
		adjustStock: func(_ context.Context, cmd services.AdjustStockCommand) (domain.StockRecord, error) {
			seen = cmd
			return domain.StockRecord{SKU: cmd.SKU, Available: 47}, nil
		},
	}

	body := `{"delta":5,"reason":"restock"}`
	req := httptest.NewRequest(http.MethodPost, "/internal/stock/SKU-001/adjust", strings.NewReader(body))
	rr := httptest.NewRecorder()
	newStockRouter(NewStockHandlers(inventory)).ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if seen.SKU != "SKU-001" || seen.Delta != 5 || seen.Reason != "restock" {
		t.Fatalf("unexpected command %#v", seen)
	}
}

func TestStockHandlersAdjustInsufficient(t *testing.T) {
	inventory := &stubInventoryService{
		adjustStock: func(context.Context, services.AdjustStockCommand) (domain.StockRecord, error) {
			return domain.StockRecord{}, services.ErrInsufficientStock
		},
	}

	body := `{"delta":-100}`
	req := httptest.NewRequest(http.MethodPost, "/internal/stock/SKU-001/adjust", strings.NewReader(body))
	rr := httptest.NewRecorder()
	newStockRouter(NewStockHandlers(inventory)).ServeHTTP(rr, req)

	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rr.Code)
	}
}

func TestStockHandlersAdjustInvalidJSON(t *testing.T) {
	inventory := &stubInventoryService{
		adjustStock: func(context.Context, services.AdjustStockCommand) (domain.StockRecord, error) {
			t.Fatalf("service must not be called for invalid JSON")
			return domain.StockRecord{}, nil
		},
	}

	req := httptest.NewRequest(http.MethodPost, "/internal/stock/SKU-001/adjust", strings.NewReader("{"))
	rr := httptest.NewRecorder()
	newStockRouter(NewStockHandlers(inventory)).ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}
