package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/clovemart/api/internal/domain"
	"github.com/clovemart/api/internal/repositories"
)

func TestInventoryServiceGetStock(t *testing.T) {
	repo := &stubInventoryRepository{
		getStock: func(_ context.Context, sku string) (domain.StockRecord, error) {
			if sku != "SKU-001" {
				t.Fatalf("unexpected sku %q", sku)
			}
			return domain.StockRecord{SKU: "SKU-001", Available: 42}, nil
		},
	}

	svc, err := NewInventoryService(InventoryServiceDeps{Inventory: repo})
	if err != nil {
		t.Fatalf("build service: %v", err)
	}

	record, err := svc.GetStock(context.Background(), "  SKU-001  ")
	if err != nil {
		t.Fatalf("get stock: %v", err)
	}
	if record.Available != 42 {
		t.Fatalf("expected 42 available, got %d", record.Available)
	}
}

func TestInventoryServiceGetStockNotFound(t *testing.T) {
	repo := &stubInventoryRepository{
		getStock: func(context.Context, string) (domain.StockRecord, error) {
			return domain.StockRecord{}, repositories.NewInventoryError(repositories.InventoryErrorStockNotFound, "", nil)
		},
	}

	svc, err := NewInventoryService(InventoryServiceDeps{Inventory: repo})
	if err != nil {
		t.Fatalf("build service: %v", err)
	}

	if _, err := svc.GetStock(context.Background(), "SKU-404"); !errors.Is(err, ErrStockNotFound) {
		t.Fatalf("expected ErrStockNotFound, got %v", err)
	}
}

func TestInventoryServiceGetStockInvalidInput(t *testing.T) {
	svc, err := NewInventoryService(InventoryServiceDeps{Inventory: &stubInventoryRepository{}})
	if err != nil {
		t.Fatalf("build service: %v", err)
	}

	if _, err := svc.GetStock(context.Background(), "   "); !errors.Is(err, ErrInventoryInvalidInput) {
		t.Fatalf("expected ErrInventoryInvalidInput, got %v", err)
	}
}

func TestInventoryServiceAdjustStock(t *testing.T) {
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	var seenDelta int64
	var seenNow time.Time
	repo := &stubInventoryRepository{
		adjustStock: func(_ context.Context, sku string, delta int64, at time.Time) (domain.StockRecord, error) {
			seenDelta = delta
			seenNow = at
			return domain.StockRecord{SKU: sku, Available: 10 + delta, UpdatedAt: at}, nil
		},
	}

	svc, err := NewInventoryService(InventoryServiceDeps{
		Inventory: repo,
		Clock:     fixedClock(now),
	})
	if err != nil {
		t.Fatalf("build service: %v", err)
	}

	record, err := svc.AdjustStock(context.Background(), AdjustStockCommand{SKU: "SKU-001", Delta: 5, Reason: "restock"})
	if err != nil {
		t.Fatalf("adjust stock: %v", err)
	}
	if record.Available != 15 {
		t.Fatalf("expected 15 available, got %d", record.Available)
	}
	if seenDelta != 5 || !seenNow.Equal(now) {
		t.Fatalf("unexpected repository call delta=%d now=%v", seenDelta, seenNow)
	}
}

func TestInventoryServiceAdjustStockZeroDelta(t *testing.T) {
	svc, err := NewInventoryService(InventoryServiceDeps{Inventory: &stubInventoryRepository{}})
	if err != nil {
		t.Fatalf("build service: %v", err)
	}

	if _, err := svc.AdjustStock(context.Background(), AdjustStockCommand{SKU: "SKU-001"}); !errors.Is(err, ErrInventoryInvalidInput) {
		t.Fatalf("expected ErrInventoryInvalidInput, got %v", err)
	}
}

func TestInventoryServiceAdjustStockInsufficient(t *testing.T) {
	repo := &stubInventoryRepository{
		adjustStock: func(context.Context, string, int64, time.Time) (domain.StockRecord, error) {
			return domain.StockRecord{}, repositories.NewInventoryError(repositories.InventoryErrorInsufficientStock, "", nil)
		},
	}

	svc, err := NewInventoryService(InventoryServiceDeps{Inventory: repo})
	if err != nil {
		t.Fatalf("build service: %v", err)
	}

	if _, err := svc.AdjustStock(context.Background(), AdjustStockCommand{SKU: "SKU-001", Delta: -100}); !errors.Is(err, ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}
}
