package services

import (
	"context"
	"errors"
	"strings"
	"time"

	domain "github.com/clovemart/api/internal/domain"
	"github.com/clovemart/api/internal/repositories"
)

var (
	// ErrInventoryInvalidInput signals the caller provided invalid arguments.
	ErrInventoryInvalidInput = errors.New("inventory: invalid input")
	// ErrStockNotFound indicates the SKU has no stock record.
	ErrStockNotFound = errors.New("inventory: stock not found")
	// ErrInsufficientStock indicates the adjustment would drop availability below zero.
	ErrInsufficientStock = errors.New("inventory: insufficient stock")
)

// InventoryServiceDeps bundles the collaborators required to construct an inventory service.
type InventoryServiceDeps struct {
	Inventory repositories.InventoryRepository
	Clock     func() time.Time
	Logger    func(ctx context.Context, event string, fields map[string]any)
}

type inventoryService struct {
	repo   repositories.InventoryRepository
	clock  func() time.Time
	logger func(context.Context, string, map[string]any)
}

// NewInventoryService wires dependencies into a concrete InventoryService implementation.
func NewInventoryService(deps InventoryServiceDeps) (InventoryService, error) {
	if deps.Inventory == nil {
		return nil, errors.New("inventory service: inventory repository is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &inventoryService{
		repo:   deps.Inventory,
		clock:  clock,
		logger: logger,
	}, nil
}

func (s *inventoryService) GetStock(ctx context.Context, sku string) (domain.StockRecord, error) {
	sku = strings.TrimSpace(sku)
	if sku == "" {
		return domain.StockRecord{}, ErrInventoryInvalidInput
	}

	record, err := s.repo.GetStock(ctx, sku)
	if err != nil {
		return domain.StockRecord{}, s.translateInventoryError(err)
	}
	return record, nil
}

func (s *inventoryService) AdjustStock(ctx context.Context, cmd AdjustStockCommand) (domain.StockRecord, error) {
	sku := strings.TrimSpace(cmd.SKU)
	if sku == "" || cmd.Delta == 0 {
		return domain.StockRecord{}, ErrInventoryInvalidInput
	}

	record, err := s.repo.AdjustStock(ctx, sku, cmd.Delta, s.clock().UTC())
	if err != nil {
		return domain.StockRecord{}, s.translateInventoryError(err)
	}

	s.logger(ctx, "inventory.adjusted", map[string]any{
		"sku":       record.SKU,
		"delta":     cmd.Delta,
		"available": record.Available,
		"reason":    strings.TrimSpace(cmd.Reason),
	})
	return record, nil
}

func (s *inventoryService) translateInventoryError(err error) error {
	var invErr *repositories.InventoryError
	if errors.As(err, &invErr) {
		switch invErr.Code {
		case repositories.InventoryErrorStockNotFound:
			return ErrStockNotFound
		case repositories.InventoryErrorInsufficientStock:
			return ErrInsufficientStock
		}
	}
	return err
}
