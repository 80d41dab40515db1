package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/clovemart/api/internal/domain"
	"github.com/clovemart/api/internal/repositories"
)

var (
	// ErrCartInvalidInput indicates the caller supplied invalid cart parameters.
	ErrCartInvalidInput = errors.New("cart: invalid input")
	// ErrCartNotFound indicates no cart exists for the owner.
	ErrCartNotFound = errors.New("cart: not found")
	// ErrCartConflict indicates a concurrent modification clashed with the write.
	ErrCartConflict = errors.New("cart: conflict")
	// ErrCartUnavailable indicates cart dependencies are currently unavailable.
	ErrCartUnavailable = errors.New("cart: unavailable")
)

const maxCartLines = 100

// CartServiceDeps wires the dependencies required by the cart service.
type CartServiceDeps struct {
	Carts     repositories.CartRepository
	Inventory repositories.InventoryRepository
	Pricing   *PricingEngine
	Config    domain.PricingConfig
	Clock     func() time.Time
	Logger    func(ctx context.Context, event string, fields map[string]any)
}

type cartService struct {
	carts     repositories.CartRepository
	inventory repositories.InventoryRepository
	pricing   *PricingEngine
	config    domain.PricingConfig
	now       func() time.Time
	logger    func(ctx context.Context, event string, fields map[string]any)
}

// NewCartService constructs a CartService validating required dependencies.
func NewCartService(deps CartServiceDeps) (CartService, error) {
	if deps.Carts == nil {
		return nil, errors.New("cart service: cart repository is required")
	}
	if deps.Inventory == nil {
		return nil, errors.New("cart service: inventory repository is required")
	}
	if deps.Pricing == nil {
		return nil, errors.New("cart service: pricing engine is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &cartService{
		carts:     deps.Carts,
		inventory: deps.Inventory,
		pricing:   deps.Pricing,
		config:    deps.Config,
		now: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

// GetCart loads the owner's cart, returning an empty cart when none exists yet.
func (s *cartService) GetCart(ctx context.Context, ownerID string) (Cart, error) {
	ownerID = strings.TrimSpace(ownerID)
	if ownerID == "" {
		return Cart{}, ErrCartInvalidInput
	}

	cart, err := s.carts.GetCart(ctx, ownerID)
	if err != nil {
		if isNotFound(err) {
			return s.emptyCart(ownerID), nil
		}
		return Cart{}, s.translateCartError(ctx, err)
	}
	return cart, nil
}

// UpsertItem adds the line or replaces an existing line with the same SKU.
func (s *cartService) UpsertItem(ctx context.Context, cmd UpsertCartItemCommand) (Cart, error) {
	ownerID := strings.TrimSpace(cmd.OwnerID)
	sku := strings.TrimSpace(cmd.SKU)
	if ownerID == "" || sku == "" {
		return Cart{}, ErrCartInvalidInput
	}
	if cmd.Quantity < 1 || cmd.UnitPrice < 0 {
		return Cart{}, ErrCartInvalidInput
	}

	cart, persisted, err := s.loadCart(ctx, ownerID)
	if err != nil {
		return Cart{}, err
	}

	now := s.now()
	item := domain.CartItem{
		ID:        "itm_" + ulid.Make().String(),
		ProductID: strings.TrimSpace(cmd.ProductID),
		SKU:       sku,
		Title:     strings.TrimSpace(cmd.Title),
		Quantity:  cmd.Quantity,
		UnitPrice: cmd.UnitPrice,
		Currency:  strings.ToUpper(strings.TrimSpace(firstNonEmpty(cmd.Currency, cart.Currency, s.config.Currency))),
		AddedAt:   now,
	}

	replaced := false
	for i, existing := range cart.Items {
		if strings.EqualFold(existing.SKU, sku) {
			item.ID = existing.ID
			item.AddedAt = existing.AddedAt
			item.UpdatedAt = &now
			cart.Items[i] = item
			replaced = true
			break
		}
	}
	if !replaced {
		if len(cart.Items) >= maxCartLines {
			return Cart{}, ErrCartInvalidInput
		}
		cart.Items = append(cart.Items, item)
	}

	return s.persistCart(ctx, cart, persisted)
}

// RemoveItem drops the line from the owner's cart.
func (s *cartService) RemoveItem(ctx context.Context, cmd RemoveCartItemCommand) (Cart, error) {
	ownerID := strings.TrimSpace(cmd.OwnerID)
	itemID := strings.TrimSpace(cmd.ItemID)
	if ownerID == "" || itemID == "" {
		return Cart{}, ErrCartInvalidInput
	}

	cart, persisted, err := s.loadCart(ctx, ownerID)
	if err != nil {
		return Cart{}, err
	}

	kept := make([]domain.CartItem, 0, len(cart.Items))
	removed := false
	for _, item := range cart.Items {
		if item.ID == itemID {
			removed = true
			continue
		}
		kept = append(kept, item)
	}
	if !removed {
		return Cart{}, ErrCartNotFound
	}
	cart.Items = kept

	return s.persistCart(ctx, cart, persisted)
}

// Snapshot validates the cart and freezes it for checkout. The snapshot keeps
// the cart's updatedAt so the checkout stays pinned to what the customer saw.
func (s *cartService) Snapshot(ctx context.Context, ownerID string) (CartSnapshot, error) {
	ownerID = strings.TrimSpace(ownerID)
	if ownerID == "" {
		return CartSnapshot{}, ErrCartInvalidInput
	}

	cart, err := s.carts.GetCart(ctx, ownerID)
	if err != nil {
		if isNotFound(err) {
			return CartSnapshot{}, ErrInvalidCart
		}
		return CartSnapshot{}, s.translateCartError(ctx, err)
	}

	items := snapshotItems(cart.Items)
	// Validation happens at snapshot time, not later.
	if _, err := s.pricing.Breakdown(items, s.config); err != nil {
		return CartSnapshot{}, err
	}
	if err := s.checkStock(ctx, items); err != nil {
		return CartSnapshot{}, err
	}

	return CartSnapshot{
		CartID:        cart.ID,
		Currency:      strings.ToUpper(strings.TrimSpace(firstNonEmpty(cart.Currency, s.config.Currency))),
		Items:         items,
		CartUpdatedAt: cart.UpdatedAt,
		TakenAt:       s.now(),
	}, nil
}

// Estimate prices the current cart without opening a checkout.
func (s *cartService) Estimate(ctx context.Context, ownerID string) (PriceBreakdown, error) {
	snapshot, err := s.Snapshot(ctx, ownerID)
	if err != nil {
		return PriceBreakdown{}, err
	}
	return s.pricing.Breakdown(snapshot.Items, s.config)
}

// Clear removes the owner's cart entirely.
func (s *cartService) Clear(ctx context.Context, ownerID string) error {
	ownerID = strings.TrimSpace(ownerID)
	if ownerID == "" {
		return ErrCartInvalidInput
	}
	if err := s.carts.DeleteCart(ctx, ownerID); err != nil && !isNotFound(err) {
		return s.translateCartError(ctx, err)
	}
	return nil
}

// checkStock verifies every line fits within the stock available right now.
// The order transaction re-checks and decrements; this check surfaces
// shortages before the customer walks the whole checkout.
func (s *cartService) checkStock(ctx context.Context, items []domain.SnapshotItem) error {
	for _, item := range items {
		record, err := s.inventory.GetStock(ctx, item.SKU)
		if err != nil {
			if isNotFound(err) || isStockNotFound(err) {
				return fmt.Errorf("%w: no stock record for %s", ErrStockUnavailable, item.SKU)
			}
			return s.translateCartError(ctx, err)
		}
		if int64(item.Quantity) > record.Available {
			return fmt.Errorf("%w: %s has %d available, requested %d", ErrStockUnavailable, item.SKU, record.Available, item.Quantity)
		}
	}
	return nil
}

// loadCart fetches the cart and reports whether it already exists in storage,
// which decides the optimistic-lock precondition on the next write.
func (s *cartService) loadCart(ctx context.Context, ownerID string) (Cart, bool, error) {
	cart, err := s.carts.GetCart(ctx, ownerID)
	if err != nil {
		if isNotFound(err) {
			return s.emptyCart(ownerID), false, nil
		}
		return Cart{}, false, s.translateCartError(ctx, err)
	}
	return cart, true, nil
}

func (s *cartService) persistCart(ctx context.Context, cart Cart, persisted bool) (Cart, error) {
	var expected *time.Time
	if persisted {
		updated := cart.UpdatedAt
		expected = &updated
	}
	cart.UpdatedAt = s.now()
	saved, err := s.carts.UpsertCart(ctx, cart, expected)
	if err != nil {
		return Cart{}, s.translateCartError(ctx, err)
	}
	return saved, nil
}

func (s *cartService) emptyCart(ownerID string) Cart {
	now := s.now()
	return Cart{
		ID:        ownerID,
		UserID:    ownerID,
		Currency:  s.config.Currency,
		Items:     []domain.CartItem{},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func (s *cartService) translateCartError(ctx context.Context, err error) error {
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return ErrCartNotFound
		case repoErr.IsConflict():
			return ErrCartConflict
		}
	}
	s.logger(ctx, "cart.repository_error", map[string]any{"error": err.Error()})
	return ErrCartUnavailable
}

func snapshotItems(items []domain.CartItem) []domain.SnapshotItem {
	out := make([]domain.SnapshotItem, 0, len(items))
	for _, item := range items {
		out = append(out, domain.SnapshotItem{
			ProductID: item.ProductID,
			SKU:       item.SKU,
			Title:     item.Title,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
		})
	}
	return out
}

func isNotFound(err error) bool {
	var repoErr repositories.RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsNotFound()
}

func isStockNotFound(err error) bool {
	var invErr *repositories.InventoryError
	return errors.As(err, &invErr) && invErr.Code == repositories.InventoryErrorStockNotFound
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
