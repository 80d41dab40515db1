package services

import (
	"errors"
	"fmt"
	"math"
	"strings"

	domain "github.com/clovemart/api/internal/domain"
)

var (
	// ErrInvalidCart indicates the cart lines cannot be priced.
	ErrInvalidCart = errors.New("pricing: invalid cart")
	// ErrPricingOverflow indicates the totals exceed the representable range.
	ErrPricingOverflow = errors.New("pricing: amount overflow")
	// ErrPricingConfig indicates the pricing configuration is unusable.
	ErrPricingConfig = errors.New("pricing: invalid config")
)

const taxBasisPointsDenominator = 10000

// PricingEngine computes deterministic price breakdowns over snapshot items.
// It performs no I/O; every amount is integer minor units.
type PricingEngine struct{}

// NewPricingEngine constructs the engine.
func NewPricingEngine() *PricingEngine {
	return &PricingEngine{}
}

// Breakdown prices the items: subtotal is the exact line sum, tax is the
// half-up rounded basis-point share of the subtotal, shipping is waived at
// the free-shipping threshold, and total is their exact sum.
func (e *PricingEngine) Breakdown(items []domain.SnapshotItem, cfg domain.PricingConfig) (domain.PriceBreakdown, error) {
	if err := validatePricingConfig(cfg); err != nil {
		return domain.PriceBreakdown{}, err
	}
	if len(items) == 0 {
		return domain.PriceBreakdown{}, fmt.Errorf("%w: no items", ErrInvalidCart)
	}

	var subtotal int64
	for i, item := range items {
		if item.Quantity < 1 {
			return domain.PriceBreakdown{}, fmt.Errorf("%w: line %d (%s) quantity %d", ErrInvalidCart, i, item.SKU, item.Quantity)
		}
		if item.UnitPrice < 0 {
			return domain.PriceBreakdown{}, fmt.Errorf("%w: line %d (%s) unit price %d", ErrInvalidCart, i, item.SKU, item.UnitPrice)
		}
		line, err := multiplyAmount(item.UnitPrice, int64(item.Quantity))
		if err != nil {
			return domain.PriceBreakdown{}, err
		}
		subtotal, err = addAmount(subtotal, line)
		if err != nil {
			return domain.PriceBreakdown{}, err
		}
	}

	tax, err := taxOn(subtotal, cfg.TaxRateBasisPoints)
	if err != nil {
		return domain.PriceBreakdown{}, err
	}

	var shipping int64
	if subtotal < cfg.FreeShippingThreshold {
		shipping = cfg.ShippingFlatFee
	}

	total := subtotal
	if total, err = addAmount(total, tax); err != nil {
		return domain.PriceBreakdown{}, err
	}
	if total, err = addAmount(total, shipping); err != nil {
		return domain.PriceBreakdown{}, err
	}

	return domain.PriceBreakdown{
		Currency: strings.ToUpper(strings.TrimSpace(cfg.Currency)),
		Subtotal: subtotal,
		Tax:      tax,
		Shipping: shipping,
		Total:    total,
	}, nil
}

func validatePricingConfig(cfg domain.PricingConfig) error {
	if cfg.TaxRateBasisPoints < 0 || cfg.TaxRateBasisPoints > taxBasisPointsDenominator {
		return fmt.Errorf("%w: tax rate %d basis points", ErrPricingConfig, cfg.TaxRateBasisPoints)
	}
	if cfg.FreeShippingThreshold < 0 || cfg.ShippingFlatFee < 0 {
		return fmt.Errorf("%w: negative shipping parameters", ErrPricingConfig)
	}
	return nil
}

// taxOn rounds half-up: floor((subtotal*rate + 5000) / 10000).
func taxOn(subtotal int64, rateBasisPoints int64) (int64, error) {
	if rateBasisPoints == 0 || subtotal == 0 {
		return 0, nil
	}
	product, err := multiplyAmount(subtotal, rateBasisPoints)
	if err != nil {
		return 0, err
	}
	product, err = addAmount(product, taxBasisPointsDenominator/2)
	if err != nil {
		return 0, err
	}
	return product / taxBasisPointsDenominator, nil
}

func multiplyAmount(a, b int64) (int64, error) {
	if a == 0 || b == 0 {
		return 0, nil
	}
	if a > math.MaxInt64/b {
		return 0, ErrPricingOverflow
	}
	return a * b, nil
}

func addAmount(a, b int64) (int64, error) {
	if a > math.MaxInt64-b {
		return 0, ErrPricingOverflow
	}
	return a + b, nil
}
