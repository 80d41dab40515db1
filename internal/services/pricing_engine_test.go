package services

import (
	"errors"
	"math"
	"testing"

	domain "github.com/clovemart/api/internal/domain"
)

func inrPricingConfig() domain.PricingConfig {
	return domain.PricingConfig{
		Currency:              "INR",
		TaxRateBasisPoints:    1800,
		FreeShippingThreshold: 200000,
		ShippingFlatFee:       9900,
	}
}

func TestBreakdownBelowFreeShippingThreshold(t *testing.T) {
	engine := NewPricingEngine()

	breakdown, err := engine.Breakdown([]domain.SnapshotItem{
		{SKU: "TEE-M", Quantity: 2, UnitPrice: 50000},
		{SKU: "MUG-1", Quantity: 1, UnitPrice: 50000},
	}, inrPricingConfig())
	if err != nil {
		t.Fatalf("Breakdown returned error: %v", err)
	}

	want := domain.PriceBreakdown{Currency: "INR", Subtotal: 150000, Tax: 27000, Shipping: 9900, Total: 186900}
	if breakdown != want {
		t.Fatalf("unexpected breakdown: got %+v want %+v", breakdown, want)
	}
}

func TestBreakdownAtThresholdWaivesShipping(t *testing.T) {
	engine := NewPricingEngine()

	breakdown, err := engine.Breakdown([]domain.SnapshotItem{
		{SKU: "SOFA-1", Quantity: 1, UnitPrice: 200000},
	}, inrPricingConfig())
	if err != nil {
		t.Fatalf("Breakdown returned error: %v", err)
	}
	if breakdown.Shipping != 0 {
		t.Fatalf("expected free shipping at threshold, got %d", breakdown.Shipping)
	}
	if breakdown.Total != breakdown.Subtotal+breakdown.Tax {
		t.Fatalf("total must equal subtotal+tax, got %d", breakdown.Total)
	}
}

func TestBreakdownTaxRoundsHalfUp(t *testing.T) {
	engine := NewPricingEngine()

	// 101 * 18% = 18.18 -> 18; 103 * 18% = 18.54 -> 19; 25 * 18% = 4.5 -> 5.
	cases := []struct {
		unitPrice int64
		wantTax   int64
	}{
		{101, 18},
		{103, 19},
		{25, 5},
	}
	for _, tc := range cases {
		breakdown, err := engine.Breakdown([]domain.SnapshotItem{{SKU: "X", Quantity: 1, UnitPrice: tc.unitPrice}}, inrPricingConfig())
		if err != nil {
			t.Fatalf("Breakdown(%d) returned error: %v", tc.unitPrice, err)
		}
		if breakdown.Tax != tc.wantTax {
			t.Fatalf("Breakdown(%d) tax = %d, want %d", tc.unitPrice, breakdown.Tax, tc.wantTax)
		}
	}
}

func TestBreakdownZeroPricedLines(t *testing.T) {
	engine := NewPricingEngine()

	breakdown, err := engine.Breakdown([]domain.SnapshotItem{
		{SKU: "FREEBIE", Quantity: 1, UnitPrice: 0},
	}, inrPricingConfig())
	if err != nil {
		t.Fatalf("Breakdown returned error: %v", err)
	}
	if breakdown.Subtotal != 0 || breakdown.Tax != 0 {
		t.Fatalf("zero-priced cart must have zero subtotal and tax: %+v", breakdown)
	}
	if breakdown.Shipping != 9900 {
		t.Fatalf("zero subtotal is below threshold, expected flat fee: %+v", breakdown)
	}
}

func TestBreakdownRejectsInvalidLines(t *testing.T) {
	engine := NewPricingEngine()
	cfg := inrPricingConfig()

	cases := []struct {
		name  string
		items []domain.SnapshotItem
	}{
		{"empty cart", nil},
		{"zero quantity", []domain.SnapshotItem{{SKU: "A", Quantity: 0, UnitPrice: 100}}},
		{"negative quantity", []domain.SnapshotItem{{SKU: "A", Quantity: -2, UnitPrice: 100}}},
		{"negative price", []domain.SnapshotItem{{SKU: "A", Quantity: 1, UnitPrice: -1}}},
	}
	for _, tc := range cases {
		if _, err := engine.Breakdown(tc.items, cfg); !errors.Is(err, ErrInvalidCart) {
			t.Fatalf("%s: expected ErrInvalidCart, got %v", tc.name, err)
		}
	}
}

func TestBreakdownOverflowGuard(t *testing.T) {
	engine := NewPricingEngine()

	_, err := engine.Breakdown([]domain.SnapshotItem{
		{SKU: "HUGE", Quantity: 3, UnitPrice: math.MaxInt64 / 2},
	}, domain.PricingConfig{Currency: "INR"})
	if !errors.Is(err, ErrPricingOverflow) {
		t.Fatalf("expected ErrPricingOverflow, got %v", err)
	}
}

func TestBreakdownRejectsBadConfig(t *testing.T) {
	engine := NewPricingEngine()
	items := []domain.SnapshotItem{{SKU: "A", Quantity: 1, UnitPrice: 100}}

	if _, err := engine.Breakdown(items, domain.PricingConfig{TaxRateBasisPoints: -1}); !errors.Is(err, ErrPricingConfig) {
		t.Fatalf("expected ErrPricingConfig for negative rate, got %v", err)
	}
	if _, err := engine.Breakdown(items, domain.PricingConfig{TaxRateBasisPoints: 10001}); !errors.Is(err, ErrPricingConfig) {
		t.Fatalf("expected ErrPricingConfig for rate above 100%%, got %v", err)
	}
}
