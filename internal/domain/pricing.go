package domain

// PriceBreakdown captures the aggregated monetary results of pricing a cart.
// All amounts are expressed in the smallest currency unit.
type PriceBreakdown struct {
	Currency string
	Subtotal int64
	Tax      int64
	Shipping int64
	Total    int64
}

// PricingConfig holds the per-currency knobs the pricing engine runs with.
// TaxRateBasisPoints expresses the tax rate in basis points (1800 = 18%).
type PricingConfig struct {
	Currency              string
	TaxRateBasisPoints    int64
	FreeShippingThreshold int64
	ShippingFlatFee       int64
}
