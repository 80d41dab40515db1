package domain

import (
	"time"
)

// Pagination defines standard cursor-based paging inputs for list operations.
type Pagination struct {
	PageSize  int
	PageToken string
}

// CursorPage wraps a page of results with the token for the next page.
type CursorPage[T any] struct {
	Items         []T
	NextPageToken string
}

// SortOrder indicates ascending or descending ordering for list queries.
type SortOrder string

const (
	// SortAsc sorts results in ascending order.
	SortAsc SortOrder = "asc"
	// SortDesc sorts results in descending order.
	SortDesc SortOrder = "desc"
)

// Address stores a saved delivery address for a customer.
type Address struct {
	ID         string
	FullName   string
	Line1      string
	Line2      string
	City       string
	State      string
	PostalCode string
	Country    string
	Phone      string
	IsDefault  bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Contact stores the email/phone pair orders are confirmed against.
type Contact struct {
	Email string
	Phone string
}

// Cart aggregates the mutable shopping cart state for a customer or guest.
type Cart struct {
	ID        string
	UserID    string
	Currency  string
	Items     []CartItem
	Metadata  map[string]any
	CreatedAt time.Time
	UpdatedAt time.Time
}

// CartItem stores a single SKU entry within a cart.
type CartItem struct {
	ID        string
	ProductID string
	SKU       string
	Title     string
	Quantity  int
	UnitPrice int64
	Currency  string
	AddedAt   time.Time
	UpdatedAt *time.Time
}

// CartSnapshot is the immutable copy of a cart taken when checkout begins.
// Later cart edits never leak into an open checkout session.
type CartSnapshot struct {
	CartID        string
	Currency      string
	Items         []SnapshotItem
	CartUpdatedAt time.Time
	TakenAt       time.Time
}

// SnapshotItem mirrors a cart line at snapshot time.
type SnapshotItem struct {
	ProductID string
	SKU       string
	Title     string
	Quantity  int
	UnitPrice int64
}

// CheckoutState enumerates the checkout session lifecycle.
type CheckoutState string

const (
	// CheckoutStateShippingInfo indicates the session is collecting delivery details.
	CheckoutStateShippingInfo CheckoutState = "shipping_info"
	// CheckoutStatePaymentSelection indicates delivery details are set and a payment method is being chosen.
	CheckoutStatePaymentSelection CheckoutState = "payment_selection"
	// CheckoutStateReview indicates a payment attempt exists and awaits the customer's confirmation.
	CheckoutStateReview CheckoutState = "review"
	// CheckoutStateConfirmed indicates the order has been created; the session is terminal.
	CheckoutStateConfirmed CheckoutState = "confirmed"
	// CheckoutStateAbandoned indicates the session was abandoned before confirmation; terminal.
	CheckoutStateAbandoned CheckoutState = "abandoned"
)

// Terminal reports whether the state admits no further transitions.
func (s CheckoutState) Terminal() bool {
	return s == CheckoutStateConfirmed || s == CheckoutStateAbandoned
}

// PaymentMethod identifies the gateway a checkout pays through.
type PaymentMethod string

const (
	// PaymentMethodCOD settles in cash when the parcel is delivered.
	PaymentMethodCOD PaymentMethod = "cod"
	// PaymentMethodRazorpay pays through a Razorpay hosted checkout page.
	PaymentMethodRazorpay PaymentMethod = "razorpay"
	// PaymentMethodStripe pays through a Stripe payment intent confirmed on the client.
	PaymentMethodStripe PaymentMethod = "stripe"
)

// PaymentAttempt records an in-flight gateway interaction for a checkout session.
// Navigating backwards in the checkout discards the attempt.
type PaymentAttempt struct {
	ID               string
	Method           PaymentMethod
	GatewayReference string
	ClientSecret     string
	KeyID            string
	Amount           int64
	Currency         string
	CreatedAt        time.Time
}

// CheckoutSession carries the full state machine for one checkout.
type CheckoutSession struct {
	ID              string
	UserID          string
	State           CheckoutState
	Snapshot        CartSnapshot
	Breakdown       *PriceBreakdown
	ShippingAddress *Address
	Contact         *Contact
	DeliveryNote    string
	PaymentMethod   PaymentMethod
	Attempt         *PaymentAttempt
	OrderID         *string
	Revision        int64
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Guest reports whether the session belongs to an unauthenticated customer.
func (s CheckoutSession) Guest() bool { return s.UserID == "" }

// OrderStatus enumerates valid lifecycle states for orders.
type OrderStatus string

const (
	// OrderStatusPlaced indicates the order exists and awaits payment capture or delivery.
	OrderStatusPlaced OrderStatus = "placed"
	// OrderStatusPaid indicates payment has been captured.
	OrderStatusPaid OrderStatus = "paid"
	// OrderStatusShipped indicates the order has been handed to the carrier.
	OrderStatusShipped OrderStatus = "shipped"
	// OrderStatusDelivered indicates the order reached the customer.
	OrderStatusDelivered OrderStatus = "delivered"
	// OrderStatusCanceled indicates the order was canceled and stock restored.
	OrderStatusCanceled OrderStatus = "canceled"
)

// PaymentState enumerates capture states recorded on an order's payment.
type PaymentState string

const (
	// PaymentStatePending indicates the amount is owed but not yet collected.
	PaymentStatePending PaymentState = "pending"
	// PaymentStateCaptured indicates the gateway confirmed the funds.
	PaymentStateCaptured PaymentState = "captured"
	// PaymentStateFailed indicates the gateway reported a failure.
	PaymentStateFailed PaymentState = "failed"
)

// OrderPayment snapshots the gateway outcome an order was created from.
type OrderPayment struct {
	Method           PaymentMethod
	State            PaymentState
	GatewayReference string
	PaymentID        string
	Amount           int64
	Currency         string
	CapturedAt       *time.Time
}

// OrderTotals holds rolled-up monetary fields in the smallest currency unit.
type OrderTotals struct {
	Subtotal int64
	Tax      int64
	Shipping int64
	Total    int64
}

// OrderLineItem mirrors snapshot items at the time the order was created.
type OrderLineItem struct {
	ProductRef string
	SKU        string
	Title      string
	Quantity   int
	UnitPrice  int64
	Total      int64
}

// Order captures order headers returned to handlers/services.
type Order struct {
	ID              string
	OrderNumber     string
	UserID          string
	CheckoutRef     string
	IdempotencyKey  string
	Status          OrderStatus
	Currency        string
	Totals          OrderTotals
	Items           []OrderLineItem
	ShippingAddress Address
	Contact         Contact
	DeliveryNote    string
	Payment         OrderPayment
	Metadata        map[string]any
	CreatedAt       time.Time
	UpdatedAt       time.Time
	PlacedAt        time.Time
	CanceledAt      *time.Time
	CancelReason    *string
}

// OrderDraft is the not-yet-persisted order assembled from a checkout session.
// The payment block is stamped by the gateway adapter after verification.
type OrderDraft struct {
	CheckoutRef     string
	UserID          string
	IdempotencyKey  string
	Currency        string
	Totals          OrderTotals
	Items           []OrderLineItem
	ShippingAddress Address
	Contact         Contact
	DeliveryNote    string
	Payment         OrderPayment
	Metadata        map[string]any
}

// StockRecord tracks sellable units for one SKU.
type StockRecord struct {
	SKU       string
	Available int64
	UpdatedAt time.Time
}

// HealthStatus grades the outcome of a dependency probe.
type HealthStatus string

const (
	// HealthStatusOK indicates the dependency responded within budget.
	HealthStatusOK HealthStatus = "ok"
	// HealthStatusDegraded indicates the dependency responded with an error.
	HealthStatusDegraded HealthStatus = "degraded"
	// HealthStatusError indicates the dependency timed out or was cancelled.
	HealthStatusError HealthStatus = "error"
)

// SystemHealthCheck captures one dependency probe result.
type SystemHealthCheck struct {
	Status    HealthStatus
	Detail    string
	Error     string
	Latency   time.Duration
	CheckedAt time.Time
}

// SystemHealthReport aggregates dependency probe results for readiness checks.
type SystemHealthReport struct {
	Status      HealthStatus
	Checks      map[string]SystemHealthCheck
	GeneratedAt time.Time
}
