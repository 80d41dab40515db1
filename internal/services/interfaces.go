package services

import (
	"context"

	domain "github.com/clovemart/api/internal/domain"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	Pagination      = domain.Pagination
	Cart            = domain.Cart
	CartItem        = domain.CartItem
	CartSnapshot    = domain.CartSnapshot
	SnapshotItem    = domain.SnapshotItem
	Address         = domain.Address
	Contact         = domain.Contact
	CheckoutSession = domain.CheckoutSession
	PaymentAttempt  = domain.PaymentAttempt
	Order           = domain.Order
	OrderTotals     = domain.OrderTotals
	OrderLineItem   = domain.OrderLineItem
	OrderStatus     = domain.OrderStatus
	PriceBreakdown  = domain.PriceBreakdown
	PricingConfig   = domain.PricingConfig
)

// UpsertCartItemCommand adds or replaces a line on the owner's cart.
type UpsertCartItemCommand struct {
	OwnerID   string
	ProductID string
	SKU       string
	Title     string
	Quantity  int
	UnitPrice int64
	Currency  string
}

// RemoveCartItemCommand drops a line from the owner's cart.
type RemoveCartItemCommand struct {
	OwnerID string
	ItemID  string
}

// GuestShippingForm carries the raw guest checkout submission before validation.
type GuestShippingForm struct {
	FullName     string
	Line1        string
	Line2        string
	City         string
	State        string
	PostalCode   string
	Country      string
	ContactEmail string
	ContactPhone string
	DeliveryNote string
}

// BeginCheckoutCommand opens a checkout session from the owner's cart.
// OwnerID keys the cart (uid or guest cart id); UserID is empty for guests.
type BeginCheckoutCommand struct {
	OwnerID string
	UserID  string
}

// SubmitShippingCommand supplies delivery details for a session in shipping_info.
// Authenticated sessions may name a saved address; guests submit the form.
type SubmitShippingCommand struct {
	CheckoutID string
	UserID     string
	AddressID  string
	Guest      *GuestShippingForm
	// ContactEmail/ContactPhone carry the authenticated identity's contact
	// details; guests supply them through the form instead.
	ContactEmail string
	ContactPhone string
	DeliveryNote string
}

// SelectPaymentCommand picks the gateway for a session in payment_selection.
type SelectPaymentCommand struct {
	CheckoutID string
	UserID     string
	Method     domain.PaymentMethod
}

// InitiatePaymentCommand opens a gateway attempt for the selected method.
type InitiatePaymentCommand struct {
	CheckoutID     string
	UserID         string
	IdempotencyKey string
}

// FinalizeCheckoutCommand submits the client's payment proof for verification.
type FinalizeCheckoutCommand struct {
	CheckoutID string
	UserID     string
	PaymentID  string
	Signature  string
}

// ListOrdersQuery pages through a user's orders, newest first.
type ListOrdersQuery struct {
	UserID     string
	Status     []domain.OrderStatus
	Pagination Pagination
}

// CancelOrderCommand cancels a not-yet-shipped order and restocks its lines.
type CancelOrderCommand struct {
	OrderID string
	UserID  string
	Reason  string
}

// UpsertAddressCommand creates or updates a saved address.
type UpsertAddressCommand struct {
	UserID     string
	AddressID  *string
	Address    Address
	SetDefault bool
}

// AdjustStockCommand changes the available units for a SKU. Positive deltas
// restock, negative deltas reserve units out of band (damage, shrinkage).
type AdjustStockCommand struct {
	SKU    string
	Delta  int64
	Reason string
}

// CartService manages the mutable cart and produces immutable snapshots.
type CartService interface {
	GetCart(ctx context.Context, ownerID string) (Cart, error)
	UpsertItem(ctx context.Context, cmd UpsertCartItemCommand) (Cart, error)
	RemoveItem(ctx context.Context, cmd RemoveCartItemCommand) (Cart, error)
	// Snapshot validates the cart and freezes it for checkout.
	Snapshot(ctx context.Context, ownerID string) (CartSnapshot, error)
	// Estimate prices the current cart without opening a checkout.
	Estimate(ctx context.Context, ownerID string) (PriceBreakdown, error)
	Clear(ctx context.Context, ownerID string) error
}

// AddressResolver picks the delivery address for a checkout: the saved
// default (or first) for authenticated users, a validated form for guests.
type AddressResolver interface {
	Resolve(ctx context.Context, userID string) (Address, error)
	ValidateGuest(form GuestShippingForm) (Address, Contact, error)
}

// CheckoutService drives the checkout state machine.
type CheckoutService interface {
	Begin(ctx context.Context, cmd BeginCheckoutCommand) (CheckoutSession, error)
	Get(ctx context.Context, checkoutID string, userID string) (CheckoutSession, error)
	SubmitShipping(ctx context.Context, cmd SubmitShippingCommand) (CheckoutSession, error)
	SelectPayment(ctx context.Context, cmd SelectPaymentCommand) (CheckoutSession, error)
	InitiatePayment(ctx context.Context, cmd InitiatePaymentCommand) (CheckoutSession, error)
	Finalize(ctx context.Context, cmd FinalizeCheckoutCommand) (Order, error)
	// Back navigates one step towards shipping_info, discarding any in-flight attempt.
	Back(ctx context.Context, checkoutID string, userID string) (CheckoutSession, error)
	Abandon(ctx context.Context, checkoutID string, userID string) error
}

// OrderService creates and serves orders. CreateOrder is the idempotent
// factory that gateway adapters hand verified payments to.
type OrderService interface {
	CreateOrder(ctx context.Context, draft domain.OrderDraft) (Order, error)
	GetOrder(ctx context.Context, orderID string, userID string) (Order, error)
	ListOrders(ctx context.Context, query ListOrdersQuery) (domain.CursorPage[Order], error)
	CancelOrder(ctx context.Context, cmd CancelOrderCommand) (Order, error)
	// RecordGatewayCapture reconciles a webhook-reported capture onto an order.
	RecordGatewayCapture(ctx context.Context, gatewayReference string, paymentID string) (Order, error)
}

// AddressService manages the saved address book backing the resolver.
type AddressService interface {
	ListAddresses(ctx context.Context, userID string) ([]Address, error)
	UpsertAddress(ctx context.Context, cmd UpsertAddressCommand) (Address, error)
	DeleteAddress(ctx context.Context, userID string, addressID string) error
	SetDefaultAddress(ctx context.Context, userID string, addressID string) (Address, error)
}

// InventoryService exposes the per-SKU stock counters to operators. Order
// creation decrements stock transactionally inside the order repository, so
// this surface is for reads and manual corrections only.
type InventoryService interface {
	GetStock(ctx context.Context, sku string) (domain.StockRecord, error)
	AdjustStock(ctx context.Context, cmd AdjustStockCommand) (domain.StockRecord, error)
}

// SystemService surfaces dependency health for readiness probes.
type SystemService interface {
	Healthz(ctx context.Context) (domain.SystemHealthReport, error)
}
