package repositories

import (
	"context"
	"time"

	domain "github.com/clovemart/api/internal/domain"
)

// Registry exposes typed repository accessors and lifecycle hooks for dependency injection.
type Registry interface {
	Close(ctx context.Context) error

	Carts() CartRepository
	Addresses() AddressRepository
	Checkouts() CheckoutRepository
	Orders() OrderRepository
	Inventory() InventoryRepository
	Counters() CounterRepository
	Health() HealthRepository
	UnitOfWork
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// UnitOfWork allows grouping repository operations in a transactional boundary when supported.
type UnitOfWork interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// CartRepository owns cart header + items persistence with optimistic locking guarantees.
type CartRepository interface {
	// GetCart loads the cart for the owner, returning a not-found RepositoryError when absent.
	GetCart(ctx context.Context, ownerID string) (domain.Cart, error)
	// UpsertCart writes the cart. When expectedUpdatedAt is non-nil the write
	// fails with a conflict RepositoryError if the stored timestamp differs.
	UpsertCart(ctx context.Context, cart domain.Cart, expectedUpdatedAt *time.Time) (domain.Cart, error)
	DeleteCart(ctx context.Context, ownerID string) error
}

// AddressRepository stores shipping addresses per user.
type AddressRepository interface {
	List(ctx context.Context, userID string) ([]domain.Address, error)
	Get(ctx context.Context, userID string, addressID string) (domain.Address, error)
	Upsert(ctx context.Context, userID string, addressID *string, addr domain.Address) (domain.Address, error)
	Delete(ctx context.Context, userID string, addressID string) error
	HasAny(ctx context.Context, userID string) (bool, error)
	SetDefault(ctx context.Context, userID string, addressID string) (domain.Address, error)
}

// CheckoutRepository persists checkout sessions with revision-based optimistic locking.
type CheckoutRepository interface {
	Insert(ctx context.Context, session domain.CheckoutSession) error
	// Update writes the session only when the stored revision equals
	// expectedRevision; it bumps the revision on success.
	Update(ctx context.Context, session domain.CheckoutSession, expectedRevision int64) (domain.CheckoutSession, error)
	FindByID(ctx context.Context, checkoutID string) (domain.CheckoutSession, error)
}

// OrderCreateRequest bundles the order insert with the stock decrements that
// must commit atomically alongside it.
type OrderCreateRequest struct {
	Order domain.Order
	Lines []StockLine
	Now   time.Time
}

// StockLine names a SKU quantity to decrement when an order is created.
type StockLine struct {
	SKU      string
	Quantity int64
}

// OrderRepository persists order headers and provides query helpers.
type OrderRepository interface {
	// Create inserts the order, decrements stock, and claims the idempotency
	// key in one transaction. A previously claimed key yields a conflict
	// RepositoryError carrying the existing order id.
	Create(ctx context.Context, req OrderCreateRequest) (domain.Order, error)
	FindByID(ctx context.Context, orderID string) (domain.Order, error)
	FindByIdempotencyKey(ctx context.Context, key string) (domain.Order, error)
	List(ctx context.Context, filter OrderListFilter) (domain.CursorPage[domain.Order], error)
	// UpdateStatus transitions the order status; restock lines are credited
	// back in the same transaction (used by cancellation).
	UpdateStatus(ctx context.Context, orderID string, status domain.OrderStatus, update OrderStatusUpdate) (domain.Order, error)
}

// OrderStatusUpdate carries optional fields mutated with a status transition.
type OrderStatusUpdate struct {
	CanceledAt   *time.Time
	CancelReason *string
	CapturedAt   *time.Time
	PaymentState *domain.PaymentState
	Restock      []StockLine
	Now          time.Time
}

// OrderListFilter controls order listings for a user.
type OrderListFilter struct {
	UserID     string
	Status     []domain.OrderStatus
	Pagination domain.Pagination
}

// InventoryRepository manages per-SKU stock counters.
type InventoryRepository interface {
	GetStock(ctx context.Context, sku string) (domain.StockRecord, error)
	// AdjustStock applies the delta (positive restock, negative decrement),
	// failing with ErrInsufficientStock semantics when it would go negative.
	AdjustStock(ctx context.Context, sku string, delta int64, now time.Time) (domain.StockRecord, error)
}

// CounterRepository provides transaction-safe sequence numbers.
type CounterRepository interface {
	Next(ctx context.Context, counterID string, step int64) (int64, error)
	Configure(ctx context.Context, counterID string, cfg CounterConfig) error
}

// CounterConfig customises increment behaviour and bounds for a counter.
type CounterConfig struct {
	Step         int64
	MaxValue     *int64
	InitialValue *int64
}

// HealthRepository exposes status of downstream dependencies for health checks.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.SystemHealthReport, error)
}
