package services

import (
	"context"
	"time"

	domain "github.com/clovemart/api/internal/domain"
	"github.com/clovemart/api/internal/repositories"
)

// repoError is a minimal repositories.RepositoryError for driving error paths.
type repoError struct {
	msg         string
	notFound    bool
	conflict    bool
	unavailable bool
}

func (e repoError) Error() string {
	if e.msg != "" {
		return e.msg
	}
	return "repository error"
}

func (e repoError) IsNotFound() bool    { return e.notFound }
func (e repoError) IsConflict() bool    { return e.conflict }
func (e repoError) IsUnavailable() bool { return e.unavailable }

func notFoundErr() error { return repoError{msg: "not found", notFound: true} }

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

type stubCartRepository struct {
	get    func(ctx context.Context, ownerID string) (domain.Cart, error)
	upsert func(ctx context.Context, cart domain.Cart, expectedUpdatedAt *time.Time) (domain.Cart, error)
	remove func(ctx context.Context, ownerID string) error
}

func (s *stubCartRepository) GetCart(ctx context.Context, ownerID string) (domain.Cart, error) {
	if s.get != nil {
		return s.get(ctx, ownerID)
	}
	return domain.Cart{}, notFoundErr()
}

func (s *stubCartRepository) UpsertCart(ctx context.Context, cart domain.Cart, expectedUpdatedAt *time.Time) (domain.Cart, error) {
	if s.upsert != nil {
		return s.upsert(ctx, cart, expectedUpdatedAt)
	}
	return cart, nil
}

func (s *stubCartRepository) DeleteCart(ctx context.Context, ownerID string) error {
	if s.remove != nil {
		return s.remove(ctx, ownerID)
	}
	return nil
}

type stubAddressRepository struct {
	list       func(ctx context.Context, userID string) ([]domain.Address, error)
	get        func(ctx context.Context, userID, addressID string) (domain.Address, error)
	upsert     func(ctx context.Context, userID string, addressID *string, addr domain.Address) (domain.Address, error)
	remove     func(ctx context.Context, userID, addressID string) error
	hasAny     func(ctx context.Context, userID string) (bool, error)
	setDefault func(ctx context.Context, userID, addressID string) (domain.Address, error)
}

func (s *stubAddressRepository) List(ctx context.Context, userID string) ([]domain.Address, error) {
	if s.list != nil {
		return s.list(ctx, userID)
	}
	return nil, nil
}

func (s *stubAddressRepository) Get(ctx context.Context, userID, addressID string) (domain.Address, error) {
	if s.get != nil {
		return s.get(ctx, userID, addressID)
	}
	return domain.Address{}, notFoundErr()
}

func (s *stubAddressRepository) Upsert(ctx context.Context, userID string, addressID *string, addr domain.Address) (domain.Address, error) {
	if s.upsert != nil {
		return s.upsert(ctx, userID, addressID, addr)
	}
	return addr, nil
}

func (s *stubAddressRepository) Delete(ctx context.Context, userID, addressID string) error {
	if s.remove != nil {
		return s.remove(ctx, userID, addressID)
	}
	return nil
}

func (s *stubAddressRepository) HasAny(ctx context.Context, userID string) (bool, error) {
	if s.hasAny != nil {
		return s.hasAny(ctx, userID)
	}
	return false, nil
}

func (s *stubAddressRepository) SetDefault(ctx context.Context, userID, addressID string) (domain.Address, error) {
	if s.setDefault != nil {
		return s.setDefault(ctx, userID, addressID)
	}
	return domain.Address{ID: addressID, IsDefault: true}, nil
}

type stubCheckoutRepository struct {
	insert   func(ctx context.Context, session domain.CheckoutSession) error
	update   func(ctx context.Context, session domain.CheckoutSession, expectedRevision int64) (domain.CheckoutSession, error)
	findByID func(ctx context.Context, checkoutID string) (domain.CheckoutSession, error)

	updates int
}

func (s *stubCheckoutRepository) Insert(ctx context.Context, session domain.CheckoutSession) error {
	if s.insert != nil {
		return s.insert(ctx, session)
	}
	return nil
}

func (s *stubCheckoutRepository) Update(ctx context.Context, session domain.CheckoutSession, expectedRevision int64) (domain.CheckoutSession, error) {
	s.updates++
	if s.update != nil {
		return s.update(ctx, session, expectedRevision)
	}
	session.Revision = expectedRevision + 1
	return session, nil
}

func (s *stubCheckoutRepository) FindByID(ctx context.Context, checkoutID string) (domain.CheckoutSession, error) {
	if s.findByID != nil {
		return s.findByID(ctx, checkoutID)
	}
	return domain.CheckoutSession{}, notFoundErr()
}

type stubOrderRepository struct {
	create       func(ctx context.Context, req repositories.OrderCreateRequest) (domain.Order, error)
	findByID     func(ctx context.Context, orderID string) (domain.Order, error)
	findByKey    func(ctx context.Context, key string) (domain.Order, error)
	list         func(ctx context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error)
	updateStatus func(ctx context.Context, orderID string, status domain.OrderStatus, update repositories.OrderStatusUpdate) (domain.Order, error)

	creates int
}

func (s *stubOrderRepository) Create(ctx context.Context, req repositories.OrderCreateRequest) (domain.Order, error) {
	s.creates++
	if s.create != nil {
		return s.create(ctx, req)
	}
	return req.Order, nil
}

func (s *stubOrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	if s.findByID != nil {
		return s.findByID(ctx, orderID)
	}
	return domain.Order{}, notFoundErr()
}

func (s *stubOrderRepository) FindByIdempotencyKey(ctx context.Context, key string) (domain.Order, error) {
	if s.findByKey != nil {
		return s.findByKey(ctx, key)
	}
	return domain.Order{}, notFoundErr()
}

func (s *stubOrderRepository) List(ctx context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	if s.list != nil {
		return s.list(ctx, filter)
	}
	return domain.CursorPage[domain.Order]{}, nil
}

func (s *stubOrderRepository) UpdateStatus(ctx context.Context, orderID string, status domain.OrderStatus, update repositories.OrderStatusUpdate) (domain.Order, error) {
	if s.updateStatus != nil {
		return s.updateStatus(ctx, orderID, status, update)
	}
	return domain.Order{}, notFoundErr()
}

type stubCounterRepository struct {
	next func(ctx context.Context, counterID string, step int64) (int64, error)
}

func (s *stubCounterRepository) Next(ctx context.Context, counterID string, step int64) (int64, error) {
	if s.next != nil {
		return s.next(ctx, counterID, step)
	}
	return 1, nil
}

func (s *stubCounterRepository) Configure(ctx context.Context, counterID string, cfg repositories.CounterConfig) error {
	return nil
}

type stubEventPublisher struct {
	publish func(ctx context.Context, event OrderEvent) error
	events  []OrderEvent
}

func (s *stubEventPublisher) PublishOrderEvent(ctx context.Context, event OrderEvent) error {
	s.events = append(s.events, event)
	if s.publish != nil {
		return s.publish(ctx, event)
	}
	return nil
}

type stubInventoryRepository struct {
	getStock    func(ctx context.Context, sku string) (domain.StockRecord, error)
	adjustStock func(ctx context.Context, sku string, delta int64, now time.Time) (domain.StockRecord, error)
}

func (s *stubInventoryRepository) GetStock(ctx context.Context, sku string) (domain.StockRecord, error) {
	if s.getStock == nil {
		return domain.StockRecord{}, notFoundErr()
	}
	return s.getStock(ctx, sku)
}

func (s *stubInventoryRepository) AdjustStock(ctx context.Context, sku string, delta int64, now time.Time) (domain.StockRecord, error) {
	if s.adjustStock == nil {
		return domain.StockRecord{}, notFoundErr()
	}
	return s.adjustStock(ctx, sku, delta, now)
}

var _ repositories.InventoryRepository = (*stubInventoryRepository)(nil)
