package services

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/clovemart/api/internal/domain"
	"github.com/clovemart/api/internal/repositories"
)

const (
	orderEventCreated         = "order.created"
	orderEventStatusChanged   = "order.status.changed"
	orderEventPaymentCaptured = "order.payment.captured"

	orderIDPrefix      = "ord_"
	orderNumberCounter = "orders"
)

var (
	// ErrOrderInvalidInput signals the caller provided invalid data.
	ErrOrderInvalidInput = errors.New("order: invalid input")
	// ErrOrderNotFound indicates the order could not be located.
	ErrOrderNotFound = errors.New("order: not found")
	// ErrOrderInvalidState indicates an invalid status transition was attempted.
	ErrOrderInvalidState = errors.New("order: invalid status transition")
	// ErrOrderUnavailable indicates order dependencies are currently unavailable.
	ErrOrderUnavailable = errors.New("order: unavailable")
	// ErrDuplicateOrder indicates the idempotency key already produced an order.
	ErrDuplicateOrder = errors.New("order: duplicate")
	// ErrStockUnavailable indicates a line could not be covered by available stock.
	ErrStockUnavailable = errors.New("order: insufficient stock")
)

// cancellableStatuses lists statuses a customer cancellation may leave from.
var cancellableStatuses = []domain.OrderStatus{
	domain.OrderStatusPlaced,
	domain.OrderStatusPaid,
}

// OrderEventPublisher publishes order domain events for downstream consumers.
type OrderEventPublisher interface {
	PublishOrderEvent(ctx context.Context, event OrderEvent) error
}

// OrderEvent captures metadata for emitted order domain events.
type OrderEvent struct {
	Type        string
	OrderID     string
	OrderNumber string
	UserID      string
	Status      domain.OrderStatus
	Total       int64
	Currency    string
	OccurredAt  time.Time
	Metadata    map[string]any
}

// OrderServiceDeps bundles collaborators required to construct the order service.
type OrderServiceDeps struct {
	Orders      repositories.OrderRepository
	Counters    repositories.CounterRepository
	Clock       func() time.Time
	IDGenerator func() string
	Events      OrderEventPublisher
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type orderService struct {
	orders   repositories.OrderRepository
	counters repositories.CounterRepository
	clock    func() time.Time
	newID    func() string
	events   OrderEventPublisher
	logger   func(context.Context, string, map[string]any)
}

// NewOrderService wires dependencies into a concrete OrderService implementation.
// The returned service also satisfies the factory contract gateway adapters
// hand verified payments to.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	if deps.Orders == nil {
		return nil, errors.New("order service: order repository is required")
	}
	if deps.Counters == nil {
		return nil, errors.New("order service: counter repository is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string {
			return ulid.Make().String()
		}
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &orderService{
		orders:   deps.Orders,
		counters: deps.Counters,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		events: deps.Events,
		logger: logger,
	}, nil
}

// CreateOrder persists the draft exactly once per idempotency key. The insert,
// the idempotency-key claim, and the stock decrements commit atomically; when
// any line cannot be covered nothing is written.
func (s *orderService) CreateOrder(ctx context.Context, draft domain.OrderDraft) (Order, error) {
	if err := validateDraft(draft); err != nil {
		return Order{}, err
	}

	// Fast path: a retried finalize with the same key returns the first order.
	if existing, err := s.orders.FindByIdempotencyKey(ctx, draft.IdempotencyKey); err == nil {
		return existing, fmt.Errorf("%w: order %s", ErrDuplicateOrder, existing.ID)
	} else if !isNotFound(err) {
		return Order{}, s.mapRepositoryError(ctx, err)
	}

	now := s.clock()
	number, err := s.nextOrderNumber(ctx, now)
	if err != nil {
		return Order{}, s.mapRepositoryError(ctx, err)
	}

	status := domain.OrderStatusPlaced
	if draft.Payment.State == domain.PaymentStateCaptured {
		status = domain.OrderStatusPaid
	}

	order := domain.Order{
		ID:              orderIDPrefix + s.newID(),
		OrderNumber:     number,
		UserID:          draft.UserID,
		CheckoutRef:     draft.CheckoutRef,
		IdempotencyKey:  draft.IdempotencyKey,
		Status:          status,
		Currency:        strings.ToUpper(strings.TrimSpace(draft.Currency)),
		Totals:          draft.Totals,
		Items:           draft.Items,
		ShippingAddress: draft.ShippingAddress,
		Contact:         draft.Contact,
		DeliveryNote:    draft.DeliveryNote,
		Payment:         draft.Payment,
		Metadata:        maps.Clone(draft.Metadata),
		CreatedAt:       now,
		UpdatedAt:       now,
		PlacedAt:        now,
	}

	created, err := s.orders.Create(ctx, repositories.OrderCreateRequest{
		Order: order,
		Lines: stockLines(draft.Items),
		Now:   now,
	})
	if err != nil {
		return Order{}, s.mapCreateError(ctx, err)
	}

	s.publishEvent(ctx, OrderEvent{
		Type:        orderEventCreated,
		OrderID:     created.ID,
		OrderNumber: created.OrderNumber,
		UserID:      created.UserID,
		Status:      created.Status,
		Total:       created.Totals.Total,
		Currency:    created.Currency,
		OccurredAt:  now,
		Metadata:    maps.Clone(created.Metadata),
	})

	s.logger(ctx, "order.created", map[string]any{
		"orderID":     created.ID,
		"orderNumber": created.OrderNumber,
		"method":      string(created.Payment.Method),
		"total":       created.Totals.Total,
	})
	return created, nil
}

// GetOrder returns the order when it belongs to the caller.
func (s *orderService) GetOrder(ctx context.Context, orderID string, userID string) (Order, error) {
	order, err := s.loadOwned(ctx, orderID, userID)
	if err != nil {
		return Order{}, err
	}
	return order, nil
}

// ListOrders pages through the user's orders, newest first.
func (s *orderService) ListOrders(ctx context.Context, query ListOrdersQuery) (domain.CursorPage[Order], error) {
	userID := strings.TrimSpace(query.UserID)
	if userID == "" {
		return domain.CursorPage[Order]{}, fmt.Errorf("%w: user id is required", ErrOrderInvalidInput)
	}

	page, err := s.orders.List(ctx, repositories.OrderListFilter{
		UserID:     userID,
		Status:     query.Status,
		Pagination: query.Pagination,
	})
	if err != nil {
		return domain.CursorPage[Order]{}, s.mapRepositoryError(ctx, err)
	}
	return page, nil
}

// CancelOrder cancels a not-yet-shipped order. Stock for every line is
// credited back in the same transaction as the status change.
func (s *orderService) CancelOrder(ctx context.Context, cmd CancelOrderCommand) (Order, error) {
	order, err := s.loadOwned(ctx, cmd.OrderID, cmd.UserID)
	if err != nil {
		return Order{}, err
	}

	cancellable := false
	for _, status := range cancellableStatuses {
		if order.Status == status {
			cancellable = true
			break
		}
	}
	if !cancellable {
		return Order{}, fmt.Errorf("%w: order status %q cannot be canceled", ErrOrderInvalidState, order.Status)
	}

	now := s.clock()
	reason := strings.TrimSpace(cmd.Reason)
	update := repositories.OrderStatusUpdate{
		CanceledAt: &now,
		Restock:    stockLines(order.Items),
		Now:        now,
	}
	if reason != "" {
		update.CancelReason = &reason
	}

	canceled, err := s.orders.UpdateStatus(ctx, order.ID, domain.OrderStatusCanceled, update)
	if err != nil {
		return Order{}, s.mapRepositoryError(ctx, err)
	}

	s.publishEvent(ctx, OrderEvent{
		Type:        orderEventStatusChanged,
		OrderID:     canceled.ID,
		OrderNumber: canceled.OrderNumber,
		UserID:      canceled.UserID,
		Status:      canceled.Status,
		Total:       canceled.Totals.Total,
		Currency:    canceled.Currency,
		OccurredAt:  now,
		Metadata:    map[string]any{"reason": reason},
	})
	return canceled, nil
}

// RecordGatewayCapture reconciles a webhook-reported capture onto the order
// created from that gateway reference. Already-captured orders are returned
// unchanged so webhook retries stay harmless.
func (s *orderService) RecordGatewayCapture(ctx context.Context, gatewayReference string, paymentID string) (Order, error) {
	gatewayReference = strings.TrimSpace(gatewayReference)
	if gatewayReference == "" {
		return Order{}, fmt.Errorf("%w: gateway reference is required", ErrOrderInvalidInput)
	}

	order, err := s.orders.FindByIdempotencyKey(ctx, gatewayReference)
	if err != nil {
		return Order{}, s.mapRepositoryError(ctx, err)
	}
	if order.Payment.State == domain.PaymentStateCaptured {
		return order, nil
	}
	if order.Status != domain.OrderStatusPlaced {
		return Order{}, fmt.Errorf("%w: order status %q cannot record a capture", ErrOrderInvalidState, order.Status)
	}

	now := s.clock()
	captured := domain.PaymentStateCaptured
	updated, err := s.orders.UpdateStatus(ctx, order.ID, domain.OrderStatusPaid, repositories.OrderStatusUpdate{
		CapturedAt:   &now,
		PaymentState: &captured,
		Now:          now,
	})
	if err != nil {
		return Order{}, s.mapRepositoryError(ctx, err)
	}

	s.publishEvent(ctx, OrderEvent{
		Type:        orderEventPaymentCaptured,
		OrderID:     updated.ID,
		OrderNumber: updated.OrderNumber,
		UserID:      updated.UserID,
		Status:      updated.Status,
		Total:       updated.Totals.Total,
		Currency:    updated.Currency,
		OccurredAt:  now,
		Metadata:    map[string]any{"paymentId": paymentID},
	})
	return updated, nil
}

func (s *orderService) loadOwned(ctx context.Context, orderID string, userID string) (Order, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, s.mapRepositoryError(ctx, err)
	}
	if order.UserID != strings.TrimSpace(userID) {
		return Order{}, ErrOrderNotFound
	}
	return order, nil
}

func (s *orderService) nextOrderNumber(ctx context.Context, now time.Time) (string, error) {
	seq, err := s.counters.Next(ctx, orderNumberCounter, 1)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("CM-%d-%06d", now.Year(), seq), nil
}

// mapCreateError distinguishes the two conflicts a creation transaction can
// lose: an already-claimed idempotency key and an uncoverable stock line.
func (s *orderService) mapCreateError(ctx context.Context, err error) error {
	var dup *repositories.DuplicateOrderError
	if errors.As(err, &dup) {
		return fmt.Errorf("%w: order %s", ErrDuplicateOrder, dup.OrderID)
	}
	var inv *repositories.InventoryError
	if errors.As(err, &inv) && inv.Code == repositories.InventoryErrorInsufficientStock {
		return fmt.Errorf("%w: %s", ErrStockUnavailable, inv.Message)
	}
	return s.mapRepositoryError(ctx, err)
}

func (s *orderService) mapRepositoryError(ctx context.Context, err error) error {
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return ErrOrderNotFound
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrDuplicateOrder, err)
		}
	}
	s.logger(ctx, "order.repository_error", map[string]any{"error": err.Error()})
	return ErrOrderUnavailable
}

func (s *orderService) publishEvent(ctx context.Context, event OrderEvent) {
	if s.events == nil {
		return
	}
	// Publishing is best effort; the order is already committed.
	if err := s.events.PublishOrderEvent(ctx, event); err != nil {
		s.logger(ctx, "order.event.publish_failed", map[string]any{
			"type":  event.Type,
			"order": event.OrderID,
			"error": err.Error(),
		})
	}
}

func validateDraft(draft domain.OrderDraft) error {
	if len(draft.Items) == 0 {
		return fmt.Errorf("%w: draft must contain at least one item", ErrOrderInvalidInput)
	}
	if strings.TrimSpace(draft.IdempotencyKey) == "" {
		return fmt.Errorf("%w: idempotency key is required", ErrOrderInvalidInput)
	}
	if strings.TrimSpace(draft.Currency) == "" {
		return fmt.Errorf("%w: currency is required", ErrOrderInvalidInput)
	}
	if draft.Payment.Method == "" {
		return fmt.Errorf("%w: payment block is required", ErrOrderInvalidInput)
	}
	for _, item := range draft.Items {
		if item.Quantity < 1 {
			return fmt.Errorf("%w: line %s quantity %d", ErrOrderInvalidInput, item.SKU, item.Quantity)
		}
	}
	return nil
}

// stockLines aggregates line quantities per SKU for atomic stock adjustment.
func stockLines(items []domain.OrderLineItem) []repositories.StockLine {
	bySKU := map[string]int64{}
	order := make([]string, 0, len(items))
	for _, item := range items {
		sku := strings.TrimSpace(item.SKU)
		if sku == "" {
			continue
		}
		if _, seen := bySKU[sku]; !seen {
			order = append(order, sku)
		}
		bySKU[sku] += int64(item.Quantity)
	}
	lines := make([]repositories.StockLine, 0, len(order))
	for _, sku := range order {
		lines = append(lines, repositories.StockLine{SKU: sku, Quantity: bySKU[sku]})
	}
	return lines
}
