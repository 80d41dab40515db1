package firestore

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/clovemart/api/internal/domain"
	pfirestore "github.com/clovemart/api/internal/platform/firestore"
	"github.com/clovemart/api/internal/repositories"
)

const (
	orderCollection    = "orders"
	orderKeyCollection = "order_keys"
)

// OrderRepository persists orders in Firestore. Creation claims the
// idempotency key and decrements stock in the same transaction as the order
// insert, so either all three commit or none do.
type OrderRepository struct {
	base      *pfirestore.BaseRepository[orderDocument]
	inventory *InventoryRepository
	provider  *pfirestore.Provider
}

// NewOrderRepository constructs a Firestore-backed order repository.
func NewOrderRepository(provider *pfirestore.Provider, inventory *InventoryRepository) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository requires firestore provider")
	}
	if inventory == nil {
		return nil, errors.New("order repository requires inventory repository")
	}
	base := pfirestore.NewBaseRepository[orderDocument](provider, orderCollection, nil, nil)
	return &OrderRepository{
		base:      base,
		inventory: inventory,
		provider:  provider,
	}, nil
}

// Create inserts the order, decrements stock, and claims the idempotency key
// atomically. A previously claimed key fails with DuplicateOrderError; a line
// that cannot be covered fails with an insufficient-stock InventoryError.
func (r *OrderRepository) Create(ctx context.Context, req repositories.OrderCreateRequest) (domain.Order, error) {
	if r == nil || r.base == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	orderID := strings.TrimSpace(req.Order.ID)
	if orderID == "" {
		return domain.Order{}, errors.New("order repository: order id is required")
	}
	key := strings.TrimSpace(req.Order.IdempotencyKey)
	if key == "" {
		return domain.Order{}, errors.New("order repository: idempotency key is required")
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return domain.Order{}, err
	}

	now := req.Now.UTC()
	if now.IsZero() {
		now = time.Now().UTC()
	}

	err = r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		keyRef := client.Collection(orderKeyCollection).Doc(orderKeyDocID(key))
		keySnap, err := tx.Get(keyRef)
		switch status.Code(err) {
		case codes.NotFound:
			// key is free
		case codes.OK:
			var claim orderKeyDocument
			if decodeErr := keySnap.DataTo(&claim); decodeErr != nil {
				return fmt.Errorf("decode order key %s: %w", keySnap.Ref.ID, decodeErr)
			}
			return &repositories.DuplicateOrderError{Key: key, OrderID: claim.OrderID}
		default:
			return err
		}

		// All reads must precede writes; collect stock snapshots first.
		stocks, err := r.inventory.readStocksTx(tx, client, req.Lines)
		if err != nil {
			return err
		}

		for _, line := range req.Lines {
			stock := stocks[line.SKU]
			if stock.snap == nil || stock.doc.Available < line.Quantity {
				available := int64(0)
				if stock.snap != nil {
					available = stock.doc.Available
				}
				return repositories.NewInventoryError(
					repositories.InventoryErrorInsufficientStock,
					fmt.Sprintf("sku %s has %d of %d requested", line.SKU, available, line.Quantity),
					nil,
				)
			}
		}
		for _, line := range req.Lines {
			stock := stocks[line.SKU]
			if err := tx.Update(stock.snap.Ref, []firestore.Update{
				{Path: "available", Value: stock.doc.Available - line.Quantity},
				{Path: "updatedAt", Value: now},
			}); err != nil {
				return err
			}
		}

		orderRef := client.Collection(orderCollection).Doc(orderID)
		if err := tx.Create(orderRef, newOrderDocument(req.Order)); err != nil {
			return err
		}
		return tx.Create(keyRef, orderKeyDocument{
			Key:       key,
			OrderID:   orderID,
			CreatedAt: now,
		})
	})
	if err != nil {
		var dup *repositories.DuplicateOrderError
		if errors.As(err, &dup) {
			return domain.Order{}, dup
		}
		var inv *repositories.InventoryError
		if errors.As(err, &inv) {
			return domain.Order{}, inv
		}
		return domain.Order{}, pfirestore.WrapError("orders.create", err)
	}
	return req.Order, nil
}

// FindByID loads the order document.
func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	if r == nil || r.base == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	id := strings.TrimSpace(orderID)
	if id == "" {
		return domain.Order{}, errors.New("order repository: order id is required")
	}
	doc, err := r.base.Get(ctx, id)
	if err != nil {
		return domain.Order{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

// FindByIdempotencyKey resolves the order created from the key, if any.
func (r *OrderRepository) FindByIdempotencyKey(ctx context.Context, key string) (domain.Order, error) {
	if r == nil || r.provider == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	trimmed := strings.TrimSpace(key)
	if trimmed == "" {
		return domain.Order{}, errors.New("order repository: idempotency key is required")
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return domain.Order{}, err
	}
	snap, err := client.Collection(orderKeyCollection).Doc(orderKeyDocID(trimmed)).Get(ctx)
	if err != nil {
		return domain.Order{}, pfirestore.WrapError("orders.findByKey", err)
	}
	var claim orderKeyDocument
	if err := snap.DataTo(&claim); err != nil {
		return domain.Order{}, fmt.Errorf("decode order key %s: %w", snap.Ref.ID, err)
	}
	return r.FindByID(ctx, claim.OrderID)
}

// List pages through a user's orders, newest first.
func (r *OrderRepository) List(ctx context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	if r == nil || r.base == nil {
		return domain.CursorPage[domain.Order]{}, errors.New("order repository not initialised")
	}
	userID := strings.TrimSpace(filter.UserID)
	if userID == "" {
		return domain.CursorPage[domain.Order]{}, errors.New("order repository: user id is required")
	}

	limit := filter.Pagination.PageSize
	if limit < 0 {
		limit = 0
	}
	fetchLimit := 0
	if limit > 0 {
		fetchLimit = limit + 1
	}

	var tokenTime time.Time
	var tokenID string
	if token := strings.TrimSpace(filter.Pagination.PageToken); token != "" {
		var err error
		tokenTime, tokenID, err = decodeOrderToken(token)
		if err != nil {
			return domain.CursorPage[domain.Order]{}, fmt.Errorf("orders.list: invalid page token: %w", err)
		}
	}

	docs, err := r.base.Query(ctx, func(query firestore.Query) firestore.Query {
		query = query.Where("userId", "==", userID)
		if len(filter.Status) > 0 {
			statuses := make([]string, 0, len(filter.Status))
			for _, s := range filter.Status {
				statuses = append(statuses, string(s))
			}
			query = query.Where("status", "in", statuses)
		}
		query = query.OrderBy("createdAt", firestore.Desc).OrderBy(firestore.DocumentID, firestore.Desc)
		if tokenID != "" {
			query = query.StartAfter(tokenTime, tokenID)
		}
		if fetchLimit > 0 {
			query = query.Limit(fetchLimit)
		}
		return query
	})
	if err != nil {
		return domain.CursorPage[domain.Order]{}, err
	}

	nextToken := ""
	if fetchLimit > 0 && len(docs) == fetchLimit {
		last := docs[len(docs)-1]
		nextToken = encodeOrderToken(last.Data.CreatedAt, last.ID)
		docs = docs[:len(docs)-1]
	}

	items := make([]domain.Order, 0, len(docs))
	for _, doc := range docs {
		items = append(items, doc.Data.toDomain(doc.ID))
	}
	return domain.CursorPage[domain.Order]{
		Items:         items,
		NextPageToken: nextToken,
	}, nil
}

// UpdateStatus transitions the order and applies any restock credits in the
// same transaction.
func (r *OrderRepository) UpdateStatus(ctx context.Context, orderID string, orderStatus domain.OrderStatus, update repositories.OrderStatusUpdate) (domain.Order, error) {
	if r == nil || r.base == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	id := strings.TrimSpace(orderID)
	if id == "" {
		return domain.Order{}, errors.New("order repository: order id is required")
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return domain.Order{}, err
	}

	now := update.Now.UTC()
	if now.IsZero() {
		now = time.Now().UTC()
	}

	var saved domain.Order
	err = r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		orderRef := client.Collection(orderCollection).Doc(id)
		snap, err := tx.Get(orderRef)
		if err != nil {
			return err
		}
		var doc orderDocument
		if err := snap.DataTo(&doc); err != nil {
			return fmt.Errorf("decode order %s: %w", snap.Ref.ID, err)
		}

		stocks, err := r.inventory.readStocksTx(tx, client, update.Restock)
		if err != nil {
			return err
		}

		doc.Status = string(orderStatus)
		doc.UpdatedAt = now
		if update.CanceledAt != nil {
			t := update.CanceledAt.UTC()
			doc.CanceledAt = &t
		}
		if update.CancelReason != nil {
			doc.CancelReason = strings.TrimSpace(*update.CancelReason)
		}
		if update.PaymentState != nil {
			doc.Payment.State = string(*update.PaymentState)
		}
		if update.CapturedAt != nil {
			t := update.CapturedAt.UTC()
			doc.Payment.CapturedAt = &t
		}

		if err := tx.Set(orderRef, doc); err != nil {
			return err
		}

		for _, line := range update.Restock {
			stock := stocks[line.SKU]
			if stock.snap == nil {
				// The SKU was retired after the sale; nothing to credit.
				continue
			}
			if err := tx.Update(stock.snap.Ref, []firestore.Update{
				{Path: "available", Value: stock.doc.Available + line.Quantity},
				{Path: "updatedAt", Value: now},
			}); err != nil {
				return err
			}
		}

		saved = doc.toDomain(id)
		return nil
	})
	if err != nil {
		return domain.Order{}, pfirestore.WrapError("orders.updateStatus", err)
	}
	return saved, nil
}

func orderKeyDocID(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

func encodeOrderToken(createdAt time.Time, docID string) string {
	payload := fmt.Sprintf("%s|%s", createdAt.UTC().Format(time.RFC3339Nano), docID)
	return base64.RawURLEncoding.EncodeToString([]byte(payload))
}

func decodeOrderToken(token string) (time.Time, string, error) {
	data, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return time.Time{}, "", err
	}
	parts := strings.SplitN(string(data), "|", 2)
	if len(parts) != 2 {
		return time.Time{}, "", errors.New("invalid token format")
	}
	ts, err := time.Parse(time.RFC3339Nano, parts[0])
	if err != nil {
		return time.Time{}, "", err
	}
	return ts, parts[1], nil
}

type orderKeyDocument struct {
	Key       string    `firestore:"key"`
	OrderID   string    `firestore:"orderId"`
	CreatedAt time.Time `firestore:"createdAt"`
}

type orderDocument struct {
	OrderNumber    string               `firestore:"orderNumber"`
	UserID         string               `firestore:"userId,omitempty"`
	CheckoutRef    string               `firestore:"checkoutRef,omitempty"`
	IdempotencyKey string               `firestore:"idempotencyKey"`
	Status         string               `firestore:"status"`
	Currency       string               `firestore:"currency"`
	Totals         orderTotalsDocument  `firestore:"totals"`
	Items          []orderItemDocument  `firestore:"items"`
	Shipping       addressDocument      `firestore:"shippingAddress"`
	ContactEmail   string               `firestore:"contactEmail,omitempty"`
	ContactPhone   string               `firestore:"contactPhone,omitempty"`
	DeliveryNote   string               `firestore:"deliveryNote,omitempty"`
	Payment        orderPaymentDocument `firestore:"payment"`
	Metadata       map[string]any       `firestore:"metadata,omitempty"`
	CreatedAt      time.Time            `firestore:"createdAt"`
	UpdatedAt      time.Time            `firestore:"updatedAt"`
	PlacedAt       time.Time            `firestore:"placedAt"`
	CanceledAt     *time.Time           `firestore:"canceledAt,omitempty"`
	CancelReason   string               `firestore:"cancelReason,omitempty"`
}

type orderTotalsDocument struct {
	Subtotal int64 `firestore:"subtotal"`
	Tax      int64 `firestore:"tax"`
	Shipping int64 `firestore:"shipping"`
	Total    int64 `firestore:"total"`
}

type orderItemDocument struct {
	ProductRef string `firestore:"productRef,omitempty"`
	SKU        string `firestore:"sku"`
	Title      string `firestore:"title,omitempty"`
	Quantity   int    `firestore:"quantity"`
	UnitPrice  int64  `firestore:"unitPrice"`
	Total      int64  `firestore:"total"`
}

type orderPaymentDocument struct {
	Method           string     `firestore:"method"`
	State            string     `firestore:"state"`
	GatewayReference string     `firestore:"gatewayReference,omitempty"`
	PaymentID        string     `firestore:"paymentId,omitempty"`
	Amount           int64      `firestore:"amount"`
	Currency         string     `firestore:"currency"`
	CapturedAt       *time.Time `firestore:"capturedAt,omitempty"`
}

func newOrderDocument(order domain.Order) orderDocument {
	items := make([]orderItemDocument, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, orderItemDocument{
			ProductRef: item.ProductRef,
			SKU:        item.SKU,
			Title:      item.Title,
			Quantity:   item.Quantity,
			UnitPrice:  item.UnitPrice,
			Total:      item.Total,
		})
	}

	doc := orderDocument{
		OrderNumber:    order.OrderNumber,
		UserID:         order.UserID,
		CheckoutRef:    order.CheckoutRef,
		IdempotencyKey: order.IdempotencyKey,
		Status:         string(order.Status),
		Currency:       order.Currency,
		Totals: orderTotalsDocument{
			Subtotal: order.Totals.Subtotal,
			Tax:      order.Totals.Tax,
			Shipping: order.Totals.Shipping,
			Total:    order.Totals.Total,
		},
		Items: items,
		Shipping: addressDocument{
			FullName:   order.ShippingAddress.FullName,
			Line1:      order.ShippingAddress.Line1,
			Line2:      order.ShippingAddress.Line2,
			City:       order.ShippingAddress.City,
			State:      order.ShippingAddress.State,
			PostalCode: order.ShippingAddress.PostalCode,
			Country:    order.ShippingAddress.Country,
			Phone:      order.ShippingAddress.Phone,
		},
		ContactEmail: order.Contact.Email,
		ContactPhone: order.Contact.Phone,
		DeliveryNote: order.DeliveryNote,
		Payment: orderPaymentDocument{
			Method:           string(order.Payment.Method),
			State:            string(order.Payment.State),
			GatewayReference: order.Payment.GatewayReference,
			PaymentID:        order.Payment.PaymentID,
			Amount:           order.Payment.Amount,
			Currency:         order.Payment.Currency,
			CapturedAt:       order.Payment.CapturedAt,
		},
		Metadata:   cloneAnyMap(order.Metadata),
		CreatedAt:  order.CreatedAt.UTC(),
		UpdatedAt:  order.UpdatedAt.UTC(),
		PlacedAt:   order.PlacedAt.UTC(),
		CanceledAt: order.CanceledAt,
	}
	if order.CancelReason != nil {
		doc.CancelReason = *order.CancelReason
	}
	return doc
}

func (d orderDocument) toDomain(id string) domain.Order {
	items := make([]domain.OrderLineItem, 0, len(d.Items))
	for _, item := range d.Items {
		items = append(items, domain.OrderLineItem{
			ProductRef: item.ProductRef,
			SKU:        item.SKU,
			Title:      item.Title,
			Quantity:   item.Quantity,
			UnitPrice:  item.UnitPrice,
			Total:      item.Total,
		})
	}

	order := domain.Order{
		ID:             id,
		OrderNumber:    d.OrderNumber,
		UserID:         d.UserID,
		CheckoutRef:    d.CheckoutRef,
		IdempotencyKey: d.IdempotencyKey,
		Status:         domain.OrderStatus(d.Status),
		Currency:       d.Currency,
		Totals: domain.OrderTotals{
			Subtotal: d.Totals.Subtotal,
			Tax:      d.Totals.Tax,
			Shipping: d.Totals.Shipping,
			Total:    d.Totals.Total,
		},
		Items:           items,
		ShippingAddress: d.Shipping.toDomain(""),
		Contact:         domain.Contact{Email: d.ContactEmail, Phone: d.ContactPhone},
		DeliveryNote:    d.DeliveryNote,
		Payment: domain.OrderPayment{
			Method:           domain.PaymentMethod(d.Payment.Method),
			State:            domain.PaymentState(d.Payment.State),
			GatewayReference: d.Payment.GatewayReference,
			PaymentID:        d.Payment.PaymentID,
			Amount:           d.Payment.Amount,
			Currency:         d.Payment.Currency,
			CapturedAt:       d.Payment.CapturedAt,
		},
		Metadata:   cloneAnyMap(d.Metadata),
		CreatedAt:  d.CreatedAt,
		UpdatedAt:  d.UpdatedAt,
		PlacedAt:   d.PlacedAt,
		CanceledAt: d.CanceledAt,
	}
	if d.CancelReason != "" {
		reason := d.CancelReason
		order.CancelReason = &reason
	}
	return order
}

var _ repositories.OrderRepository = (*OrderRepository)(nil)
