package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/clovemart/api/internal/domain"
	pfirestore "github.com/clovemart/api/internal/platform/firestore"
	"github.com/clovemart/api/internal/repositories"
)

const checkoutCollection = "checkouts"

// CheckoutRepository persists checkout sessions in Firestore with a revision
// counter for optimistic locking.
type CheckoutRepository struct {
	base     *pfirestore.BaseRepository[checkoutDocument]
	provider *pfirestore.Provider
}

// NewCheckoutRepository constructs a Firestore-backed checkout repository.
func NewCheckoutRepository(provider *pfirestore.Provider) (*CheckoutRepository, error) {
	if provider == nil {
		return nil, errors.New("checkout repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[checkoutDocument](provider, checkoutCollection, nil, nil)
	return &CheckoutRepository{
		base:     base,
		provider: provider,
	}, nil
}

// Insert writes a new session document. The session id must be unused.
func (r *CheckoutRepository) Insert(ctx context.Context, session domain.CheckoutSession) error {
	if r == nil || r.base == nil {
		return errors.New("checkout repository not initialised")
	}
	id := strings.TrimSpace(session.ID)
	if id == "" {
		return errors.New("checkout repository: session id is required")
	}

	ref, err := r.base.DocumentRef(ctx, id)
	if err != nil {
		return err
	}
	if _, err := ref.Create(ctx, newCheckoutDocument(session)); err != nil {
		return pfirestore.WrapError("checkouts.insert", err)
	}
	return nil
}

// Update writes the session only when the stored revision equals
// expectedRevision, bumping the revision on success.
func (r *CheckoutRepository) Update(ctx context.Context, session domain.CheckoutSession, expectedRevision int64) (domain.CheckoutSession, error) {
	if r == nil || r.base == nil {
		return domain.CheckoutSession{}, errors.New("checkout repository not initialised")
	}
	id := strings.TrimSpace(session.ID)
	if id == "" {
		return domain.CheckoutSession{}, errors.New("checkout repository: session id is required")
	}

	var saved domain.CheckoutSession
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref, err := r.base.DocumentRef(ctx, id)
		if err != nil {
			return err
		}
		snap, err := tx.Get(ref)
		if err != nil {
			return err
		}
		var stored checkoutDocument
		if err := snap.DataTo(&stored); err != nil {
			return err
		}
		if stored.Revision != expectedRevision {
			return status.Errorf(codes.FailedPrecondition,
				"checkout %s revision %d does not match expected %d", id, stored.Revision, expectedRevision)
		}

		session.Revision = expectedRevision + 1
		doc := newCheckoutDocument(session)
		if err := tx.Set(ref, doc); err != nil {
			return err
		}
		saved = doc.toDomain(id)
		return nil
	})
	if err != nil {
		return domain.CheckoutSession{}, pfirestore.WrapError("checkouts.update", err)
	}
	return saved, nil
}

// FindByID loads a session document.
func (r *CheckoutRepository) FindByID(ctx context.Context, checkoutID string) (domain.CheckoutSession, error) {
	if r == nil || r.base == nil {
		return domain.CheckoutSession{}, errors.New("checkout repository not initialised")
	}
	id := strings.TrimSpace(checkoutID)
	if id == "" {
		return domain.CheckoutSession{}, errors.New("checkout repository: session id is required")
	}
	doc, err := r.base.Get(ctx, id)
	if err != nil {
		return domain.CheckoutSession{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

type checkoutDocument struct {
	UserID          string                   `firestore:"userId,omitempty"`
	State           string                   `firestore:"state"`
	Snapshot        checkoutSnapshotDocument `firestore:"snapshot"`
	Breakdown       *breakdownDocument       `firestore:"breakdown,omitempty"`
	ShippingAddress *addressDocument         `firestore:"shippingAddress,omitempty"`
	ContactEmail    string                   `firestore:"contactEmail,omitempty"`
	ContactPhone    string                   `firestore:"contactPhone,omitempty"`
	DeliveryNote    string                   `firestore:"deliveryNote,omitempty"`
	PaymentMethod   string                   `firestore:"paymentMethod,omitempty"`
	Attempt         *attemptDocument         `firestore:"attempt,omitempty"`
	OrderID         string                   `firestore:"orderId,omitempty"`
	Revision        int64                    `firestore:"revision"`
	CreatedAt       time.Time                `firestore:"createdAt"`
	UpdatedAt       time.Time                `firestore:"updatedAt"`
}

type checkoutSnapshotDocument struct {
	CartID        string                 `firestore:"cartId"`
	Currency      string                 `firestore:"currency"`
	Items         []snapshotItemDocument `firestore:"items"`
	CartUpdatedAt time.Time              `firestore:"cartUpdatedAt"`
	TakenAt       time.Time              `firestore:"takenAt"`
}

type snapshotItemDocument struct {
	ProductID string `firestore:"productId,omitempty"`
	SKU       string `firestore:"sku"`
	Title     string `firestore:"title,omitempty"`
	Quantity  int    `firestore:"quantity"`
	UnitPrice int64  `firestore:"unitPrice"`
}

type breakdownDocument struct {
	Currency string `firestore:"currency"`
	Subtotal int64  `firestore:"subtotal"`
	Tax      int64  `firestore:"tax"`
	Shipping int64  `firestore:"shipping"`
	Total    int64  `firestore:"total"`
}

type attemptDocument struct {
	ID               string    `firestore:"id"`
	Method           string    `firestore:"method"`
	GatewayReference string    `firestore:"gatewayReference"`
	ClientSecret     string    `firestore:"clientSecret,omitempty"`
	KeyID            string    `firestore:"keyId,omitempty"`
	Amount           int64     `firestore:"amount"`
	Currency         string    `firestore:"currency"`
	CreatedAt        time.Time `firestore:"createdAt"`
}

func newCheckoutDocument(session domain.CheckoutSession) checkoutDocument {
	items := make([]snapshotItemDocument, 0, len(session.Snapshot.Items))
	for _, item := range session.Snapshot.Items {
		items = append(items, snapshotItemDocument{
			ProductID: item.ProductID,
			SKU:       item.SKU,
			Title:     item.Title,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
		})
	}

	doc := checkoutDocument{
		UserID: session.UserID,
		State:  string(session.State),
		Snapshot: checkoutSnapshotDocument{
			CartID:        session.Snapshot.CartID,
			Currency:      session.Snapshot.Currency,
			Items:         items,
			CartUpdatedAt: session.Snapshot.CartUpdatedAt,
			TakenAt:       session.Snapshot.TakenAt,
		},
		DeliveryNote:  session.DeliveryNote,
		PaymentMethod: string(session.PaymentMethod),
		Revision:      session.Revision,
		CreatedAt:     session.CreatedAt.UTC(),
		UpdatedAt:     session.UpdatedAt.UTC(),
	}

	if session.Breakdown != nil {
		doc.Breakdown = &breakdownDocument{
			Currency: session.Breakdown.Currency,
			Subtotal: session.Breakdown.Subtotal,
			Tax:      session.Breakdown.Tax,
			Shipping: session.Breakdown.Shipping,
			Total:    session.Breakdown.Total,
		}
	}
	if session.ShippingAddress != nil {
		addr := *session.ShippingAddress
		doc.ShippingAddress = &addressDocument{
			FullName:   addr.FullName,
			Line1:      addr.Line1,
			Line2:      addr.Line2,
			City:       addr.City,
			State:      addr.State,
			PostalCode: addr.PostalCode,
			Country:    addr.Country,
			Phone:      addr.Phone,
			CreatedAt:  addr.CreatedAt,
			UpdatedAt:  addr.UpdatedAt,
		}
	}
	if session.Contact != nil {
		doc.ContactEmail = session.Contact.Email
		doc.ContactPhone = session.Contact.Phone
	}
	if session.Attempt != nil {
		doc.Attempt = &attemptDocument{
			ID:               session.Attempt.ID,
			Method:           string(session.Attempt.Method),
			GatewayReference: session.Attempt.GatewayReference,
			ClientSecret:     session.Attempt.ClientSecret,
			KeyID:            session.Attempt.KeyID,
			Amount:           session.Attempt.Amount,
			Currency:         session.Attempt.Currency,
			CreatedAt:        session.Attempt.CreatedAt,
		}
	}
	if session.OrderID != nil {
		doc.OrderID = *session.OrderID
	}
	return doc
}

func (d checkoutDocument) toDomain(id string) domain.CheckoutSession {
	items := make([]domain.SnapshotItem, 0, len(d.Snapshot.Items))
	for _, item := range d.Snapshot.Items {
		items = append(items, domain.SnapshotItem{
			ProductID: item.ProductID,
			SKU:       item.SKU,
			Title:     item.Title,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
		})
	}

	session := domain.CheckoutSession{
		ID:     id,
		UserID: d.UserID,
		State:  domain.CheckoutState(d.State),
		Snapshot: domain.CartSnapshot{
			CartID:        d.Snapshot.CartID,
			Currency:      d.Snapshot.Currency,
			Items:         items,
			CartUpdatedAt: d.Snapshot.CartUpdatedAt,
			TakenAt:       d.Snapshot.TakenAt,
		},
		DeliveryNote:  d.DeliveryNote,
		PaymentMethod: domain.PaymentMethod(d.PaymentMethod),
		Revision:      d.Revision,
		CreatedAt:     d.CreatedAt,
		UpdatedAt:     d.UpdatedAt,
	}

	if d.Breakdown != nil {
		session.Breakdown = &domain.PriceBreakdown{
			Currency: d.Breakdown.Currency,
			Subtotal: d.Breakdown.Subtotal,
			Tax:      d.Breakdown.Tax,
			Shipping: d.Breakdown.Shipping,
			Total:    d.Breakdown.Total,
		}
	}
	if d.ShippingAddress != nil {
		addr := d.ShippingAddress.toDomain("")
		session.ShippingAddress = &addr
	}
	if d.ContactEmail != "" || d.ContactPhone != "" {
		session.Contact = &domain.Contact{Email: d.ContactEmail, Phone: d.ContactPhone}
	}
	if d.Attempt != nil {
		session.Attempt = &domain.PaymentAttempt{
			ID:               d.Attempt.ID,
			Method:           domain.PaymentMethod(d.Attempt.Method),
			GatewayReference: d.Attempt.GatewayReference,
			ClientSecret:     d.Attempt.ClientSecret,
			KeyID:            d.Attempt.KeyID,
			Amount:           d.Attempt.Amount,
			Currency:         d.Attempt.Currency,
			CreatedAt:        d.Attempt.CreatedAt,
		}
	}
	if d.OrderID != "" {
		orderID := d.OrderID
		session.OrderID = &orderID
	}
	return session
}

var _ repositories.CheckoutRepository = (*CheckoutRepository)(nil)
