package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/clovemart/api/internal/domain"
	pfirestore "github.com/clovemart/api/internal/platform/firestore"
	"github.com/clovemart/api/internal/repositories"
)

const cartCollection = "carts"

// CartRepository persists carts in Firestore, one document per owner with the
// lines embedded. Optimistic locking rides on the document update time.
type CartRepository struct {
	base     *pfirestore.BaseRepository[cartDocument]
	provider *pfirestore.Provider
}

// NewCartRepository constructs a Firestore-backed cart repository.
func NewCartRepository(provider *pfirestore.Provider) (*CartRepository, error) {
	if provider == nil {
		return nil, errors.New("cart repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[cartDocument](provider, cartCollection, nil, nil)
	return &CartRepository{
		base:     base,
		provider: provider,
	}, nil
}

// GetCart loads the cart document for the owner.
func (r *CartRepository) GetCart(ctx context.Context, ownerID string) (domain.Cart, error) {
	if r == nil || r.base == nil {
		return domain.Cart{}, errors.New("cart repository not initialised")
	}
	id := strings.TrimSpace(ownerID)
	if id == "" {
		return domain.Cart{}, errors.New("cart repository: owner id is required")
	}

	doc, err := r.base.Get(ctx, id)
	if err != nil {
		return domain.Cart{}, err
	}

	cart := doc.Data.toDomain(doc.ID)
	if !doc.UpdateTime.IsZero() {
		cart.UpdatedAt = doc.UpdateTime
	}
	return cart, nil
}

// UpsertCart writes the cart document. When expectedUpdatedAt is set the write
// carries a last-update-time precondition and loses to concurrent edits.
func (r *CartRepository) UpsertCart(ctx context.Context, cart domain.Cart, expectedUpdatedAt *time.Time) (domain.Cart, error) {
	if r == nil || r.base == nil {
		return domain.Cart{}, errors.New("cart repository not initialised")
	}

	id := strings.TrimSpace(cart.ID)
	if id == "" {
		id = strings.TrimSpace(cart.UserID)
	}
	if id == "" {
		return domain.Cart{}, errors.New("cart repository: cart id is required")
	}

	now := time.Now().UTC()
	if !cart.UpdatedAt.IsZero() {
		now = cart.UpdatedAt.UTC()
	}
	createdAt := cart.CreatedAt.UTC()
	if createdAt.IsZero() {
		createdAt = now
	}

	doc := newCartDocument(cart, createdAt, now)

	if expectedUpdatedAt == nil || expectedUpdatedAt.IsZero() {
		result, err := r.base.Set(ctx, id, doc)
		if err != nil {
			return domain.Cart{}, err
		}
		saved := doc.toDomain(id)
		saved.UpdatedAt = result.UpdateTime
		return saved, nil
	}

	// Update-with-precondition needs a document reference; Set has no
	// precondition variant for last update time.
	ref, err := r.base.DocumentRef(ctx, id)
	if err != nil {
		return domain.Cart{}, err
	}
	_, err = ref.Update(ctx, []firestore.Update{
		{Path: "currency", Value: doc.Currency},
		{Path: "items", Value: doc.Items},
		{Path: "metadata", Value: metadataUpdateValue(doc.Metadata)},
		{Path: "updatedAt", Value: doc.UpdatedAt},
	}, firestore.LastUpdateTime(expectedUpdatedAt.UTC()))
	if err != nil {
		return domain.Cart{}, pfirestore.WrapError("carts.upsert", err)
	}

	fresh, err := r.base.Get(ctx, id)
	if err != nil {
		return domain.Cart{}, err
	}
	saved := fresh.Data.toDomain(fresh.ID)
	if !fresh.UpdateTime.IsZero() {
		saved.UpdatedAt = fresh.UpdateTime
	}
	return saved, nil
}

// DeleteCart removes the owner's cart document.
func (r *CartRepository) DeleteCart(ctx context.Context, ownerID string) error {
	if r == nil || r.base == nil {
		return errors.New("cart repository not initialised")
	}
	id := strings.TrimSpace(ownerID)
	if id == "" {
		return errors.New("cart repository: owner id is required")
	}
	ref, err := r.base.DocumentRef(ctx, id)
	if err != nil {
		return err
	}
	if _, err := ref.Delete(ctx); err != nil {
		return pfirestore.WrapError("carts.delete", err)
	}
	return nil
}

type cartDocument struct {
	UserID    string             `firestore:"userId,omitempty"`
	Currency  string             `firestore:"currency"`
	Items     []cartItemDocument `firestore:"items"`
	Metadata  map[string]any     `firestore:"metadata,omitempty"`
	CreatedAt time.Time          `firestore:"createdAt"`
	UpdatedAt time.Time          `firestore:"updatedAt"`
}

type cartItemDocument struct {
	ID        string     `firestore:"id"`
	ProductID string     `firestore:"productId,omitempty"`
	SKU       string     `firestore:"sku"`
	Title     string     `firestore:"title,omitempty"`
	Quantity  int        `firestore:"quantity"`
	UnitPrice int64      `firestore:"unitPrice"`
	Currency  string     `firestore:"currency,omitempty"`
	AddedAt   time.Time  `firestore:"addedAt"`
	UpdatedAt *time.Time `firestore:"updatedAt,omitempty"`
}

func newCartDocument(cart domain.Cart, createdAt, updatedAt time.Time) cartDocument {
	items := make([]cartItemDocument, 0, len(cart.Items))
	for _, item := range cart.Items {
		items = append(items, cartItemDocument{
			ID:        item.ID,
			ProductID: item.ProductID,
			SKU:       item.SKU,
			Title:     item.Title,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
			Currency:  strings.ToUpper(strings.TrimSpace(item.Currency)),
			AddedAt:   item.AddedAt.UTC(),
			UpdatedAt: item.UpdatedAt,
		})
	}
	return cartDocument{
		UserID:    strings.TrimSpace(cart.UserID),
		Currency:  strings.ToUpper(strings.TrimSpace(cart.Currency)),
		Items:     items,
		Metadata:  cloneAnyMap(cart.Metadata),
		CreatedAt: createdAt,
		UpdatedAt: updatedAt,
	}
}

func (d cartDocument) toDomain(id string) domain.Cart {
	items := make([]domain.CartItem, 0, len(d.Items))
	for _, item := range d.Items {
		items = append(items, domain.CartItem{
			ID:        item.ID,
			ProductID: item.ProductID,
			SKU:       item.SKU,
			Title:     item.Title,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
			Currency:  item.Currency,
			AddedAt:   item.AddedAt,
			UpdatedAt: item.UpdatedAt,
		})
	}
	userID := d.UserID
	if userID == "" {
		userID = id
	}
	return domain.Cart{
		ID:        id,
		UserID:    userID,
		Currency:  d.Currency,
		Items:     items,
		Metadata:  cloneAnyMap(d.Metadata),
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
}

func metadataUpdateValue(metadata map[string]any) any {
	if len(metadata) == 0 {
		return firestore.Delete
	}
	return metadata
}

func cloneAnyMap(values map[string]any) map[string]any {
	if len(values) == 0 {
		return nil
	}
	out := make(map[string]any, len(values))
	for k, v := range values {
		out[k] = v
	}
	return out
}

var _ repositories.CartRepository = (*CartRepository)(nil)
