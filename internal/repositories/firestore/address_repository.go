package firestore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/clovemart/api/internal/domain"
	pfirestore "github.com/clovemart/api/internal/platform/firestore"
	"github.com/clovemart/api/internal/repositories"
)

const addressCollectionPattern = "users/%s/addresses"

// AddressRepository persists user addresses in Firestore.
type AddressRepository struct {
	provider *pfirestore.Provider
}

// NewAddressRepository constructs a Firestore-backed address repository.
func NewAddressRepository(provider *pfirestore.Provider) (*AddressRepository, error) {
	if provider == nil {
		return nil, errors.New("address repository requires firestore provider")
	}
	return &AddressRepository{provider: provider}, nil
}

// List returns all addresses for the specified user ordered by most recent update.
func (r *AddressRepository) List(ctx context.Context, userID string) ([]domain.Address, error) {
	coll, err := r.collection(ctx, userID)
	if err != nil {
		return nil, err
	}

	iter := coll.OrderBy("updatedAt", firestore.Desc).Documents(ctx)
	defer iter.Stop()

	var results []domain.Address
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, pfirestore.WrapError("addresses.list", err)
		}
		addr, err := decodeAddressDocument(snap)
		if err != nil {
			return nil, err
		}
		results = append(results, addr)
	}
	return results, nil
}

// Upsert creates or updates an address. New addresses that normalise to an
// existing one collapse onto the stored document instead of duplicating it.
func (r *AddressRepository) Upsert(ctx context.Context, userID string, addressID *string, addr domain.Address) (domain.Address, error) {
	coll, err := r.collection(ctx, userID)
	if err != nil {
		return domain.Address{}, err
	}

	hash := computeAddressHash(addr)

	var saved domain.Address
	err = r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		var docRef *firestore.DocumentRef
		var existingSnap *firestore.DocumentSnapshot

		if addressID != nil {
			if id := strings.TrimSpace(*addressID); id != "" {
				docRef = coll.Doc(id)
			}
		}

		if docRef == nil {
			query := coll.Where("hash", "==", hash).Limit(1)
			snaps, err := tx.Documents(query).GetAll()
			if err != nil {
				if status.Code(err) != codes.NotFound {
					return err
				}
			}
			if len(snaps) > 0 {
				existingSnap = snaps[0]
				docRef = existingSnap.Ref
			}
		}

		if docRef == nil {
			docRef = coll.NewDoc()
		}

		var doc addressDocument
		snapshot, err := tx.Get(docRef)
		switch status.Code(err) {
		case codes.NotFound:
			// new document, leave doc zeroed
		case codes.OK:
			if existingSnap == nil {
				existingSnap = snapshot
			}
		default:
			return err
		}

		if existingSnap != nil {
			if err := existingSnap.DataTo(&doc); err != nil {
				return fmt.Errorf("decode address %s: %w", existingSnap.Ref.ID, err)
			}
		}

		now := time.Now().UTC()
		if doc.CreatedAt.IsZero() {
			if !addr.CreatedAt.IsZero() {
				doc.CreatedAt = addr.CreatedAt.UTC()
			} else {
				doc.CreatedAt = now
			}
		}
		doc.UpdatedAt = now
		doc.FullName = strings.TrimSpace(addr.FullName)
		doc.Line1 = strings.TrimSpace(addr.Line1)
		doc.Line2 = strings.TrimSpace(addr.Line2)
		doc.City = strings.TrimSpace(addr.City)
		doc.State = strings.TrimSpace(addr.State)
		doc.PostalCode = strings.TrimSpace(addr.PostalCode)
		doc.Country = strings.ToUpper(strings.TrimSpace(addr.Country))
		doc.Phone = strings.TrimSpace(addr.Phone)
		doc.IsDefault = addr.IsDefault
		doc.Hash = hash

		if err := tx.Set(docRef, doc); err != nil {
			return err
		}

		if doc.IsDefault {
			if err := r.clearDefault(ctx, tx, coll, docRef.ID); err != nil {
				return err
			}
		}

		saved = doc.toDomain(docRef.ID)
		return nil
	})
	if err != nil {
		return domain.Address{}, pfirestore.WrapError("addresses.upsert", err)
	}
	return saved, nil
}

// Delete removes the specified address document.
func (r *AddressRepository) Delete(ctx context.Context, userID string, addressID string) error {
	coll, err := r.collection(ctx, userID)
	if err != nil {
		return err
	}
	id := strings.TrimSpace(addressID)
	if id == "" {
		return errors.New("address repository: address id is required")
	}
	if _, err := coll.Doc(id).Delete(ctx); err != nil {
		return pfirestore.WrapError("addresses.delete", err)
	}
	return nil
}

func (r *AddressRepository) Get(ctx context.Context, userID string, addressID string) (domain.Address, error) {
	coll, err := r.collection(ctx, userID)
	if err != nil {
		return domain.Address{}, err
	}
	id := strings.TrimSpace(addressID)
	if id == "" {
		return domain.Address{}, errors.New("address repository: address id is required")
	}
	snap, err := coll.Doc(id).Get(ctx)
	if err != nil {
		return domain.Address{}, pfirestore.WrapError("addresses.get", err)
	}
	return decodeAddressDocument(snap)
}

func (r *AddressRepository) HasAny(ctx context.Context, userID string) (bool, error) {
	coll, err := r.collection(ctx, userID)
	if err != nil {
		return false, err
	}
	iter := coll.Limit(1).Documents(ctx)
	defer iter.Stop()
	if _, err := iter.Next(); err != nil {
		if errors.Is(err, iterator.Done) {
			return false, nil
		}
		if status.Code(err) == codes.NotFound {
			return false, nil
		}
		return false, pfirestore.WrapError("addresses.hasAny", err)
	}
	return true, nil
}

// SetDefault marks the address as the default and demotes every other one in
// the same transaction.
func (r *AddressRepository) SetDefault(ctx context.Context, userID string, addressID string) (domain.Address, error) {
	coll, err := r.collection(ctx, userID)
	if err != nil {
		return domain.Address{}, err
	}
	id := strings.TrimSpace(addressID)
	if id == "" {
		return domain.Address{}, errors.New("address repository: address id is required")
	}

	var saved domain.Address
	err = r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		docRef := coll.Doc(id)
		snap, err := tx.Get(docRef)
		if err != nil {
			return err
		}
		var doc addressDocument
		if err := snap.DataTo(&doc); err != nil {
			return fmt.Errorf("decode address %s: %w", snap.Ref.ID, err)
		}

		now := time.Now().UTC()
		doc.IsDefault = true
		doc.UpdatedAt = now
		if err := tx.Update(docRef, []firestore.Update{
			{Path: "isDefault", Value: true},
			{Path: "updatedAt", Value: now},
		}); err != nil {
			return err
		}

		if err := r.clearDefault(ctx, tx, coll, docRef.ID); err != nil {
			return err
		}

		saved = doc.toDomain(docRef.ID)
		return nil
	})
	if err != nil {
		return domain.Address{}, pfirestore.WrapError("addresses.setDefault", err)
	}
	return saved, nil
}

func (r *AddressRepository) collection(ctx context.Context, userID string) (*firestore.CollectionRef, error) {
	if r == nil || r.provider == nil {
		return nil, errors.New("address repository not initialised")
	}
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return nil, errors.New("address repository: user id is required")
	}
	client, err := r.provider.Client(ctx)
	if err != nil {
		return nil, err
	}
	path := fmt.Sprintf(addressCollectionPattern, uid)
	return client.Collection(path), nil
}

func (r *AddressRepository) clearDefault(ctx context.Context, tx *firestore.Transaction, coll *firestore.CollectionRef, currentID string) error {
	query := coll.Where("isDefault", "==", true).OrderBy("updatedAt", firestore.Desc).Limit(10)
	snaps, err := tx.Documents(query).GetAll()
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil
		}
		return err
	}
	for _, snap := range snaps {
		if snap.Ref.ID == currentID {
			continue
		}
		if err := tx.Update(snap.Ref, []firestore.Update{{Path: "isDefault", Value: false}}); err != nil {
			return err
		}
	}
	return nil
}

func decodeAddressDocument(snapshot *firestore.DocumentSnapshot) (domain.Address, error) {
	var doc addressDocument
	if err := snapshot.DataTo(&doc); err != nil {
		return domain.Address{}, fmt.Errorf("decode address %s: %w", snapshot.Ref.ID, err)
	}
	return doc.toDomain(snapshot.Ref.ID), nil
}

type addressDocument struct {
	FullName   string    `firestore:"fullName"`
	Line1      string    `firestore:"line1"`
	Line2      string    `firestore:"line2,omitempty"`
	City       string    `firestore:"city"`
	State      string    `firestore:"state,omitempty"`
	PostalCode string    `firestore:"postalCode"`
	Country    string    `firestore:"country"`
	Phone      string    `firestore:"phone,omitempty"`
	IsDefault  bool      `firestore:"isDefault"`
	Hash       string    `firestore:"hash"`
	CreatedAt  time.Time `firestore:"createdAt"`
	UpdatedAt  time.Time `firestore:"updatedAt"`
}

func (d addressDocument) toDomain(id string) domain.Address {
	return domain.Address{
		ID:         id,
		FullName:   d.FullName,
		Line1:      d.Line1,
		Line2:      d.Line2,
		City:       d.City,
		State:      d.State,
		PostalCode: d.PostalCode,
		Country:    d.Country,
		Phone:      d.Phone,
		IsDefault:  d.IsDefault,
		CreatedAt:  d.CreatedAt,
		UpdatedAt:  d.UpdatedAt,
	}
}

func computeAddressHash(addr domain.Address) string {
	parts := []string{
		strings.ToLower(strings.TrimSpace(addr.FullName)),
		strings.ToLower(strings.TrimSpace(addr.Line1)),
		strings.ToLower(strings.TrimSpace(addr.Line2)),
		strings.ToLower(strings.TrimSpace(addr.City)),
		strings.ToLower(strings.TrimSpace(addr.State)),
		strings.ToLower(strings.TrimSpace(addr.PostalCode)),
		strings.ToLower(strings.TrimSpace(addr.Country)),
	}
	input := strings.Join(parts, "|")
	sum := sha256.Sum256([]byte(input))
	return hex.EncodeToString(sum[:])
}

// Ensure interface compliance.
var _ repositories.AddressRepository = (*AddressRepository)(nil)
