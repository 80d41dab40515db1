package firestore

import (
	"context"
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

const inventoryCollection = "inventory"

// InventoryRepository manages per-SKU stock counters, one document per SKU
// keyed by the SKU itself.
type InventoryRepository struct {
	provider *pfirestore.Provider
	stocks   *pfirestore.BaseRepository[stockDocument]
}

// NewInventoryRepository constructs a Firestore-backed inventory repository.
func NewInventoryRepository(provider *pfirestore.Provider) (*InventoryRepository, error) {
	if provider == nil {
		return nil, errors.New("inventory repository requires firestore provider")
	}
	stocks := pfirestore.NewBaseRepository[stockDocument](provider, inventoryCollection, nil, nil)
	return &InventoryRepository{provider: provider, stocks: stocks}, nil
}

// GetStock loads the stock counter for the SKU.
func (r *InventoryRepository) GetStock(ctx context.Context, sku string) (domain.StockRecord, error) {
	if r == nil || r.stocks == nil {
		return domain.StockRecord{}, errors.New("inventory repository not initialised")
	}
	id := strings.TrimSpace(sku)
	if id == "" {
		return domain.StockRecord{}, errors.New("inventory repository: sku is required")
	}

	doc, err := r.stocks.Get(ctx, id)
	if err != nil {
		if repoErr, ok := err.(*pfirestore.Error); ok && repoErr.IsNotFound() {
			return domain.StockRecord{}, repositories.NewInventoryError(
				repositories.InventoryErrorStockNotFound,
				fmt.Sprintf("stock %s not found", id), err)
		}
		return domain.StockRecord{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

// AdjustStock applies the delta to the SKU's counter. A negative delta that
// would drop availability below zero fails with an insufficient-stock error.
// A positive delta on an unknown SKU seeds the counter.
func (r *InventoryRepository) AdjustStock(ctx context.Context, sku string, delta int64, now time.Time) (domain.StockRecord, error) {
	if r == nil || r.provider == nil {
		return domain.StockRecord{}, errors.New("inventory repository not initialised")
	}
	id := strings.TrimSpace(sku)
	if id == "" {
		return domain.StockRecord{}, errors.New("inventory repository: sku is required")
	}

	ts := now.UTC()
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	var updated domain.StockRecord
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref, err := r.stocks.DocumentRef(ctx, id)
		if err != nil {
			return err
		}

		var doc stockDocument
		snap, err := tx.Get(ref)
		switch status.Code(err) {
		case codes.NotFound:
			if delta < 0 {
				return repositories.NewInventoryError(
					repositories.InventoryErrorStockNotFound,
					fmt.Sprintf("stock %s not found", id), err)
			}
		case codes.OK:
			if err := snap.DataTo(&doc); err != nil {
				return fmt.Errorf("decode inventory stock %s: %w", id, err)
			}
		default:
			return err
		}

		next := doc.Available + delta
		if next < 0 {
			return repositories.NewInventoryError(
				repositories.InventoryErrorInsufficientStock,
				fmt.Sprintf("sku %s has %d, adjustment of %d would go negative", id, doc.Available, delta),
				nil)
		}
		doc.SKU = id
		doc.Available = next
		doc.UpdatedAt = ts

		if err := tx.Set(ref, doc); err != nil {
			return err
		}
		updated = doc.toDomain(id)
		return nil
	})
	if err != nil {
		return domain.StockRecord{}, wrapInventoryError("inventory.adjust", err)
	}
	return updated, nil
}

// stockLookup pairs a stock snapshot with its decoded document. A nil snap
// means the SKU has no stock record.
type stockLookup struct {
	snap *firestore.DocumentSnapshot
	doc  stockDocument
}

// readStocksTx fetches the stock documents for the lines inside an existing
// transaction. All reads in a Firestore transaction must happen before any
// write, so callers collect lookups up front and apply updates afterwards.
func (r *InventoryRepository) readStocksTx(tx *firestore.Transaction, client *firestore.Client, lines []repositories.StockLine) (map[string]stockLookup, error) {
	stocks := make(map[string]stockLookup, len(lines))
	for _, line := range lines {
		sku := strings.TrimSpace(line.SKU)
		if sku == "" {
			return nil, errors.New("inventory repository: sku is required")
		}
		if _, seen := stocks[sku]; seen {
			continue
		}
		snap, err := tx.Get(client.Collection(inventoryCollection).Doc(sku))
		if status.Code(err) == codes.NotFound {
			stocks[sku] = stockLookup{}
			continue
		}
		if err != nil {
			return nil, err
		}
		var doc stockDocument
		if err := snap.DataTo(&doc); err != nil {
			return nil, fmt.Errorf("decode inventory stock %s: %w", sku, err)
		}
		stocks[sku] = stockLookup{snap: snap, doc: doc}
	}
	return stocks, nil
}

type stockDocument struct {
	SKU       string    `firestore:"sku"`
	Available int64     `firestore:"available"`
	UpdatedAt time.Time `firestore:"updatedAt"`
}

func (s stockDocument) toDomain(id string) domain.StockRecord {
	return domain.StockRecord{
		SKU:       id,
		Available: s.Available,
		UpdatedAt: s.UpdatedAt,
	}
}

func wrapInventoryError(op string, err error) error {
	if err == nil {
		return nil
	}
	var invErr *repositories.InventoryError
	if errors.As(err, &invErr) {
		if invErr.Op == "" {
			invErr.Op = op
		}
		return invErr
	}
	return pfirestore.WrapError(op, err)
}

var _ repositories.InventoryRepository = (*InventoryRepository)(nil)
