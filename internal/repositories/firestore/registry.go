package firestore

import (
	"context"
	"errors"

	pfirestore "github.com/clovemart/api/internal/platform/firestore"
	"github.com/clovemart/api/internal/repositories"
)

// Registry bundles the Firestore-backed repositories behind the
// repositories.Registry contract so the container can be handed one value.
type Registry struct {
	provider *pfirestore.Provider

	carts     *CartRepository
	addresses *AddressRepository
	checkouts *CheckoutRepository
	orders    *OrderRepository
	inventory *InventoryRepository
	counters  *CounterRepository
	health    repositories.HealthRepository
}

// NewRegistry constructs every Firestore repository over the shared provider.
// The health repository is injected because its dependency checks reach beyond
// Firestore.
func NewRegistry(provider *pfirestore.Provider, health repositories.HealthRepository) (*Registry, error) {
	if provider == nil {
		return nil, errors.New("registry requires firestore provider")
	}

	carts, err := NewCartRepository(provider)
	if err != nil {
		return nil, err
	}
	addresses, err := NewAddressRepository(provider)
	if err != nil {
		return nil, err
	}
	checkouts, err := NewCheckoutRepository(provider)
	if err != nil {
		return nil, err
	}
	inventory, err := NewInventoryRepository(provider)
	if err != nil {
		return nil, err
	}
	orders, err := NewOrderRepository(provider, inventory)
	if err != nil {
		return nil, err
	}
	counters, err := NewCounterRepository(provider)
	if err != nil {
		return nil, err
	}

	return &Registry{
		provider:  provider,
		carts:     carts,
		addresses: addresses,
		checkouts: checkouts,
		orders:    orders,
		inventory: inventory,
		counters:  counters,
		health:    health,
	}, nil
}

// Close releases the underlying Firestore client.
func (r *Registry) Close(ctx context.Context) error {
	if r == nil || r.provider == nil {
		return nil
	}
	return r.provider.Close(ctx)
}

func (r *Registry) Carts() repositories.CartRepository          { return r.carts }
func (r *Registry) Addresses() repositories.AddressRepository   { return r.addresses }
func (r *Registry) Checkouts() repositories.CheckoutRepository  { return r.checkouts }
func (r *Registry) Orders() repositories.OrderRepository        { return r.orders }
func (r *Registry) Inventory() repositories.InventoryRepository { return r.inventory }
func (r *Registry) Counters() repositories.CounterRepository    { return r.counters }
func (r *Registry) Health() repositories.HealthRepository       { return r.health }

// RunInTx groups repository calls behind one logical boundary. Operations that
// must be atomic (order insert, key claim, stock decrement) already run inside
// a single Firestore transaction in the order repository, so the registry
// level boundary only threads the context through.
func (r *Registry) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if fn == nil {
		return errors.New("registry: transaction function is required")
	}
	return fn(ctx)
}

var _ repositories.Registry = (*Registry)(nil)
