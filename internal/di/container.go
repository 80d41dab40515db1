package di

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/clovemart/api/internal/domain"
	"github.com/clovemart/api/internal/payments"
	"github.com/clovemart/api/internal/platform/config"
	"github.com/clovemart/api/internal/repositories"
	"github.com/clovemart/api/internal/services"
)

// Services bundles the service-layer contracts that handlers rely upon. Concrete implementations
// are assembled via dependency injection in NewContainer.
type Services struct {
	Cart      services.CartService
	Addresses services.AddressService
	Resolver  services.AddressResolver
	Checkout  services.CheckoutService
	Orders    services.OrderService
	Inventory services.InventoryService
	System    services.SystemService
}

// Deps carries the infrastructure the container cannot build on its own.
// Gateways is a factory because the adapters need the order service as their
// order factory, and that service only exists once the container has built it.
type Deps struct {
	Gateways func(factory payments.OrderFactory) (*payments.Registry, error)
	Events   services.OrderEventPublisher
	Clock    func() time.Time
	Logger   func(ctx context.Context, event string, fields map[string]any)
}

// Container wires repositories, services, and payment gateways for runtime use.
type Container struct {
	Config       config.Config
	Repositories repositories.Registry
	Gateways     *payments.Registry
	Services     Services
}

// NewContainer constructs the runtime dependencies. Production wiring provides real
// implementations, while tests can supply in-memory registries and stub gateways.
func NewContainer(ctx context.Context, cfg config.Config, reg repositories.Registry, deps Deps) (*Container, error) {
	if reg == nil {
		return nil, errors.New("repositories registry is required")
	}
	if deps.Gateways == nil {
		return nil, errors.New("payment gateway factory is required")
	}

	container := &Container{
		Config:       cfg,
		Repositories: reg,
	}
	if err := container.buildServices(ctx, deps); err != nil {
		return nil, err
	}
	return container, nil
}

// Close releases resources such as repository clients, background workers, or caches.
func (c *Container) Close(ctx context.Context) error {
	if c == nil || c.Repositories == nil {
		return nil
	}
	return c.Repositories.Close(ctx)
}

func (c *Container) buildServices(_ context.Context, deps Deps) error {
	reg := c.Repositories
	cfg := c.Config

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger

	pricing := services.NewPricingEngine()
	pricingCfg := domain.PricingConfig{
		Currency:              cfg.Pricing.Currency,
		TaxRateBasisPoints:    cfg.Pricing.TaxRateBasisPoints,
		FreeShippingThreshold: cfg.Pricing.FreeShippingThreshold,
		ShippingFlatFee:       cfg.Pricing.ShippingFlatFee,
	}

	cartSvc, err := services.NewCartService(services.CartServiceDeps{
		Carts:     reg.Carts(),
		Inventory: reg.Inventory(),
		Pricing:   pricing,
		Config:    pricingCfg,
		Clock:     clock,
		Logger:    logger,
	})
	if err != nil {
		return fmt.Errorf("build cart service: %w", err)
	}
	c.Services.Cart = cartSvc

	resolver, err := services.NewAddressResolver(services.AddressResolverDeps{
		Addresses: reg.Addresses(),
		Logger:    logger,
	})
	if err != nil {
		return fmt.Errorf("build address resolver: %w", err)
	}
	c.Services.Resolver = resolver

	addressSvc, err := services.NewAddressService(services.AddressServiceDeps{
		Addresses: reg.Addresses(),
		Logger:    logger,
	})
	if err != nil {
		return fmt.Errorf("build address service: %w", err)
	}
	c.Services.Addresses = addressSvc

	orderSvc, err := services.NewOrderService(services.OrderServiceDeps{
		Orders:   reg.Orders(),
		Counters: reg.Counters(),
		Clock:    clock,
		Events:   deps.Events,
		Logger:   logger,
	})
	if err != nil {
		return fmt.Errorf("build order service: %w", err)
	}
	c.Services.Orders = orderSvc

	inventorySvc, err := services.NewInventoryService(services.InventoryServiceDeps{
		Inventory: reg.Inventory(),
		Clock:     clock,
		Logger:    logger,
	})
	if err != nil {
		return fmt.Errorf("build inventory service: %w", err)
	}
	c.Services.Inventory = inventorySvc

	gateways, err := deps.Gateways(orderSvc)
	if err != nil {
		return fmt.Errorf("build payment gateways: %w", err)
	}
	c.Gateways = gateways

	checkoutSvc, err := services.NewCheckoutService(services.CheckoutServiceDeps{
		Checkouts: reg.Checkouts(),
		Carts:     cartSvc,
		Resolver:  resolver,
		Addresses: reg.Addresses(),
		Gateways:  gateways,
		Pricing:   pricing,
		Config:    pricingCfg,
		Clock:     clock,
		Logger:    logger,
	})
	if err != nil {
		return fmt.Errorf("build checkout service: %w", err)
	}
	c.Services.Checkout = checkoutSvc

	if healthRepo := reg.Health(); healthRepo != nil {
		systemSvc, err := services.NewSystemService(services.SystemServiceDeps{
			HealthRepository: healthRepo,
			Clock:            clock,
		})
		if err != nil {
			return fmt.Errorf("build system service: %w", err)
		}
		c.Services.System = systemSvc
	}

	return nil
}
