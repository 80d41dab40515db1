package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/clovemart/api/internal/domain"
)

// CODAdapterConfig wires the dependencies for the cash-on-delivery adapter.
type CODAdapterConfig struct {
	Orders   OrderFactory
	MaxTotal int64
	Clock    func() time.Time
	Logger   func(ctx context.Context, event string, fields map[string]any)
}

type codAdapter struct {
	orders   OrderFactory
	maxTotal int64
	now      func() time.Time
	logger   func(ctx context.Context, event string, fields map[string]any)
}

// NewCODAdapter constructs the cash-on-delivery adapter. There is no gateway
// to talk to: Initiate mints a local reference and reports the attempt as
// already verified, and Finalize records the payment as pending collection.
func NewCODAdapter(cfg CODAdapterConfig) (Adapter, error) {
	if cfg.Orders == nil {
		return nil, errors.New("payments: cod adapter requires an order factory")
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &codAdapter{
		orders:   cfg.Orders,
		maxTotal: cfg.MaxTotal,
		now: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

func (a *codAdapter) Method() domain.PaymentMethod { return domain.PaymentMethodCOD }

func (a *codAdapter) Initiate(ctx context.Context, req InitiationRequest) (Initiation, error) {
	if req.Amount <= 0 {
		return Initiation{}, fmt.Errorf("%w: amount must be positive", ErrInvalidRequest)
	}
	if a.maxTotal > 0 && req.Amount > a.maxTotal {
		return Initiation{}, fmt.Errorf("%w: order total exceeds cash-on-delivery limit", ErrInvalidRequest)
	}

	reference := "cod_" + ulid.Make().String()
	a.logger(ctx, "payments.cod.initiated", map[string]any{
		"checkoutId": req.CheckoutID,
		"reference":  reference,
		"amount":     req.Amount,
	})
	return Initiation{
		Method:           domain.PaymentMethodCOD,
		GatewayReference: reference,
		Verified:         true,
	}, nil
}

func (a *codAdapter) Finalize(ctx context.Context, req FinalizeRequest) (domain.Order, error) {
	reference := strings.TrimSpace(req.Attempt.GatewayReference)
	if reference == "" {
		return domain.Order{}, fmt.Errorf("%w: missing attempt reference", ErrInvalidRequest)
	}

	draft := req.Draft
	draft.Payment = domain.OrderPayment{
		Method:           domain.PaymentMethodCOD,
		State:            domain.PaymentStatePending,
		GatewayReference: reference,
		Amount:           req.Attempt.Amount,
		Currency:         strings.ToUpper(strings.TrimSpace(req.Attempt.Currency)),
	}
	return a.orders.CreateOrder(ctx, draft)
}
