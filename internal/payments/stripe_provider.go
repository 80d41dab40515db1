package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/client"

	domain "github.com/clovemart/api/internal/domain"
)

// StripeLogger defines the logging contract for Stripe adapter operations.
type StripeLogger func(ctx context.Context, event string, fields map[string]any)

type stripePaymentIntentAPI interface {
	New(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
	Get(id string, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
}

type stripeClients struct {
	intents stripePaymentIntentAPI
}

// StripeAdapterConfig configures the intent-confirmation adapter.
type StripeAdapterConfig struct {
	APIKey    string
	AccountID string
	Backends  *stripe.Backends
	Orders    OrderFactory
	Logger    StripeLogger
	Clock     func() time.Time
	Clients   *stripeClients
}

type stripeAdapter struct {
	api     stripeClients
	account string
	orders  OrderFactory
	clock   func() time.Time
	logger  StripeLogger
}

// NewStripeAdapter constructs the Stripe adapter. Initiate opens a payment
// intent the client confirms with the publishable key; Finalize re-fetches the
// intent server-side and never trusts the client's claim of success.
func NewStripeAdapter(cfg StripeAdapterConfig) (Adapter, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" && cfg.Clients == nil {
		return nil, errors.New("stripe: api key is required")
	}
	if cfg.Orders == nil {
		return nil, errors.New("stripe: order factory is required")
	}

	var clients stripeClients
	if cfg.Clients != nil {
		clients = *cfg.Clients
	} else {
		sc := client.New(apiKey, cfg.Backends)
		clients = stripeClients{intents: sc.PaymentIntents}
	}
	if clients.intents == nil {
		return nil, errors.New("stripe: incomplete client configuration")
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &stripeAdapter{
		api:     clients,
		account: strings.TrimSpace(cfg.AccountID),
		orders:  cfg.Orders,
		clock: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

func (a *stripeAdapter) Method() domain.PaymentMethod { return domain.PaymentMethodStripe }

// Initiate creates a payment intent for the checkout total.
func (a *stripeAdapter) Initiate(ctx context.Context, req InitiationRequest) (Initiation, error) {
	if a == nil {
		return Initiation{}, errors.New("stripe: adapter is nil")
	}
	if req.Amount <= 0 {
		return Initiation{}, fmt.Errorf("%w: amount must be positive", ErrInvalidRequest)
	}
	currency := strings.ToLower(strings.TrimSpace(req.Currency))
	if currency == "" {
		return Initiation{}, fmt.Errorf("%w: currency is required", ErrInvalidRequest)
	}

	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(req.Amount),
		Currency: stripe.String(currency),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.Context = ctx
	if key := strings.TrimSpace(req.IdempotencyKey); key != "" {
		params.SetIdempotencyKey(key)
	}
	if a.account != "" {
		params.SetStripeAccount(a.account)
	}
	if email := strings.TrimSpace(req.CustomerEmail); email != "" {
		params.ReceiptEmail = stripe.String(email)
	}
	if len(req.Metadata) > 0 {
		params.Metadata = make(map[string]string, len(req.Metadata))
		for k, v := range req.Metadata {
			params.Metadata[k] = v
		}
	}

	intent, err := a.api.intents.New(params)
	if err != nil {
		a.logger(ctx, "payments.stripe.intent_failed", map[string]any{
			"checkoutId": req.CheckoutID,
			"error":      err.Error(),
		})
		return Initiation{}, fmt.Errorf("stripe: create payment intent: %w", err)
	}

	a.logger(ctx, "payments.stripe.intent_created", map[string]any{
		"checkoutId":    req.CheckoutID,
		"paymentIntent": intent.ID,
		"amount":        intent.Amount,
	})

	raw := map[string]any{}
	if data, err := json.Marshal(intent); err == nil {
		_ = json.Unmarshal(data, &raw)
	}

	return Initiation{
		Method:           domain.PaymentMethodStripe,
		GatewayReference: intent.ID,
		ClientSecret:     intent.ClientSecret,
		Raw:              raw,
	}, nil
}

// Finalize re-fetches the payment intent and requires the succeeded status
// with a matching amount before creating the order.
func (a *stripeAdapter) Finalize(ctx context.Context, req FinalizeRequest) (domain.Order, error) {
	if a == nil {
		return domain.Order{}, errors.New("stripe: adapter is nil")
	}
	intentID := strings.TrimSpace(req.Attempt.GatewayReference)
	if intentID == "" {
		return domain.Order{}, fmt.Errorf("%w: missing attempt reference", ErrInvalidRequest)
	}

	params := &stripe.PaymentIntentParams{}
	params.Context = ctx
	if a.account != "" {
		params.SetStripeAccount(a.account)
	}
	intent, err := a.api.intents.Get(intentID, params)
	if err != nil {
		return domain.Order{}, fmt.Errorf("stripe: lookup payment intent %s: %w", intentID, err)
	}

	if intent.Status != stripe.PaymentIntentStatusSucceeded {
		a.logger(ctx, "payments.stripe.intent_incomplete", map[string]any{
			"paymentIntent": intentID,
			"status":        intent.Status,
		})
		return domain.Order{}, fmt.Errorf("%w: stripe intent status %q", ErrPaymentNotCompleted, intent.Status)
	}
	if intent.Amount != req.Attempt.Amount {
		return domain.Order{}, fmt.Errorf("%w: stripe amount %d does not match attempt %d", ErrPaymentNotCompleted, intent.Amount, req.Attempt.Amount)
	}
	if !strings.EqualFold(string(intent.Currency), strings.TrimSpace(req.Attempt.Currency)) {
		return domain.Order{}, fmt.Errorf("%w: stripe currency %q does not match attempt", ErrPaymentNotCompleted, intent.Currency)
	}

	paymentID := intentID
	if charge := intent.LatestCharge; charge != nil && charge.ID != "" {
		paymentID = charge.ID
	}

	draft := req.Draft
	draft.Payment = capturedPayment(domain.PaymentMethodStripe, intentID, paymentID, intent.Amount, string(intent.Currency), a.clock())
	return a.orders.CreateOrder(ctx, draft)
}
