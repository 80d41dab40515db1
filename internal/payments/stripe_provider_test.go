package payments

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stripe/stripe-go/v78"

	domain "github.com/clovemart/api/internal/domain"
)

type fakeStripeIntents struct {
	newIntent func(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
	get       func(id string, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
}

func (f *fakeStripeIntents) New(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
	return f.newIntent(params)
}

func (f *fakeStripeIntents) Get(id string, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
	return f.get(id, params)
}

func newTestStripeAdapter(t *testing.T, factory *stubOrderFactory, intents stripePaymentIntentAPI) Adapter {
	t.Helper()
	adapter, err := NewStripeAdapter(StripeAdapterConfig{
		Orders:  factory,
		Clock:   func() time.Time { return time.Date(2025, 3, 14, 10, 0, 0, 0, time.UTC) },
		Clients: &stripeClients{intents: intents},
	})
	if err != nil {
		t.Fatalf("NewStripeAdapter returned error: %v", err)
	}
	return adapter
}

func TestStripeInitiateReturnsClientSecret(t *testing.T) {
	adapter := newTestStripeAdapter(t, &stubOrderFactory{}, &fakeStripeIntents{
		newIntent: func(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
			if params.Amount == nil || *params.Amount != 186900 {
				t.Fatalf("unexpected intent amount: %+v", params.Amount)
			}
			return &stripe.PaymentIntent{
				ID:           "pi_1",
				ClientSecret: "pi_1_secret",
				Amount:       186900,
				Currency:     stripe.CurrencyINR,
				Status:       stripe.PaymentIntentStatusRequiresPaymentMethod,
			}, nil
		},
	})

	initiation, err := adapter.Initiate(context.Background(), InitiationRequest{
		CheckoutID: "chk_1",
		Amount:     186900,
		Currency:   "INR",
	})
	if err != nil {
		t.Fatalf("Initiate returned error: %v", err)
	}
	if initiation.GatewayReference != "pi_1" || initiation.ClientSecret != "pi_1_secret" {
		t.Fatalf("unexpected initiation: %+v", initiation)
	}
}

func TestStripeFinalizeRefetchesIntent(t *testing.T) {
	factory := &stubOrderFactory{}
	fetched := false
	adapter := newTestStripeAdapter(t, factory, &fakeStripeIntents{
		get: func(id string, _ *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
			fetched = true
			if id != "pi_1" {
				t.Fatalf("unexpected intent id %q", id)
			}
			return &stripe.PaymentIntent{
				ID:       "pi_1",
				Amount:   186900,
				Currency: stripe.CurrencyINR,
				Status:   stripe.PaymentIntentStatusSucceeded,
				LatestCharge: &stripe.Charge{
					ID: "ch_9",
				},
			}, nil
		},
	})

	order, err := adapter.Finalize(context.Background(), FinalizeRequest{
		Attempt: domain.PaymentAttempt{GatewayReference: "pi_1", Amount: 186900, Currency: "INR"},
		Draft:   domain.OrderDraft{CheckoutRef: "chk_1"},
	})
	if err != nil {
		t.Fatalf("Finalize returned error: %v", err)
	}
	if !fetched {
		t.Fatalf("finalize must re-fetch the intent server-side")
	}
	if factory.calls != 1 {
		t.Fatalf("expected one order factory call, got %d", factory.calls)
	}
	if order.Payment.PaymentID != "ch_9" {
		t.Fatalf("expected charge id as payment id, got %q", order.Payment.PaymentID)
	}
}

func TestStripeFinalizeRejectsUnfinishedIntent(t *testing.T) {
	factory := &stubOrderFactory{}
	adapter := newTestStripeAdapter(t, factory, &fakeStripeIntents{
		get: func(string, *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
			return &stripe.PaymentIntent{
				ID:     "pi_1",
				Amount: 186900,
				Status: stripe.PaymentIntentStatusRequiresAction,
			}, nil
		},
	})

	_, err := adapter.Finalize(context.Background(), FinalizeRequest{
		Attempt: domain.PaymentAttempt{GatewayReference: "pi_1", Amount: 186900, Currency: "INR"},
	})
	if !errors.Is(err, ErrPaymentNotCompleted) {
		t.Fatalf("expected ErrPaymentNotCompleted, got %v", err)
	}
	if factory.calls != 0 {
		t.Fatalf("order factory must not be invoked for unfinished intents")
	}
}

func TestStripeFinalizeRejectsAmountMismatch(t *testing.T) {
	factory := &stubOrderFactory{}
	adapter := newTestStripeAdapter(t, factory, &fakeStripeIntents{
		get: func(string, *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
			return &stripe.PaymentIntent{
				ID:       "pi_1",
				Amount:   100,
				Currency: stripe.CurrencyINR,
				Status:   stripe.PaymentIntentStatusSucceeded,
			}, nil
		},
	})

	_, err := adapter.Finalize(context.Background(), FinalizeRequest{
		Attempt: domain.PaymentAttempt{GatewayReference: "pi_1", Amount: 186900, Currency: "INR"},
	})
	if !errors.Is(err, ErrPaymentNotCompleted) {
		t.Fatalf("expected ErrPaymentNotCompleted, got %v", err)
	}
	if factory.calls != 0 {
		t.Fatalf("order factory must not be invoked on amount mismatch")
	}
}
