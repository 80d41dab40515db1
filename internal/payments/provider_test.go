package payments

import (
	"context"
	"errors"
	"testing"

	domain "github.com/clovemart/api/internal/domain"
)

type stubAdapter struct {
	method   domain.PaymentMethod
	initiate func(ctx context.Context, req InitiationRequest) (Initiation, error)
	finalize func(ctx context.Context, req FinalizeRequest) (domain.Order, error)
}

func (s *stubAdapter) Method() domain.PaymentMethod { return s.method }

func (s *stubAdapter) Initiate(ctx context.Context, req InitiationRequest) (Initiation, error) {
	if s.initiate != nil {
		return s.initiate(ctx, req)
	}
	return Initiation{Method: s.method}, nil
}

func (s *stubAdapter) Finalize(ctx context.Context, req FinalizeRequest) (domain.Order, error) {
	if s.finalize != nil {
		return s.finalize(ctx, req)
	}
	return domain.Order{}, nil
}

type stubOrderFactory struct {
	create func(ctx context.Context, draft domain.OrderDraft) (domain.Order, error)
	calls  int
}

func (s *stubOrderFactory) CreateOrder(ctx context.Context, draft domain.OrderDraft) (domain.Order, error) {
	s.calls++
	if s.create != nil {
		return s.create(ctx, draft)
	}
	return domain.Order{ID: "ord_test", Payment: draft.Payment}, nil
}

func TestNewRegistryRejectsDuplicates(t *testing.T) {
	_, err := NewRegistry(
		&stubAdapter{method: domain.PaymentMethodCOD},
		&stubAdapter{method: domain.PaymentMethodCOD},
	)
	if err == nil {
		t.Fatalf("expected duplicate registration error")
	}
}

func TestRegistryResolve(t *testing.T) {
	registry, err := NewRegistry(
		&stubAdapter{method: domain.PaymentMethodCOD},
		&stubAdapter{method: domain.PaymentMethodRazorpay},
	)
	if err != nil {
		t.Fatalf("NewRegistry returned error: %v", err)
	}

	adapter, err := registry.Resolve(domain.PaymentMethodRazorpay)
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if adapter.Method() != domain.PaymentMethodRazorpay {
		t.Fatalf("expected razorpay adapter, got %s", adapter.Method())
	}

	if _, err := registry.Resolve(domain.PaymentMethodStripe); !errors.Is(err, ErrUnsupportedMethod) {
		t.Fatalf("expected ErrUnsupportedMethod, got %v", err)
	}
}

func TestRegistryResolveNormalisesMethod(t *testing.T) {
	registry, err := NewRegistry(&stubAdapter{method: domain.PaymentMethodCOD})
	if err != nil {
		t.Fatalf("NewRegistry returned error: %v", err)
	}
	if _, err := registry.Resolve(domain.PaymentMethod(" COD ")); err != nil {
		t.Fatalf("expected normalised resolve to succeed, got %v", err)
	}
}
