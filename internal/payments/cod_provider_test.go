package payments

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/clovemart/api/internal/domain"
)

func TestCODInitiateVerifiedImmediately(t *testing.T) {
	adapter, err := NewCODAdapter(CODAdapterConfig{
		Orders: &stubOrderFactory{},
		Clock:  func() time.Time { return time.Date(2025, 3, 14, 10, 0, 0, 0, time.UTC) },
	})
	if err != nil {
		t.Fatalf("NewCODAdapter returned error: %v", err)
	}

	initiation, err := adapter.Initiate(context.Background(), InitiationRequest{
		CheckoutID: "chk_1",
		Amount:     186900,
		Currency:   "INR",
	})
	if err != nil {
		t.Fatalf("Initiate returned error: %v", err)
	}
	if !initiation.Verified {
		t.Fatalf("expected cod initiation to be verified")
	}
	if initiation.GatewayReference == "" {
		t.Fatalf("expected a gateway reference")
	}
}

func TestCODInitiateRejectsOverLimit(t *testing.T) {
	adapter, err := NewCODAdapter(CODAdapterConfig{
		Orders:   &stubOrderFactory{},
		MaxTotal: 100000,
	})
	if err != nil {
		t.Fatalf("NewCODAdapter returned error: %v", err)
	}

	if _, err := adapter.Initiate(context.Background(), InitiationRequest{Amount: 186900, Currency: "INR"}); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}
}

func TestCODFinalizeCreatesPendingOrder(t *testing.T) {
	factory := &stubOrderFactory{}
	adapter, err := NewCODAdapter(CODAdapterConfig{Orders: factory})
	if err != nil {
		t.Fatalf("NewCODAdapter returned error: %v", err)
	}

	order, err := adapter.Finalize(context.Background(), FinalizeRequest{
		Attempt: domain.PaymentAttempt{
			Method:           domain.PaymentMethodCOD,
			GatewayReference: "cod_01ABC",
			Amount:           186900,
			Currency:         "INR",
		},
		Draft: domain.OrderDraft{CheckoutRef: "chk_1"},
	})
	if err != nil {
		t.Fatalf("Finalize returned error: %v", err)
	}
	if factory.calls != 1 {
		t.Fatalf("expected one order factory call, got %d", factory.calls)
	}
	if order.Payment.State != domain.PaymentStatePending {
		t.Fatalf("expected pending payment state, got %s", order.Payment.State)
	}
	if order.Payment.Method != domain.PaymentMethodCOD {
		t.Fatalf("expected cod payment method, got %s", order.Payment.Method)
	}
}
