package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/clovemart/api/internal/domain"
)

var (
	// ErrUnsupportedMethod is returned when the registry cannot locate an adapter.
	ErrUnsupportedMethod = errors.New("payments: unsupported method")
	// ErrSignatureMismatch indicates the client-submitted payment signature failed verification.
	ErrSignatureMismatch = errors.New("payments: signature mismatch")
	// ErrPaymentNotCompleted indicates the gateway does not report the payment as captured.
	ErrPaymentNotCompleted = errors.New("payments: payment not completed")
	// ErrInvalidRequest indicates the caller supplied an unusable initiation or finalize payload.
	ErrInvalidRequest = errors.New("payments: invalid request")
)

// InitiationRequest carries everything an adapter needs to open a payment attempt.
type InitiationRequest struct {
	CheckoutID     string
	Amount         int64
	Currency       string
	Receipt        string
	CustomerEmail  string
	IdempotencyKey string
	Metadata       map[string]string
}

// Initiation is the gateway handle the client drives the payment UI with.
// Verified is true when the method needs no client-side capture step (COD).
type Initiation struct {
	Method           domain.PaymentMethod
	GatewayReference string
	ClientSecret     string
	KeyID            string
	Verified         bool
	Raw              map[string]any
}

// Proof is the client-submitted evidence that a payment attempt completed.
type Proof struct {
	PaymentID string
	Signature string
}

// FinalizeRequest bundles the attempt under verification with the order draft
// to create once the proof checks out.
type FinalizeRequest struct {
	Attempt domain.PaymentAttempt
	Proof   Proof
	Draft   domain.OrderDraft
}

// OrderFactory creates the order once an adapter has verified payment.
// Adapters must not invoke it on any verification failure.
type OrderFactory interface {
	CreateOrder(ctx context.Context, draft domain.OrderDraft) (domain.Order, error)
}

// Adapter is the per-gateway contract. Initiate opens an attempt against the
// gateway; Finalize verifies the proof server-side and hands off to the order
// factory. Adapters never touch checkout session state.
type Adapter interface {
	Method() domain.PaymentMethod
	Initiate(ctx context.Context, req InitiationRequest) (Initiation, error)
	Finalize(ctx context.Context, req FinalizeRequest) (domain.Order, error)
}

// Registry resolves adapters by payment method.
type Registry struct {
	adapters map[domain.PaymentMethod]Adapter
}

// NewRegistry constructs a Registry over the supplied adapters.
func NewRegistry(adapters ...Adapter) (*Registry, error) {
	if len(adapters) == 0 {
		return nil, errors.New("payments: at least one adapter is required")
	}
	byMethod := make(map[domain.PaymentMethod]Adapter, len(adapters))
	for _, adapter := range adapters {
		if adapter == nil {
			return nil, errors.New("payments: nil adapter registration")
		}
		method := domain.PaymentMethod(strings.ToLower(strings.TrimSpace(string(adapter.Method()))))
		if method == "" {
			return nil, errors.New("payments: adapter reports empty method")
		}
		if _, exists := byMethod[method]; exists {
			return nil, fmt.Errorf("payments: duplicate adapter for method %q", method)
		}
		byMethod[method] = adapter
	}
	return &Registry{adapters: byMethod}, nil
}

// Resolve returns the adapter registered for the method.
func (r *Registry) Resolve(method domain.PaymentMethod) (Adapter, error) {
	if r == nil || len(r.adapters) == 0 {
		return nil, errors.New("payments: no adapters registered")
	}
	key := domain.PaymentMethod(strings.ToLower(strings.TrimSpace(string(method))))
	adapter, ok := r.adapters[key]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedMethod, method)
	}
	return adapter, nil
}

// Methods lists the registered payment methods.
func (r *Registry) Methods() []domain.PaymentMethod {
	if r == nil {
		return nil
	}
	methods := make([]domain.PaymentMethod, 0, len(r.adapters))
	for method := range r.adapters {
		methods = append(methods, method)
	}
	return methods
}

func capturedPayment(method domain.PaymentMethod, reference, paymentID string, amount int64, currency string, at time.Time) domain.OrderPayment {
	capturedAt := at.UTC()
	return domain.OrderPayment{
		Method:           method,
		State:            domain.PaymentStateCaptured,
		GatewayReference: reference,
		PaymentID:        paymentID,
		Amount:           amount,
		Currency:         strings.ToUpper(strings.TrimSpace(currency)),
		CapturedAt:       &capturedAt,
	}
}
