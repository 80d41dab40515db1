package payments

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	razorpay "github.com/razorpay/razorpay-go"

	domain "github.com/clovemart/api/internal/domain"
)

// razorpayOrderAPI and razorpayPaymentAPI mirror the SDK resource clients so
// tests can substitute fakes.
type razorpayOrderAPI interface {
	Create(data map[string]interface{}, extraHeaders map[string]string) (map[string]interface{}, error)
}

type razorpayPaymentAPI interface {
	Fetch(paymentID string, queryParams map[string]interface{}, extraHeaders map[string]string) (map[string]interface{}, error)
}

type razorpayClients struct {
	Orders   razorpayOrderAPI
	Payments razorpayPaymentAPI
}

// RazorpayAdapterConfig wires the hosted-checkout adapter.
type RazorpayAdapterConfig struct {
	KeyID     string
	KeySecret string
	Orders    OrderFactory
	Clock     func() time.Time
	Logger    func(ctx context.Context, event string, fields map[string]any)

	// Clients overrides the SDK resource clients, primarily for tests.
	Clients *razorpayClients
}

type razorpayAdapter struct {
	keyID     string
	keySecret string
	orders    OrderFactory
	client    razorpayClients
	now       func() time.Time
	logger    func(ctx context.Context, event string, fields map[string]any)
}

// NewRazorpayAdapter constructs the hosted-checkout adapter. Initiate creates
// a gateway order the hosted page is opened against; Finalize verifies the
// checkout callback signature before any order is created.
func NewRazorpayAdapter(cfg RazorpayAdapterConfig) (Adapter, error) {
	keyID := strings.TrimSpace(cfg.KeyID)
	keySecret := strings.TrimSpace(cfg.KeySecret)
	if keyID == "" || keySecret == "" {
		return nil, errors.New("payments: razorpay adapter requires key id and secret")
	}
	if cfg.Orders == nil {
		return nil, errors.New("payments: razorpay adapter requires an order factory")
	}

	clients := cfg.Clients
	if clients == nil {
		sdk := razorpay.NewClient(keyID, keySecret)
		clients = &razorpayClients{Orders: sdk.Order, Payments: sdk.Payment}
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &razorpayAdapter{
		keyID:     keyID,
		keySecret: keySecret,
		orders:    cfg.Orders,
		client:    *clients,
		now: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

func (a *razorpayAdapter) Method() domain.PaymentMethod { return domain.PaymentMethodRazorpay }

func (a *razorpayAdapter) Initiate(ctx context.Context, req InitiationRequest) (Initiation, error) {
	if req.Amount <= 0 {
		return Initiation{}, fmt.Errorf("%w: amount must be positive", ErrInvalidRequest)
	}
	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if currency == "" {
		return Initiation{}, fmt.Errorf("%w: currency is required", ErrInvalidRequest)
	}

	data := map[string]interface{}{
		"amount":   req.Amount,
		"currency": currency,
		"receipt":  strings.TrimSpace(req.Receipt),
	}
	if len(req.Metadata) > 0 {
		notes := make(map[string]interface{}, len(req.Metadata))
		for k, v := range req.Metadata {
			notes[k] = v
		}
		data["notes"] = notes
	}

	created, err := a.client.Orders.Create(data, nil)
	if err != nil {
		a.logger(ctx, "payments.razorpay.order_failed", map[string]any{
			"checkoutId": req.CheckoutID,
			"error":      err.Error(),
		})
		return Initiation{}, fmt.Errorf("razorpay: create order: %w", err)
	}

	orderID, _ := created["id"].(string)
	if strings.TrimSpace(orderID) == "" {
		return Initiation{}, errors.New("razorpay: create order: response missing id")
	}

	a.logger(ctx, "payments.razorpay.order_created", map[string]any{
		"checkoutId": req.CheckoutID,
		"orderId":    orderID,
		"amount":     req.Amount,
	})
	return Initiation{
		Method:           domain.PaymentMethodRazorpay,
		GatewayReference: orderID,
		KeyID:            a.keyID,
		Raw:              created,
	}, nil
}

func (a *razorpayAdapter) Finalize(ctx context.Context, req FinalizeRequest) (domain.Order, error) {
	reference := strings.TrimSpace(req.Attempt.GatewayReference)
	paymentID := strings.TrimSpace(req.Proof.PaymentID)
	signature := strings.TrimSpace(req.Proof.Signature)
	if reference == "" || paymentID == "" || signature == "" {
		return domain.Order{}, fmt.Errorf("%w: missing payment proof", ErrInvalidRequest)
	}

	if !a.verifySignature(reference, paymentID, signature) {
		a.logger(ctx, "payments.razorpay.signature_mismatch", map[string]any{
			"orderId":   reference,
			"paymentId": paymentID,
		})
		return domain.Order{}, ErrSignatureMismatch
	}

	payment, err := a.client.Payments.Fetch(paymentID, nil, nil)
	if err != nil {
		return domain.Order{}, fmt.Errorf("razorpay: fetch payment %s: %w", paymentID, err)
	}
	if err := a.checkCapturedPayment(payment, req.Attempt); err != nil {
		return domain.Order{}, err
	}

	draft := req.Draft
	draft.Payment = capturedPayment(domain.PaymentMethodRazorpay, reference, paymentID, req.Attempt.Amount, req.Attempt.Currency, a.now())
	return a.orders.CreateOrder(ctx, draft)
}

// verifySignature recomputes HMAC-SHA256(keySecret, orderID|paymentID) and
// compares in constant time.
func (a *razorpayAdapter) verifySignature(orderID, paymentID, signature string) bool {
	mac := hmac.New(sha256.New, []byte(a.keySecret))
	mac.Write([]byte(orderID + "|" + paymentID))
	expected := mac.Sum(nil)

	provided, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}
	return hmac.Equal(expected, provided)
}

func (a *razorpayAdapter) checkCapturedPayment(payment map[string]interface{}, attempt domain.PaymentAttempt) error {
	status, _ := payment["status"].(string)
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "captured", "authorized":
	default:
		return fmt.Errorf("%w: razorpay payment status %q", ErrPaymentNotCompleted, status)
	}

	if amount, ok := paymentAmount(payment["amount"]); ok && amount != attempt.Amount {
		return fmt.Errorf("%w: razorpay amount %d does not match attempt %d", ErrPaymentNotCompleted, amount, attempt.Amount)
	}
	if currency, ok := payment["currency"].(string); ok {
		if !strings.EqualFold(strings.TrimSpace(currency), strings.TrimSpace(attempt.Currency)) {
			return fmt.Errorf("%w: razorpay currency %q does not match attempt", ErrPaymentNotCompleted, currency)
		}
	}
	return nil
}

// paymentAmount tolerates the SDK decoding numbers as float64 or json.Number-ish values.
func paymentAmount(value any) (int64, bool) {
	switch v := value.(type) {
	case int64:
		return v, true
	case int:
		return int64(v), true
	case float64:
		return int64(v), true
	default:
		return 0, false
	}
}
