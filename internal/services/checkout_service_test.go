package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/clovemart/api/internal/domain"
	"github.com/clovemart/api/internal/payments"
)

type fakeGatewayAdapter struct {
	method    domain.PaymentMethod
	initiate  func(ctx context.Context, req payments.InitiationRequest) (payments.Initiation, error)
	finalize  func(ctx context.Context, req payments.FinalizeRequest) (domain.Order, error)
	finalizes int
}

func (f *fakeGatewayAdapter) Method() domain.PaymentMethod { return f.method }

func (f *fakeGatewayAdapter) Initiate(ctx context.Context, req payments.InitiationRequest) (payments.Initiation, error) {
	if f.initiate != nil {
		return f.initiate(ctx, req)
	}
	return payments.Initiation{Method: f.method, GatewayReference: "ref_1"}, nil
}

func (f *fakeGatewayAdapter) Finalize(ctx context.Context, req payments.FinalizeRequest) (domain.Order, error) {
	f.finalizes++
	if f.finalize != nil {
		return f.finalize(ctx, req)
	}
	return domain.Order{ID: "ord_1"}, nil
}

func newCheckoutFixture(t *testing.T, checkouts *stubCheckoutRepository, addresses *stubAddressRepository, adapter payments.Adapter) CheckoutService {
	t.Helper()
	cartRepo := &stubCartRepository{
		get: func(ctx context.Context, ownerID string) (domain.Cart, error) {
			return storedCart(
				domain.CartItem{ID: "itm_1", ProductID: "p_1", SKU: "TEE-M", Title: "Tee", Quantity: 2, UnitPrice: 50000},
				domain.CartItem{ID: "itm_2", ProductID: "p_2", SKU: "MUG-1", Title: "Mug", Quantity: 1, UnitPrice: 50000},
			), nil
		},
	}
	return newCheckoutFixtureWithCarts(t, checkouts, addresses, adapter, cartRepo)
}

func newCheckoutFixtureWithCarts(t *testing.T, checkouts *stubCheckoutRepository, addresses *stubAddressRepository, adapter payments.Adapter, cartRepo *stubCartRepository) CheckoutService {
	t.Helper()

	carts, err := NewCartService(CartServiceDeps{
		Carts:     cartRepo,
		Inventory: ampleStock(),
		Pricing:   NewPricingEngine(),
		Config:    inrPricingConfig(),
		Clock:     fixedClock(time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)),
	})
	if err != nil {
		t.Fatalf("NewCartService returned error: %v", err)
	}

	if addresses == nil {
		addresses = &stubAddressRepository{}
	}
	resolver, err := NewAddressResolver(AddressResolverDeps{Addresses: addresses})
	if err != nil {
		t.Fatalf("NewAddressResolver returned error: %v", err)
	}

	registry, err := payments.NewRegistry(adapter)
	if err != nil {
		t.Fatalf("NewRegistry returned error: %v", err)
	}

	svc, err := NewCheckoutService(CheckoutServiceDeps{
		Checkouts: checkouts,
		Carts:     carts,
		Resolver:  resolver,
		Addresses: addresses,
		Gateways:  registry,
		Pricing:   NewPricingEngine(),
		Config:    inrPricingConfig(),
		Clock:     fixedClock(time.Date(2026, 8, 1, 10, 5, 0, 0, time.UTC)),
	})
	if err != nil {
		t.Fatalf("NewCheckoutService returned error: %v", err)
	}
	return svc
}

func sessionFixture(state domain.CheckoutState) domain.CheckoutSession {
	breakdown := domain.PriceBreakdown{Currency: "INR", Subtotal: 150000, Tax: 27000, Shipping: 9900, Total: 186900}
	return domain.CheckoutSession{
		ID:     "chk_1",
		UserID: "u_1",
		State:  state,
		Snapshot: domain.CartSnapshot{
			CartID:   "u_1",
			Currency: "INR",
			Items: []domain.SnapshotItem{
				{ProductID: "p_1", SKU: "TEE-M", Title: "Tee", Quantity: 2, UnitPrice: 50000},
				{ProductID: "p_2", SKU: "MUG-1", Title: "Mug", Quantity: 1, UnitPrice: 50000},
			},
		},
		Breakdown:       &breakdown,
		ShippingAddress: &domain.Address{ID: "addr_1", FullName: "Asha Nair", Line1: "12 MG Road", City: "Bengaluru", PostalCode: "560001", Country: "IN"},
		Contact:         &domain.Contact{Email: "asha@example.com"},
		PaymentMethod:   domain.PaymentMethodRazorpay,
		Revision:        3,
	}
}

func findSession(session domain.CheckoutSession) func(ctx context.Context, checkoutID string) (domain.CheckoutSession, error) {
	return func(ctx context.Context, checkoutID string) (domain.CheckoutSession, error) {
		if checkoutID == session.ID {
			return session, nil
		}
		return domain.CheckoutSession{}, notFoundErr()
	}
}

func TestBeginOpensSessionInShippingInfo(t *testing.T) {
	var inserted domain.CheckoutSession
	checkouts := &stubCheckoutRepository{
		insert: func(ctx context.Context, session domain.CheckoutSession) error {
			inserted = session
			return nil
		},
	}
	svc := newCheckoutFixture(t, checkouts, nil, &fakeGatewayAdapter{method: domain.PaymentMethodCOD})

	session, err := svc.Begin(context.Background(), BeginCheckoutCommand{OwnerID: "u_1", UserID: "u_1"})
	if err != nil {
		t.Fatalf("Begin returned error: %v", err)
	}
	if session.State != domain.CheckoutStateShippingInfo {
		t.Fatalf("expected shipping_info, got %q", session.State)
	}
	if session.Breakdown == nil || session.Breakdown.Total != 186900 {
		t.Fatalf("unexpected breakdown: %+v", session.Breakdown)
	}
	if session.Revision != 1 {
		t.Fatalf("expected revision 1, got %d", session.Revision)
	}
	if inserted.ID != session.ID || len(inserted.Snapshot.Items) != 2 {
		t.Fatalf("insert did not receive the session: %+v", inserted)
	}
}

func TestSubmitShippingGuestMissingContactEmail(t *testing.T) {
	session := sessionFixture(domain.CheckoutStateShippingInfo)
	session.UserID = ""
	session.ShippingAddress = nil
	session.Contact = nil
	checkouts := &stubCheckoutRepository{findByID: findSession(session)}
	svc := newCheckoutFixture(t, checkouts, nil, &fakeGatewayAdapter{method: domain.PaymentMethodCOD})

	form := validGuestForm()
	form.ContactEmail = ""
	_, err := svc.SubmitShipping(context.Background(), SubmitShippingCommand{CheckoutID: "chk_1", Guest: &form})
	if !errors.Is(err, ErrIncompleteGuestInfo) {
		t.Fatalf("expected ErrIncompleteGuestInfo, got %v", err)
	}
	if checkouts.updates != 0 {
		t.Fatalf("failed validation must not persist, got %d updates", checkouts.updates)
	}
}

func TestSubmitShippingUsesSavedDefaultAddress(t *testing.T) {
	session := sessionFixture(domain.CheckoutStateShippingInfo)
	session.ShippingAddress = nil
	session.Contact = nil
	var saved domain.CheckoutSession
	checkouts := &stubCheckoutRepository{
		findByID: findSession(session),
		update: func(ctx context.Context, s domain.CheckoutSession, expectedRevision int64) (domain.CheckoutSession, error) {
			saved = s
			s.Revision = expectedRevision + 1
			return s, nil
		},
	}
	addresses := &stubAddressRepository{
		list: func(ctx context.Context, userID string) ([]domain.Address, error) {
			return []domain.Address{
				{ID: "addr_1", City: "Mumbai"},
				{ID: "addr_2", City: "Pune", IsDefault: true, Phone: "+91-9999999999"},
			}, nil
		},
	}
	svc := newCheckoutFixture(t, checkouts, addresses, &fakeGatewayAdapter{method: domain.PaymentMethodCOD})

	got, err := svc.SubmitShipping(context.Background(), SubmitShippingCommand{
		CheckoutID:   "chk_1",
		UserID:       "u_1",
		ContactEmail: "Asha@Example.com",
	})
	if err != nil {
		t.Fatalf("SubmitShipping returned error: %v", err)
	}
	if got.State != domain.CheckoutStatePaymentSelection {
		t.Fatalf("expected payment_selection, got %q", got.State)
	}
	if saved.ShippingAddress == nil || saved.ShippingAddress.ID != "addr_2" {
		t.Fatalf("expected the default address, got %+v", saved.ShippingAddress)
	}
	if saved.Contact == nil || saved.Contact.Email != "asha@example.com" {
		t.Fatalf("unexpected contact: %+v", saved.Contact)
	}
	if saved.Contact.Phone != "+91-9999999999" {
		t.Fatalf("contact phone should fall back to the address, got %q", saved.Contact.Phone)
	}
}

func TestSubmitShippingNoSavedAddress(t *testing.T) {
	session := sessionFixture(domain.CheckoutStateShippingInfo)
	checkouts := &stubCheckoutRepository{findByID: findSession(session)}
	addresses := &stubAddressRepository{
		list: func(ctx context.Context, userID string) ([]domain.Address, error) {
			return nil, nil
		},
	}
	svc := newCheckoutFixture(t, checkouts, addresses, &fakeGatewayAdapter{method: domain.PaymentMethodCOD})

	_, err := svc.SubmitShipping(context.Background(), SubmitShippingCommand{CheckoutID: "chk_1", UserID: "u_1"})
	if !errors.Is(err, ErrNoAddress) {
		t.Fatalf("expected ErrNoAddress, got %v", err)
	}
}

func TestSelectPaymentUnsupportedMethod(t *testing.T) {
	session := sessionFixture(domain.CheckoutStatePaymentSelection)
	checkouts := &stubCheckoutRepository{findByID: findSession(session)}
	svc := newCheckoutFixture(t, checkouts, nil, &fakeGatewayAdapter{method: domain.PaymentMethodCOD})

	_, err := svc.SelectPayment(context.Background(), SelectPaymentCommand{CheckoutID: "chk_1", UserID: "u_1", Method: "upi"})
	if !errors.Is(err, ErrCheckoutInvalidInput) {
		t.Fatalf("expected ErrCheckoutInvalidInput, got %v", err)
	}
}

func TestSelectPaymentMovesToReview(t *testing.T) {
	session := sessionFixture(domain.CheckoutStatePaymentSelection)
	session.Attempt = &domain.PaymentAttempt{ID: "pay_stale"}
	var saved domain.CheckoutSession
	checkouts := &stubCheckoutRepository{
		findByID: findSession(session),
		update: func(ctx context.Context, s domain.CheckoutSession, expectedRevision int64) (domain.CheckoutSession, error) {
			saved = s
			return s, nil
		},
	}
	svc := newCheckoutFixture(t, checkouts, nil, &fakeGatewayAdapter{method: domain.PaymentMethodRazorpay})

	got, err := svc.SelectPayment(context.Background(), SelectPaymentCommand{CheckoutID: "chk_1", UserID: "u_1", Method: "razorpay"})
	if err != nil {
		t.Fatalf("SelectPayment returned error: %v", err)
	}
	if got.State != domain.CheckoutStateReview {
		t.Fatalf("expected review, got %q", got.State)
	}
	if saved.Attempt != nil {
		t.Fatalf("selecting a method must clear any stale attempt: %+v", saved.Attempt)
	}
}

func TestInitiatePaymentStoresAttempt(t *testing.T) {
	session := sessionFixture(domain.CheckoutStateReview)
	var saved domain.CheckoutSession
	checkouts := &stubCheckoutRepository{
		findByID: findSession(session),
		update: func(ctx context.Context, s domain.CheckoutSession, expectedRevision int64) (domain.CheckoutSession, error) {
			saved = s
			return s, nil
		},
	}
	adapter := &fakeGatewayAdapter{
		method: domain.PaymentMethodRazorpay,
		initiate: func(ctx context.Context, req payments.InitiationRequest) (payments.Initiation, error) {
			if req.Amount != 186900 || req.Currency != "INR" {
				t.Fatalf("unexpected initiation request: %+v", req)
			}
			return payments.Initiation{
				Method:           domain.PaymentMethodRazorpay,
				GatewayReference: "order_rzp_1",
				KeyID:            "rzp_test_key",
			}, nil
		},
	}
	svc := newCheckoutFixture(t, checkouts, nil, adapter)

	got, err := svc.InitiatePayment(context.Background(), InitiatePaymentCommand{CheckoutID: "chk_1", UserID: "u_1"})
	if err != nil {
		t.Fatalf("InitiatePayment returned error: %v", err)
	}
	if got.Attempt == nil || got.Attempt.GatewayReference != "order_rzp_1" {
		t.Fatalf("unexpected attempt: %+v", got.Attempt)
	}
	if got.Attempt.Amount != 186900 || got.Attempt.Currency != "INR" {
		t.Fatalf("attempt must pin the session total: %+v", got.Attempt)
	}
	if saved.State != domain.CheckoutStateReview {
		t.Fatalf("initiation must keep the session in review, got %q", saved.State)
	}
}

func TestFinalizeVerificationFailureLeavesReview(t *testing.T) {
	session := sessionFixture(domain.CheckoutStateReview)
	session.Attempt = &domain.PaymentAttempt{
		ID:               "pay_1",
		Method:           domain.PaymentMethodRazorpay,
		GatewayReference: "order_rzp_1",
		Amount:           186900,
		Currency:         "INR",
	}
	checkouts := &stubCheckoutRepository{findByID: findSession(session)}
	adapter := &fakeGatewayAdapter{
		method: domain.PaymentMethodRazorpay,
		finalize: func(ctx context.Context, req payments.FinalizeRequest) (domain.Order, error) {
			return domain.Order{}, payments.ErrSignatureMismatch
		},
	}
	svc := newCheckoutFixture(t, checkouts, nil, adapter)

	_, err := svc.Finalize(context.Background(), FinalizeCheckoutCommand{CheckoutID: "chk_1", UserID: "u_1", PaymentID: "pay_x", Signature: "bad"})
	if !errors.Is(err, payments.ErrSignatureMismatch) {
		t.Fatalf("expected ErrSignatureMismatch, got %v", err)
	}
	if checkouts.updates != 0 {
		t.Fatalf("a rejected proof must not mutate the session, got %d updates", checkouts.updates)
	}
}

func TestFinalizeConfirmsSession(t *testing.T) {
	session := sessionFixture(domain.CheckoutStateReview)
	session.Attempt = &domain.PaymentAttempt{
		ID:               "pay_1",
		Method:           domain.PaymentMethodRazorpay,
		GatewayReference: "order_rzp_1",
		Amount:           186900,
		Currency:         "INR",
	}
	var saved domain.CheckoutSession
	checkouts := &stubCheckoutRepository{
		findByID: findSession(session),
		update: func(ctx context.Context, s domain.CheckoutSession, expectedRevision int64) (domain.CheckoutSession, error) {
			saved = s
			return s, nil
		},
	}
	adapter := &fakeGatewayAdapter{
		method: domain.PaymentMethodRazorpay,
		finalize: func(ctx context.Context, req payments.FinalizeRequest) (domain.Order, error) {
			if req.Draft.IdempotencyKey != "order_rzp_1" {
				t.Fatalf("draft must key on the gateway reference, got %q", req.Draft.IdempotencyKey)
			}
			if req.Draft.Totals.Total != 186900 {
				t.Fatalf("unexpected draft totals: %+v", req.Draft.Totals)
			}
			return domain.Order{ID: "ord_1", Status: domain.OrderStatusPaid}, nil
		},
	}
	svc := newCheckoutFixture(t, checkouts, nil, adapter)

	order, err := svc.Finalize(context.Background(), FinalizeCheckoutCommand{CheckoutID: "chk_1", UserID: "u_1", PaymentID: "pay_x", Signature: "sig"})
	if err != nil {
		t.Fatalf("Finalize returned error: %v", err)
	}
	if order.ID != "ord_1" {
		t.Fatalf("unexpected order: %+v", order)
	}
	if saved.State != domain.CheckoutStateConfirmed {
		t.Fatalf("expected confirmed, got %q", saved.State)
	}
	if saved.OrderID == nil || *saved.OrderID != "ord_1" {
		t.Fatalf("session must record the order id: %+v", saved.OrderID)
	}
}

func TestFinalizeClearsCart(t *testing.T) {
	session := sessionFixture(domain.CheckoutStateReview)
	session.Attempt = &domain.PaymentAttempt{
		ID:               "pay_1",
		Method:           domain.PaymentMethodRazorpay,
		GatewayReference: "order_rzp_1",
		Amount:           186900,
		Currency:         "INR",
	}
	checkouts := &stubCheckoutRepository{findByID: findSession(session)}
	deletes := 0
	cartRepo := &stubCartRepository{
		get: func(ctx context.Context, ownerID string) (domain.Cart, error) {
			return storedCart(
				domain.CartItem{ID: "itm_1", ProductID: "p_1", SKU: "TEE-M", Title: "Tee", Quantity: 2, UnitPrice: 50000},
			), nil
		},
		remove: func(ctx context.Context, ownerID string) error {
			deletes++
			if ownerID != "u_1" {
				t.Fatalf("expected the session's cart owner, got %q", ownerID)
			}
			return nil
		},
	}
	svc := newCheckoutFixtureWithCarts(t, checkouts, nil, &fakeGatewayAdapter{method: domain.PaymentMethodRazorpay}, cartRepo)

	if _, err := svc.Finalize(context.Background(), FinalizeCheckoutCommand{CheckoutID: "chk_1", UserID: "u_1", PaymentID: "pay_x", Signature: "sig"}); err != nil {
		t.Fatalf("Finalize returned error: %v", err)
	}
	if deletes != 1 {
		t.Fatalf("expected the cart to be cleared once, got %d deletes", deletes)
	}
}

func TestFinalizeCartClearFailureStillReturnsOrder(t *testing.T) {
	session := sessionFixture(domain.CheckoutStateReview)
	session.Attempt = &domain.PaymentAttempt{
		ID:               "pay_1",
		Method:           domain.PaymentMethodRazorpay,
		GatewayReference: "order_rzp_1",
		Amount:           186900,
		Currency:         "INR",
	}
	checkouts := &stubCheckoutRepository{findByID: findSession(session)}
	cartRepo := &stubCartRepository{
		remove: func(ctx context.Context, ownerID string) error {
			return errors.New("firestore unavailable")
		},
	}
	svc := newCheckoutFixtureWithCarts(t, checkouts, nil, &fakeGatewayAdapter{method: domain.PaymentMethodRazorpay}, cartRepo)

	order, err := svc.Finalize(context.Background(), FinalizeCheckoutCommand{CheckoutID: "chk_1", UserID: "u_1", PaymentID: "pay_x", Signature: "sig"})
	if err != nil {
		t.Fatalf("a failed cart clear must not fail the checkout: %v", err)
	}
	if order.ID != "ord_1" {
		t.Fatalf("unexpected order: %+v", order)
	}
}

func TestFinalizeAlreadyConfirmed(t *testing.T) {
	session := sessionFixture(domain.CheckoutStateConfirmed)
	checkouts := &stubCheckoutRepository{findByID: findSession(session)}
	adapter := &fakeGatewayAdapter{method: domain.PaymentMethodRazorpay}
	svc := newCheckoutFixture(t, checkouts, nil, adapter)

	_, err := svc.Finalize(context.Background(), FinalizeCheckoutCommand{CheckoutID: "chk_1", UserID: "u_1"})
	if !errors.Is(err, ErrDuplicateOrder) {
		t.Fatalf("expected ErrDuplicateOrder, got %v", err)
	}
	if adapter.finalizes != 0 {
		t.Fatalf("a confirmed session must not reach the gateway, got %d calls", adapter.finalizes)
	}
}

func TestBackFromReviewDiscardsAttempt(t *testing.T) {
	session := sessionFixture(domain.CheckoutStateReview)
	session.Attempt = &domain.PaymentAttempt{ID: "pay_1", GatewayReference: "order_rzp_1"}
	var saved domain.CheckoutSession
	checkouts := &stubCheckoutRepository{
		findByID: findSession(session),
		update: func(ctx context.Context, s domain.CheckoutSession, expectedRevision int64) (domain.CheckoutSession, error) {
			saved = s
			return s, nil
		},
	}
	svc := newCheckoutFixture(t, checkouts, nil, &fakeGatewayAdapter{method: domain.PaymentMethodRazorpay})

	got, err := svc.Back(context.Background(), "chk_1", "u_1")
	if err != nil {
		t.Fatalf("Back returned error: %v", err)
	}
	if got.State != domain.CheckoutStatePaymentSelection {
		t.Fatalf("expected payment_selection, got %q", got.State)
	}
	if saved.Attempt != nil {
		t.Fatalf("back navigation must discard the attempt: %+v", saved.Attempt)
	}
}

func TestBackFromShippingInfoRejected(t *testing.T) {
	session := sessionFixture(domain.CheckoutStateShippingInfo)
	checkouts := &stubCheckoutRepository{findByID: findSession(session)}
	svc := newCheckoutFixture(t, checkouts, nil, &fakeGatewayAdapter{method: domain.PaymentMethodCOD})

	if _, err := svc.Back(context.Background(), "chk_1", "u_1"); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestAbandonConfirmedRejected(t *testing.T) {
	session := sessionFixture(domain.CheckoutStateConfirmed)
	checkouts := &stubCheckoutRepository{findByID: findSession(session)}
	svc := newCheckoutFixture(t, checkouts, nil, &fakeGatewayAdapter{method: domain.PaymentMethodCOD})

	if err := svc.Abandon(context.Background(), "chk_1", "u_1"); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestGetHidesForeignSessions(t *testing.T) {
	session := sessionFixture(domain.CheckoutStateReview)
	checkouts := &stubCheckoutRepository{findByID: findSession(session)}
	svc := newCheckoutFixture(t, checkouts, nil, &fakeGatewayAdapter{method: domain.PaymentMethodCOD})

	if _, err := svc.Get(context.Background(), "chk_1", "u_2"); !errors.Is(err, ErrCheckoutNotFound) {
		t.Fatalf("expected ErrCheckoutNotFound, got %v", err)
	}
}
