package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/oklog/ulid/v2"
	"golang.org/x/text/unicode/norm"

	domain "github.com/clovemart/api/internal/domain"
	"github.com/clovemart/api/internal/payments"
	"github.com/clovemart/api/internal/platform/textutil"
	"github.com/clovemart/api/internal/repositories"
)

var (
	// ErrCheckoutInvalidInput indicates the caller supplied invalid checkout parameters.
	ErrCheckoutInvalidInput = errors.New("checkout: invalid input")
	// ErrCheckoutNotFound indicates no session exists for the id, or it belongs to someone else.
	ErrCheckoutNotFound = errors.New("checkout: not found")
	// ErrCheckoutConflict indicates a concurrent write clashed with the transition.
	ErrCheckoutConflict = errors.New("checkout: conflict")
	// ErrCheckoutUnavailable indicates checkout dependencies are currently unavailable.
	ErrCheckoutUnavailable = errors.New("checkout: unavailable")
	// ErrIncompleteShipping indicates the session has no resolved shipping details yet.
	ErrIncompleteShipping = errors.New("checkout: shipping details incomplete")
	// ErrInvalidTransition indicates the requested operation is not legal in the session's state.
	ErrInvalidTransition = errors.New("checkout: invalid state transition")
)

// CheckoutServiceDeps wires the collaborators the checkout state machine needs.
type CheckoutServiceDeps struct {
	Checkouts repositories.CheckoutRepository
	Carts     CartService
	Resolver  AddressResolver
	Addresses repositories.AddressRepository
	Gateways  *payments.Registry
	Pricing   *PricingEngine
	Config    domain.PricingConfig
	Clock     func() time.Time
	Logger    func(ctx context.Context, event string, fields map[string]any)
}

type checkoutService struct {
	checkouts repositories.CheckoutRepository
	carts     CartService
	resolver  AddressResolver
	addresses repositories.AddressRepository
	gateways  *payments.Registry
	pricing   *PricingEngine
	config    domain.PricingConfig
	sanitize  *bluemonday.Policy
	now       func() time.Time
	logger    func(ctx context.Context, event string, fields map[string]any)
}

// NewCheckoutService constructs a CheckoutService validating required dependencies.
func NewCheckoutService(deps CheckoutServiceDeps) (CheckoutService, error) {
	if deps.Checkouts == nil {
		return nil, errors.New("checkout service: checkout repository is required")
	}
	if deps.Carts == nil {
		return nil, errors.New("checkout service: cart service is required")
	}
	if deps.Resolver == nil {
		return nil, errors.New("checkout service: address resolver is required")
	}
	if deps.Addresses == nil {
		return nil, errors.New("checkout service: address repository is required")
	}
	if deps.Gateways == nil {
		return nil, errors.New("checkout service: payment gateway registry is required")
	}
	if deps.Pricing == nil {
		return nil, errors.New("checkout service: pricing engine is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &checkoutService{
		checkouts: deps.Checkouts,
		carts:     deps.Carts,
		resolver:  deps.Resolver,
		addresses: deps.Addresses,
		gateways:  deps.Gateways,
		pricing:   deps.Pricing,
		config:    deps.Config,
		sanitize:  bluemonday.StrictPolicy(),
		now: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

// Begin snapshots the owner's cart and opens a session in shipping_info.
// The snapshot is immutable; later cart edits never affect the session.
func (s *checkoutService) Begin(ctx context.Context, cmd BeginCheckoutCommand) (CheckoutSession, error) {
	ownerID := strings.TrimSpace(cmd.OwnerID)
	if ownerID == "" {
		return CheckoutSession{}, ErrCheckoutInvalidInput
	}

	snapshot, err := s.carts.Snapshot(ctx, ownerID)
	if err != nil {
		return CheckoutSession{}, err
	}
	breakdown, err := s.pricing.Breakdown(snapshot.Items, s.config)
	if err != nil {
		return CheckoutSession{}, err
	}

	now := s.now()
	session := domain.CheckoutSession{
		ID:        "chk_" + ulid.Make().String(),
		UserID:    strings.TrimSpace(cmd.UserID),
		State:     domain.CheckoutStateShippingInfo,
		Snapshot:  snapshot,
		Breakdown: &breakdown,
		Revision:  1,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.checkouts.Insert(ctx, session); err != nil {
		return CheckoutSession{}, s.translateCheckoutError(ctx, err)
	}

	s.logger(ctx, "checkout.begin", map[string]any{
		"checkoutID": session.ID,
		"lines":      len(snapshot.Items),
		"total":      breakdown.Total,
	})
	return session, nil
}

// Get returns the session when it belongs to the caller.
func (s *checkoutService) Get(ctx context.Context, checkoutID string, userID string) (CheckoutSession, error) {
	return s.loadOwned(ctx, checkoutID, userID)
}

// SubmitShipping resolves delivery details and advances to payment_selection.
// Guests submit the full form; authenticated customers use a saved address.
func (s *checkoutService) SubmitShipping(ctx context.Context, cmd SubmitShippingCommand) (CheckoutSession, error) {
	session, err := s.loadOwned(ctx, cmd.CheckoutID, cmd.UserID)
	if err != nil {
		return CheckoutSession{}, err
	}
	if session.State != domain.CheckoutStateShippingInfo {
		return CheckoutSession{}, s.transitionError(session.State, domain.CheckoutStatePaymentSelection)
	}

	var (
		address domain.Address
		contact domain.Contact
		note    string
	)
	switch {
	case session.Guest():
		if cmd.Guest == nil {
			return CheckoutSession{}, &GuestInfoError{Missing: guestFieldNames()}
		}
		address, contact, err = s.resolver.ValidateGuest(*cmd.Guest)
		if err != nil {
			return CheckoutSession{}, err
		}
		note = firstNonEmpty(cmd.Guest.DeliveryNote, cmd.DeliveryNote)
	case strings.TrimSpace(cmd.AddressID) != "":
		address, err = s.addresses.Get(ctx, session.UserID, strings.TrimSpace(cmd.AddressID))
		if err != nil {
			if isNotFound(err) {
				return CheckoutSession{}, ErrCheckoutNotFound
			}
			return CheckoutSession{}, s.translateCheckoutError(ctx, err)
		}
		contact = s.contactFor(cmd, address)
		note = cmd.DeliveryNote
	default:
		address, err = s.resolver.Resolve(ctx, session.UserID)
		if err != nil {
			return CheckoutSession{}, err
		}
		contact = s.contactFor(cmd, address)
		note = cmd.DeliveryNote
	}

	session.ShippingAddress = &address
	session.Contact = &contact
	session.DeliveryNote = s.cleanNote(note)
	session.State = domain.CheckoutStatePaymentSelection
	return s.persist(ctx, session, "checkout.shipping_submitted")
}

// SelectPayment fixes the gateway and moves the session to review.
// Re-selecting after review requires navigating back first.
func (s *checkoutService) SelectPayment(ctx context.Context, cmd SelectPaymentCommand) (CheckoutSession, error) {
	session, err := s.loadOwned(ctx, cmd.CheckoutID, cmd.UserID)
	if err != nil {
		return CheckoutSession{}, err
	}
	if session.State != domain.CheckoutStatePaymentSelection {
		return CheckoutSession{}, s.transitionError(session.State, domain.CheckoutStateReview)
	}
	if session.ShippingAddress == nil || session.Contact == nil {
		return CheckoutSession{}, ErrIncompleteShipping
	}

	adapter, err := s.gateways.Resolve(cmd.Method)
	if err != nil {
		if errors.Is(err, payments.ErrUnsupportedMethod) {
			return CheckoutSession{}, fmt.Errorf("%w: unsupported payment method %q", ErrCheckoutInvalidInput, cmd.Method)
		}
		return CheckoutSession{}, s.translateCheckoutError(ctx, err)
	}

	session.PaymentMethod = adapter.Method()
	session.Attempt = nil
	session.State = domain.CheckoutStateReview
	return s.persist(ctx, session, "checkout.payment_selected")
}

// InitiatePayment opens a gateway attempt for the selected method. The session
// stays in review; the attempt carries what the client needs to drive the
// gateway UI.
func (s *checkoutService) InitiatePayment(ctx context.Context, cmd InitiatePaymentCommand) (CheckoutSession, error) {
	session, err := s.loadOwned(ctx, cmd.CheckoutID, cmd.UserID)
	if err != nil {
		return CheckoutSession{}, err
	}
	if session.State != domain.CheckoutStateReview {
		return CheckoutSession{}, s.transitionError(session.State, domain.CheckoutStateReview)
	}
	if session.PaymentMethod == "" {
		return CheckoutSession{}, fmt.Errorf("%w: no payment method selected", ErrCheckoutInvalidInput)
	}
	if session.Breakdown == nil {
		return CheckoutSession{}, ErrIncompleteShipping
	}

	adapter, err := s.gateways.Resolve(session.PaymentMethod)
	if err != nil {
		return CheckoutSession{}, s.translateCheckoutError(ctx, err)
	}

	var email string
	if session.Contact != nil {
		email = session.Contact.Email
	}
	initiation, err := adapter.Initiate(ctx, payments.InitiationRequest{
		CheckoutID:     session.ID,
		Amount:         session.Breakdown.Total,
		Currency:       session.Breakdown.Currency,
		Receipt:        session.ID,
		CustomerEmail:  email,
		IdempotencyKey: s.initiationKey(session, cmd.IdempotencyKey),
		Metadata: textutil.NormalizeStringMap(map[string]string{
			"checkout_id": session.ID,
			"user_id":     session.UserID,
		}),
	})
	if err != nil {
		return CheckoutSession{}, err
	}

	session.Attempt = &domain.PaymentAttempt{
		ID:               "pay_" + ulid.Make().String(),
		Method:           initiation.Method,
		GatewayReference: initiation.GatewayReference,
		ClientSecret:     initiation.ClientSecret,
		KeyID:            initiation.KeyID,
		Amount:           session.Breakdown.Total,
		Currency:         session.Breakdown.Currency,
		CreatedAt:        s.now(),
	}
	return s.persist(ctx, session, "checkout.payment_initiated")
}

// Finalize verifies the client's payment proof through the gateway adapter and
// confirms the session. The adapter owns verification and order creation; a
// failed proof leaves the session untouched in review.
func (s *checkoutService) Finalize(ctx context.Context, cmd FinalizeCheckoutCommand) (Order, error) {
	session, err := s.loadOwned(ctx, cmd.CheckoutID, cmd.UserID)
	if err != nil {
		return Order{}, err
	}
	if session.State == domain.CheckoutStateConfirmed {
		return Order{}, ErrDuplicateOrder
	}
	if session.State != domain.CheckoutStateReview {
		return Order{}, s.transitionError(session.State, domain.CheckoutStateConfirmed)
	}
	if session.Attempt == nil {
		return Order{}, fmt.Errorf("%w: no payment attempt to finalize", ErrCheckoutInvalidInput)
	}

	adapter, err := s.gateways.Resolve(session.Attempt.Method)
	if err != nil {
		return Order{}, s.translateCheckoutError(ctx, err)
	}

	draft, err := s.assembleDraft(session)
	if err != nil {
		return Order{}, err
	}

	order, err := adapter.Finalize(ctx, payments.FinalizeRequest{
		Attempt: *session.Attempt,
		Proof: payments.Proof{
			PaymentID: strings.TrimSpace(cmd.PaymentID),
			Signature: strings.TrimSpace(cmd.Signature),
		},
		Draft: draft,
	})
	if err != nil {
		s.logger(ctx, "checkout.finalize_rejected", map[string]any{
			"checkoutID": session.ID,
			"method":     string(session.Attempt.Method),
			"error":      err.Error(),
		})
		return Order{}, err
	}

	session.State = domain.CheckoutStateConfirmed
	session.OrderID = &order.ID
	if _, err := s.persist(ctx, session, "checkout.confirmed"); err != nil {
		// The order exists; a lost race on the session write must not fail the
		// customer. Reconciliation happens through the idempotency key.
		s.logger(ctx, "checkout.confirm_write_failed", map[string]any{
			"checkoutID": session.ID,
			"orderID":    order.ID,
			"error":      err.Error(),
		})
	}

	// The cart was frozen into the snapshot at Begin; once the order exists it
	// must not linger for the next visit. Best effort, the order stands either
	// way.
	if ownerID := strings.TrimSpace(session.Snapshot.CartID); ownerID != "" {
		if err := s.carts.Clear(ctx, ownerID); err != nil {
			s.logger(ctx, "checkout.cart_clear_failed", map[string]any{
				"checkoutID": session.ID,
				"orderID":    order.ID,
				"error":      err.Error(),
			})
		}
	}
	return order, nil
}

// Back navigates one step towards shipping_info. Any in-flight payment
// attempt is discarded; it is never reused after navigation.
func (s *checkoutService) Back(ctx context.Context, checkoutID string, userID string) (CheckoutSession, error) {
	session, err := s.loadOwned(ctx, checkoutID, userID)
	if err != nil {
		return CheckoutSession{}, err
	}

	switch session.State {
	case domain.CheckoutStateReview:
		session.Attempt = nil
		session.State = domain.CheckoutStatePaymentSelection
	case domain.CheckoutStatePaymentSelection:
		session.State = domain.CheckoutStateShippingInfo
	default:
		return CheckoutSession{}, s.transitionError(session.State, domain.CheckoutStateShippingInfo)
	}
	return s.persist(ctx, session, "checkout.back")
}

// Abandon terminates a not-yet-confirmed session.
func (s *checkoutService) Abandon(ctx context.Context, checkoutID string, userID string) error {
	session, err := s.loadOwned(ctx, checkoutID, userID)
	if err != nil {
		return err
	}
	if session.State.Terminal() {
		return s.transitionError(session.State, domain.CheckoutStateAbandoned)
	}

	session.Attempt = nil
	session.State = domain.CheckoutStateAbandoned
	_, err = s.persist(ctx, session, "checkout.abandoned")
	return err
}

func (s *checkoutService) loadOwned(ctx context.Context, checkoutID string, userID string) (CheckoutSession, error) {
	checkoutID = strings.TrimSpace(checkoutID)
	if checkoutID == "" {
		return CheckoutSession{}, ErrCheckoutInvalidInput
	}

	session, err := s.checkouts.FindByID(ctx, checkoutID)
	if err != nil {
		if isNotFound(err) {
			return CheckoutSession{}, ErrCheckoutNotFound
		}
		return CheckoutSession{}, s.translateCheckoutError(ctx, err)
	}
	// Ownership mismatches read as not-found so session ids stay unguessable.
	if session.UserID != strings.TrimSpace(userID) {
		return CheckoutSession{}, ErrCheckoutNotFound
	}
	return session, nil
}

func (s *checkoutService) persist(ctx context.Context, session CheckoutSession, event string) (CheckoutSession, error) {
	expected := session.Revision
	session.UpdatedAt = s.now()
	saved, err := s.checkouts.Update(ctx, session, expected)
	if err != nil {
		return CheckoutSession{}, s.translateCheckoutError(ctx, err)
	}
	s.logger(ctx, event, map[string]any{
		"checkoutID": saved.ID,
		"state":      string(saved.State),
	})
	return saved, nil
}

// assembleDraft projects the frozen session onto an order draft. The payment
// block is left for the adapter to stamp after verification.
func (s *checkoutService) assembleDraft(session CheckoutSession) (domain.OrderDraft, error) {
	if session.ShippingAddress == nil || session.Contact == nil {
		return domain.OrderDraft{}, ErrIncompleteShipping
	}
	if session.Breakdown == nil || session.Attempt == nil {
		return domain.OrderDraft{}, ErrIncompleteShipping
	}

	items := make([]domain.OrderLineItem, 0, len(session.Snapshot.Items))
	for _, item := range session.Snapshot.Items {
		items = append(items, domain.OrderLineItem{
			ProductRef: item.ProductID,
			SKU:        item.SKU,
			Title:      item.Title,
			Quantity:   item.Quantity,
			UnitPrice:  item.UnitPrice,
			Total:      item.UnitPrice * int64(item.Quantity),
		})
	}

	return domain.OrderDraft{
		CheckoutRef: session.ID,
		UserID:      session.UserID,
		// One order per gateway reference: retried finalizes of the same
		// attempt collapse onto the first order.
		IdempotencyKey: session.Attempt.GatewayReference,
		Currency:       session.Breakdown.Currency,
		Totals: domain.OrderTotals{
			Subtotal: session.Breakdown.Subtotal,
			Tax:      session.Breakdown.Tax,
			Shipping: session.Breakdown.Shipping,
			Total:    session.Breakdown.Total,
		},
		Items:           items,
		ShippingAddress: *session.ShippingAddress,
		Contact:         *session.Contact,
		DeliveryNote:    session.DeliveryNote,
		Metadata: map[string]any{
			"cartId": session.Snapshot.CartID,
		},
	}, nil
}

// initiationKey derives a stable gateway idempotency key for the session so
// client retries of the same initiation reuse the gateway-side object.
func (s *checkoutService) initiationKey(session CheckoutSession, override string) string {
	if key := strings.TrimSpace(override); key != "" {
		return key
	}
	sum := sha256.Sum256(fmt.Appendf(nil, "%s|%s|%d|%d",
		session.ID, session.PaymentMethod, session.Breakdown.Total, session.Revision))
	return hex.EncodeToString(sum[:])
}

func (s *checkoutService) contactFor(cmd SubmitShippingCommand, address domain.Address) domain.Contact {
	return domain.Contact{
		Email: strings.ToLower(strings.TrimSpace(cmd.ContactEmail)),
		Phone: firstNonEmpty(strings.TrimSpace(cmd.ContactPhone), address.Phone),
	}
}

func (s *checkoutService) cleanNote(note string) string {
	return norm.NFC.String(strings.TrimSpace(s.sanitize.Sanitize(note)))
}

func (s *checkoutService) transitionError(from, to domain.CheckoutState) error {
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
}

func (s *checkoutService) translateCheckoutError(ctx context.Context, err error) error {
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return ErrCheckoutNotFound
		case repoErr.IsConflict():
			return ErrCheckoutConflict
		}
	}
	s.logger(ctx, "checkout.repository_error", map[string]any{"error": err.Error()})
	return ErrCheckoutUnavailable
}

func guestFieldNames() []string {
	names := make([]string, 0, len(guestRequiredFields))
	for _, field := range guestRequiredFields {
		names = append(names, field.name)
	}
	return names
}
