package services

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/text/unicode/norm"

	"github.com/clovemart/api/internal/repositories"
)

var (
	// ErrNoAddress indicates an authenticated user has no saved addresses.
	ErrNoAddress = errors.New("address: no saved address")
	// ErrIncompleteGuestInfo indicates the guest shipping form is missing required fields.
	ErrIncompleteGuestInfo = errors.New("address: incomplete guest info")
	// ErrAddressUnavailable indicates the address store is currently unavailable.
	ErrAddressUnavailable = errors.New("address: unavailable")
)

// GuestInfoError lists the guest form fields that failed validation.
type GuestInfoError struct {
	Missing []string
}

// Error implements the error interface.
func (e *GuestInfoError) Error() string {
	return fmt.Sprintf("address: incomplete guest info: missing %s", strings.Join(e.Missing, ", "))
}

// Unwrap lets callers match with errors.Is(err, ErrIncompleteGuestInfo).
func (e *GuestInfoError) Unwrap() error { return ErrIncompleteGuestInfo }

// AddressResolverDeps wires the dependencies for the resolver.
type AddressResolverDeps struct {
	Addresses repositories.AddressRepository
	Logger    func(ctx context.Context, event string, fields map[string]any)
}

type addressResolver struct {
	addresses repositories.AddressRepository
	sanitize  *bluemonday.Policy
	logger    func(ctx context.Context, event string, fields map[string]any)
}

// NewAddressResolver constructs an AddressResolver over the saved address book.
func NewAddressResolver(deps AddressResolverDeps) (AddressResolver, error) {
	if deps.Addresses == nil {
		return nil, errors.New("address resolver: address repository is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &addressResolver{
		addresses: deps.Addresses,
		sanitize:  bluemonday.StrictPolicy(),
		logger:    logger,
	}, nil
}

// Resolve picks the default saved address, falling back to the first one.
func (r *addressResolver) Resolve(ctx context.Context, userID string) (Address, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return Address{}, ErrNoAddress
	}

	addresses, err := r.addresses.List(ctx, userID)
	if err != nil {
		r.logger(ctx, "address.list_failed", map[string]any{"userID": userID, "error": err.Error()})
		return Address{}, ErrAddressUnavailable
	}
	if len(addresses) == 0 {
		return Address{}, ErrNoAddress
	}

	for _, addr := range addresses {
		if addr.IsDefault {
			return addr, nil
		}
	}
	return addresses[0], nil
}

// guestRequiredFields maps the wire field names to their form accessors, in
// the order missing fields are reported.
var guestRequiredFields = []struct {
	name  string
	value func(GuestShippingForm) string
}{
	{"fullName", func(f GuestShippingForm) string { return f.FullName }},
	{"line1", func(f GuestShippingForm) string { return f.Line1 }},
	{"city", func(f GuestShippingForm) string { return f.City }},
	{"postalCode", func(f GuestShippingForm) string { return f.PostalCode }},
	{"country", func(f GuestShippingForm) string { return f.Country }},
	{"contactEmail", func(f GuestShippingForm) string { return f.ContactEmail }},
	{"contactPhone", func(f GuestShippingForm) string { return f.ContactPhone }},
}

// ValidateGuest validates the guest form and returns the cleaned address and
// contact. Missing fields are reported together rather than one at a time.
func (r *addressResolver) ValidateGuest(form GuestShippingForm) (Address, Contact, error) {
	var missing []string
	for _, field := range guestRequiredFields {
		if strings.TrimSpace(field.value(form)) == "" {
			missing = append(missing, field.name)
		}
	}

	email := strings.TrimSpace(form.ContactEmail)
	if email != "" {
		if _, err := mail.ParseAddress(email); err != nil {
			missing = append(missing, "contactEmail")
		}
	}

	if len(missing) > 0 {
		return Address{}, Contact{}, &GuestInfoError{Missing: dedupeFields(missing)}
	}

	address := Address{
		FullName:   r.cleanText(form.FullName),
		Line1:      r.cleanText(form.Line1),
		Line2:      r.cleanText(form.Line2),
		City:       r.cleanText(form.City),
		State:      r.cleanText(form.State),
		PostalCode: strings.TrimSpace(form.PostalCode),
		Country:    strings.ToUpper(strings.TrimSpace(form.Country)),
		Phone:      strings.TrimSpace(form.ContactPhone),
	}
	contact := Contact{
		Email: strings.ToLower(email),
		Phone: strings.TrimSpace(form.ContactPhone),
	}
	return address, contact, nil
}

// cleanText strips markup and normalises free-text input to NFC.
func (r *addressResolver) cleanText(value string) string {
	return norm.NFC.String(strings.TrimSpace(r.sanitize.Sanitize(value)))
}

func dedupeFields(fields []string) []string {
	seen := make(map[string]struct{}, len(fields))
	out := fields[:0]
	for _, f := range fields {
		if _, ok := seen[f]; ok {
			continue
		}
		seen[f] = struct{}{}
		out = append(out, f)
	}
	return out
}
