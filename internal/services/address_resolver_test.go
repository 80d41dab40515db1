package services

import (
	"context"
	"errors"
	"slices"
	"testing"

	domain "github.com/clovemart/api/internal/domain"
)

func newResolverFixture(t *testing.T, repo *stubAddressRepository) AddressResolver {
	t.Helper()
	resolver, err := NewAddressResolver(AddressResolverDeps{Addresses: repo})
	if err != nil {
		t.Fatalf("NewAddressResolver returned error: %v", err)
	}
	return resolver
}

func validGuestForm() GuestShippingForm {
	return GuestShippingForm{
		FullName:     "Asha Nair",
		Line1:        "12 MG Road",
		City:         "Bengaluru",
		State:        "KA",
		PostalCode:   "560001",
		Country:      "in",
		ContactEmail: "Asha@Example.com",
		ContactPhone: "+91-9000000000",
	}
}

func TestResolvePrefersDefaultAddress(t *testing.T) {
	resolver := newResolverFixture(t, &stubAddressRepository{
		list: func(ctx context.Context, userID string) ([]domain.Address, error) {
			return []domain.Address{
				{ID: "addr_1", City: "Mumbai"},
				{ID: "addr_2", City: "Pune", IsDefault: true},
			}, nil
		},
	})

	addr, err := resolver.Resolve(context.Background(), "u_1")
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if addr.ID != "addr_2" {
		t.Fatalf("expected the default address, got %q", addr.ID)
	}
}

func TestResolveFallsBackToFirstAddress(t *testing.T) {
	resolver := newResolverFixture(t, &stubAddressRepository{
		list: func(ctx context.Context, userID string) ([]domain.Address, error) {
			return []domain.Address{
				{ID: "addr_1", City: "Mumbai"},
				{ID: "addr_2", City: "Pune"},
			}, nil
		},
	})

	addr, err := resolver.Resolve(context.Background(), "u_1")
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if addr.ID != "addr_1" {
		t.Fatalf("expected the first address, got %q", addr.ID)
	}
}

func TestResolveNoSavedAddresses(t *testing.T) {
	resolver := newResolverFixture(t, &stubAddressRepository{
		list: func(ctx context.Context, userID string) ([]domain.Address, error) {
			return nil, nil
		},
	})

	if _, err := resolver.Resolve(context.Background(), "u_1"); !errors.Is(err, ErrNoAddress) {
		t.Fatalf("expected ErrNoAddress, got %v", err)
	}
}

func TestValidateGuestReportsAllMissingFields(t *testing.T) {
	resolver := newResolverFixture(t, &stubAddressRepository{})

	form := validGuestForm()
	form.ContactEmail = ""
	form.PostalCode = " "
	form.FullName = ""

	_, _, err := resolver.ValidateGuest(form)
	if !errors.Is(err, ErrIncompleteGuestInfo) {
		t.Fatalf("expected ErrIncompleteGuestInfo, got %v", err)
	}
	var guestErr *GuestInfoError
	if !errors.As(err, &guestErr) {
		t.Fatalf("expected *GuestInfoError, got %T", err)
	}
	for _, field := range []string{"fullName", "postalCode", "contactEmail"} {
		if !slices.Contains(guestErr.Missing, field) {
			t.Fatalf("missing fields %v should include %q", guestErr.Missing, field)
		}
	}
}

func TestValidateGuestRejectsMalformedEmail(t *testing.T) {
	resolver := newResolverFixture(t, &stubAddressRepository{})

	form := validGuestForm()
	form.ContactEmail = "not-an-email"

	_, _, err := resolver.ValidateGuest(form)
	var guestErr *GuestInfoError
	if !errors.As(err, &guestErr) {
		t.Fatalf("expected *GuestInfoError, got %v", err)
	}
	if !slices.Contains(guestErr.Missing, "contactEmail") {
		t.Fatalf("malformed email should report contactEmail, got %v", guestErr.Missing)
	}
}

func TestValidateGuestCleansInput(t *testing.T) {
	resolver := newResolverFixture(t, &stubAddressRepository{})

	form := validGuestForm()
	form.FullName = "  <b>Asha</b> Nair "

	addr, contact, err := resolver.ValidateGuest(form)
	if err != nil {
		t.Fatalf("ValidateGuest returned error: %v", err)
	}
	if addr.FullName != "Asha Nair" {
		t.Fatalf("expected markup stripped from name, got %q", addr.FullName)
	}
	if addr.Country != "IN" {
		t.Fatalf("expected country upper-cased, got %q", addr.Country)
	}
	if contact.Email != "asha@example.com" {
		t.Fatalf("expected email lower-cased, got %q", contact.Email)
	}
}
