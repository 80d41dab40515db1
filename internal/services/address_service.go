package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/text/unicode/norm"

	domain "github.com/clovemart/api/internal/domain"
	"github.com/clovemart/api/internal/repositories"
)

var (
	// ErrAddressInvalidInput indicates the address payload failed validation.
	ErrAddressInvalidInput = errors.New("address: invalid input")
	// ErrAddressNotFound indicates the requested address does not exist.
	ErrAddressNotFound = errors.New("address: not found")
)

// AddressServiceDeps wires the dependencies for the address book service.
type AddressServiceDeps struct {
	Addresses repositories.AddressRepository
	Logger    func(ctx context.Context, event string, fields map[string]any)
}

type addressService struct {
	addresses repositories.AddressRepository
	sanitize  *bluemonday.Policy
	logger    func(ctx context.Context, event string, fields map[string]any)
}

// NewAddressService constructs an AddressService over the saved address book.
func NewAddressService(deps AddressServiceDeps) (AddressService, error) {
	if deps.Addresses == nil {
		return nil, errors.New("address service: address repository is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &addressService{
		addresses: deps.Addresses,
		sanitize:  bluemonday.StrictPolicy(),
		logger:    logger,
	}, nil
}

func (s *addressService) ListAddresses(ctx context.Context, userID string) ([]Address, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrAddressInvalidInput)
	}
	items, err := s.addresses.List(ctx, userID)
	if err != nil {
		return nil, s.translateAddressError(ctx, err)
	}
	return items, nil
}

// UpsertAddress creates or updates a saved address. The first address a user
// saves becomes the default.
func (s *addressService) UpsertAddress(ctx context.Context, cmd UpsertAddressCommand) (Address, error) {
	userID := strings.TrimSpace(cmd.UserID)
	if userID == "" {
		return Address{}, fmt.Errorf("%w: user id is required", ErrAddressInvalidInput)
	}

	targetID := ""
	if cmd.AddressID != nil {
		targetID = strings.TrimSpace(*cmd.AddressID)
	}

	var existing Address
	if targetID != "" {
		var err error
		existing, err = s.addresses.Get(ctx, userID, targetID)
		if err != nil {
			if isNotFound(err) {
				return Address{}, ErrAddressNotFound
			}
			return Address{}, s.translateAddressError(ctx, err)
		}
	}

	cleaned, err := s.sanitizeAddress(cmd.Address)
	if err != nil {
		return Address{}, err
	}

	hasAny, err := s.addresses.HasAny(ctx, userID)
	if err != nil {
		return Address{}, s.translateAddressError(ctx, err)
	}

	cleaned.ID = targetID
	cleaned.IsDefault = existing.IsDefault
	if cmd.SetDefault || (targetID == "" && !hasAny) {
		cleaned.IsDefault = true
	}

	var addressIDPtr *string
	if targetID != "" {
		addressIDPtr = &targetID
	}
	saved, err := s.addresses.Upsert(ctx, userID, addressIDPtr, cleaned)
	if err != nil {
		return Address{}, s.translateAddressError(ctx, err)
	}
	if saved.IsDefault && cmd.SetDefault {
		// Demoting the previous default happens repository-side.
		if saved, err = s.addresses.SetDefault(ctx, userID, saved.ID); err != nil {
			return Address{}, s.translateAddressError(ctx, err)
		}
	}
	return saved, nil
}

// DeleteAddress removes the address. When the default is deleted, the first
// remaining address is promoted so the resolver always has a pick.
func (s *addressService) DeleteAddress(ctx context.Context, userID string, addressID string) error {
	userID = strings.TrimSpace(userID)
	addressID = strings.TrimSpace(addressID)
	if userID == "" || addressID == "" {
		return fmt.Errorf("%w: user id and address id are required", ErrAddressInvalidInput)
	}

	target, err := s.addresses.Get(ctx, userID, addressID)
	if err != nil {
		if isNotFound(err) {
			return ErrAddressNotFound
		}
		return s.translateAddressError(ctx, err)
	}

	if err := s.addresses.Delete(ctx, userID, addressID); err != nil {
		return s.translateAddressError(ctx, err)
	}
	if !target.IsDefault {
		return nil
	}

	remaining, err := s.addresses.List(ctx, userID)
	if err != nil {
		return s.translateAddressError(ctx, err)
	}
	for _, addr := range remaining {
		if strings.EqualFold(addr.ID, addressID) {
			continue
		}
		if _, err := s.addresses.SetDefault(ctx, userID, addr.ID); err != nil {
			return s.translateAddressError(ctx, err)
		}
		break
	}
	return nil
}

func (s *addressService) SetDefaultAddress(ctx context.Context, userID string, addressID string) (Address, error) {
	userID = strings.TrimSpace(userID)
	addressID = strings.TrimSpace(addressID)
	if userID == "" || addressID == "" {
		return Address{}, fmt.Errorf("%w: user id and address id are required", ErrAddressInvalidInput)
	}

	saved, err := s.addresses.SetDefault(ctx, userID, addressID)
	if err != nil {
		if isNotFound(err) {
			return Address{}, ErrAddressNotFound
		}
		return Address{}, s.translateAddressError(ctx, err)
	}
	return saved, nil
}

// sanitizeAddress cleans free-text fields and enforces the required set shared
// with guest checkout validation.
func (s *addressService) sanitizeAddress(addr Address) (Address, error) {
	cleaned := domain.Address{
		FullName:   s.cleanField(addr.FullName),
		Line1:      s.cleanField(addr.Line1),
		Line2:      s.cleanField(addr.Line2),
		City:       s.cleanField(addr.City),
		State:      s.cleanField(addr.State),
		PostalCode: strings.TrimSpace(addr.PostalCode),
		Country:    strings.ToUpper(strings.TrimSpace(addr.Country)),
		Phone:      strings.TrimSpace(addr.Phone),
	}

	var missing []string
	for _, field := range []struct {
		name  string
		value string
	}{
		{"fullName", cleaned.FullName},
		{"line1", cleaned.Line1},
		{"city", cleaned.City},
		{"postalCode", cleaned.PostalCode},
		{"country", cleaned.Country},
	} {
		if field.value == "" {
			missing = append(missing, field.name)
		}
	}
	if len(missing) > 0 {
		return Address{}, fmt.Errorf("%w: missing %s", ErrAddressInvalidInput, strings.Join(missing, ", "))
	}
	return cleaned, nil
}

func (s *addressService) cleanField(value string) string {
	return norm.NFC.String(strings.TrimSpace(s.sanitize.Sanitize(value)))
}

func (s *addressService) translateAddressError(ctx context.Context, err error) error {
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) && repoErr.IsNotFound() {
		return ErrAddressNotFound
	}
	s.logger(ctx, "address.repository_error", map[string]any{"error": err.Error()})
	return ErrAddressUnavailable
}
