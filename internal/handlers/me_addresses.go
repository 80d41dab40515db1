package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/clovemart/api/internal/platform/auth"
	"github.com/clovemart/api/internal/platform/httpx"
	"github.com/clovemart/api/internal/services"
)

const maxAddressBodySize = 16 * 1024

// AddressHandlers manages the authenticated user's saved address book.
type AddressHandlers struct {
	authn     *auth.Authenticator
	addresses services.AddressService
}

// NewAddressHandlers constructs the saved address handlers.
func NewAddressHandlers(authn *auth.Authenticator, addresses services.AddressService) *AddressHandlers {
	return &AddressHandlers{
		authn:     authn,
		addresses: addresses,
	}
}

// Routes wires the /me/addresses endpoints onto the provided router.
func (h *AddressHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth())
	}
	r.Get("/", h.list)
	r.Post("/", h.create)
	r.Put("/{addressID}", h.update)
	r.Delete("/{addressID}", h.remove)
	r.Post("/{addressID}/default", h.setDefault)
}

func (h *AddressHandlers) list(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := h.requireIdentity(w, r)
	if !ok {
		return
	}

	addresses, err := h.addresses.ListAddresses(ctx, identity.UID)
	if err != nil {
		h.writeAddressError(ctx, w, err)
		return
	}

	items := make([]addressPayload, 0, len(addresses))
	for _, addr := range addresses {
		items = append(items, buildAddressPayload(addr))
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"addresses": items})
}

type addressRequest struct {
	FullName   string `json:"fullName"`
	Line1      string `json:"line1"`
	Line2      string `json:"line2"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postalCode"`
	Country    string `json:"country"`
	Phone      string `json:"phone"`
	IsDefault  bool   `json:"isDefault"`
}

func (h *AddressHandlers) create(w http.ResponseWriter, r *http.Request) {
	h.upsert(w, r, nil)
}

func (h *AddressHandlers) update(w http.ResponseWriter, r *http.Request) {
	addressID := strings.TrimSpace(chi.URLParam(r, "addressID"))
	if addressID == "" {
		httpx.WriteError(r.Context(), w, httpx.NewError("invalid_request", "address id is required", http.StatusBadRequest))
		return
	}
	h.upsert(w, r, &addressID)
}

func (h *AddressHandlers) upsert(w http.ResponseWriter, r *http.Request, addressID *string) {
	ctx := r.Context()
	identity, ok := h.requireIdentity(w, r)
	if !ok {
		return
	}

	body, err := readLimitedBody(r, maxAddressBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}
	var req addressRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body must be valid JSON", http.StatusBadRequest))
		return
	}

	address, err := h.addresses.UpsertAddress(ctx, services.UpsertAddressCommand{
		UserID:    identity.UID,
		AddressID: addressID,
		Address: services.Address{
			FullName:   req.FullName,
			Line1:      req.Line1,
			Line2:      req.Line2,
			City:       req.City,
			State:      req.State,
			PostalCode: req.PostalCode,
			Country:    req.Country,
			Phone:      req.Phone,
		},
		SetDefault: req.IsDefault,
	})
	if err != nil {
		h.writeAddressError(ctx, w, err)
		return
	}

	status := http.StatusOK
	if addressID == nil {
		status = http.StatusCreated
	}
	writeJSONResponse(w, status, map[string]any{"address": buildAddressPayload(address)})
}

func (h *AddressHandlers) remove(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := h.requireIdentity(w, r)
	if !ok {
		return
	}

	if err := h.addresses.DeleteAddress(ctx, identity.UID, chi.URLParam(r, "addressID")); err != nil {
		h.writeAddressError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AddressHandlers) setDefault(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := h.requireIdentity(w, r)
	if !ok {
		return
	}

	address, err := h.addresses.SetDefaultAddress(ctx, identity.UID, chi.URLParam(r, "addressID"))
	if err != nil {
		h.writeAddressError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"address": buildAddressPayload(address)})
}

func (h *AddressHandlers) requireIdentity(w http.ResponseWriter, r *http.Request) (*auth.Identity, bool) {
	ctx := r.Context()
	if h.addresses == nil {
		httpx.WriteError(ctx, w, httpx.NewError("address_service_unavailable", "address service unavailable", http.StatusServiceUnavailable))
		return nil, false
	}
	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || identity == nil || strings.TrimSpace(identity.UID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return nil, false
	}
	return identity, true
}

func (h *AddressHandlers) writeAddressError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrAddressInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrAddressNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("address_not_found", "address not found", http.StatusNotFound))
	case errors.Is(err, services.ErrAddressUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("address_service_unavailable", "address service unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("address_error", "failed to process address request", http.StatusInternalServerError))
	}
}

type addressPayload struct {
	ID         string `json:"id,omitempty"`
	FullName   string `json:"fullName"`
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city"`
	State      string `json:"state,omitempty"`
	PostalCode string `json:"postalCode"`
	Country    string `json:"country"`
	Phone      string `json:"phone,omitempty"`
	IsDefault  bool   `json:"isDefault"`
	CreatedAt  string `json:"createdAt,omitempty"`
	UpdatedAt  string `json:"updatedAt,omitempty"`
}

func buildAddressPayload(addr services.Address) addressPayload {
	return addressPayload{
		ID:         addr.ID,
		FullName:   addr.FullName,
		Line1:      addr.Line1,
		Line2:      addr.Line2,
		City:       addr.City,
		State:      addr.State,
		PostalCode: addr.PostalCode,
		Country:    addr.Country,
		Phone:      addr.Phone,
		IsDefault:  addr.IsDefault,
		CreatedAt:  formatTime(addr.CreatedAt),
		UpdatedAt:  formatTime(addr.UpdatedAt),
	}
}
