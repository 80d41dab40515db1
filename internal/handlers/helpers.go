package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/clovemart/api/internal/platform/auth"
)

const defaultBodyLimit = 64 * 1024

var (
	errBodyTooLarge     = errors.New("request body too large")
	errEmptyBody        = errors.New("request body is required")
	errUnauthenticated  = errors.New("authentication required")
	errInvalidGuestID   = errors.New("guest id must be 8-64 characters of [A-Za-z0-9_-]")
	errGuestsNotAllowed = errors.New("guest access is disabled")
)

// Guests identify their cart through a client-generated opaque token. The
// prefix keeps guest owner keys from ever colliding with Firebase UIDs.
const (
	guestIDHeader    = "X-Guest-Id"
	guestOwnerPrefix = "guest:"
)

var guestIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{8,64}$`)

// caller identifies who a storefront request acts on behalf of. OwnerID keys
// carts and checkout sessions; UserID is empty for guests.
type caller struct {
	OwnerID string
	UserID  string
	Email   string
}

func resolveCaller(r *http.Request, allowGuest bool) (caller, error) {
	if identity, ok := auth.IdentityFromContext(r.Context()); ok && identity != nil {
		if uid := strings.TrimSpace(identity.UID); uid != "" {
			return caller{OwnerID: uid, UserID: uid, Email: identity.Email}, nil
		}
	}
	if !allowGuest {
		return caller{}, errUnauthenticated
	}

	guestID := strings.TrimSpace(r.Header.Get(guestIDHeader))
	if guestID == "" {
		return caller{}, errUnauthenticated
	}
	if !guestIDPattern.MatchString(guestID) {
		return caller{}, errInvalidGuestID
	}
	return caller{OwnerID: guestOwnerPrefix + guestID}, nil
}

func readLimitedBody(r *http.Request, limit int64) ([]byte, error) {
	if r == nil || r.Body == nil {
		return nil, errEmptyBody
	}
	if limit <= 0 {
		limit = defaultBodyLimit
	}
	reader := io.LimitReader(r.Body, limit+1)
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, err
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, errEmptyBody
	}
	if int64(len(data)) > limit {
		return nil, errBodyTooLarge
	}
	return data, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func cloneMap(src map[string]any) map[string]any {
	if len(src) == 0 {
		return nil
	}
	out := make(map[string]any, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}

func writeJSONResponse(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
