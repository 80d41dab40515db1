package auth

import (
	"errors"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v4"
)

const defaultGuestSessionTTL = 2 * time.Hour

// ErrGuestTokenInvalid indicates the guest session token failed verification.
var ErrGuestTokenInvalid = errors.New("auth: guest session token invalid")

// GuestSession binds an anonymous shopper to one checkout session. The token
// is minted when the session begins and must accompany every later call, so a
// guest id alone is not enough to act on someone else's session.
type GuestSession struct {
	Owner      string
	CheckoutID string
}

type guestClaims struct {
	jwt.RegisteredClaims
	CheckoutID string `json:"sid"`
}

// GuestSessionSigner mints and verifies HS256 session tokens for guests.
type GuestSessionSigner struct {
	secret []byte
	ttl    time.Duration
	clock  func() time.Time
}

// NewGuestSessionSigner builds a signer from the shared secret. TTL zero or
// negative falls back to two hours.
func NewGuestSessionSigner(secret string, ttl time.Duration, clock func() time.Time) (*GuestSessionSigner, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, errors.New("auth: guest session secret is required")
	}
	if ttl <= 0 {
		ttl = defaultGuestSessionTTL
	}
	if clock == nil {
		clock = time.Now
	}
	return &GuestSessionSigner{secret: []byte(secret), ttl: ttl, clock: clock}, nil
}

// Issue signs a token for the guest owner and checkout session.
func (s *GuestSessionSigner) Issue(session GuestSession) (string, error) {
	owner := strings.TrimSpace(session.Owner)
	checkoutID := strings.TrimSpace(session.CheckoutID)
	if owner == "" || checkoutID == "" {
		return "", errors.New("auth: guest session owner and checkout id are required")
	}

	now := s.clock().UTC()
	claims := guestClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   owner,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
		CheckoutID: checkoutID,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// Verify parses the token and returns the session it was issued for.
// Expired, tampered, or non-HS256 tokens fail with ErrGuestTokenInvalid.
func (s *GuestSessionSigner) Verify(token string) (GuestSession, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return GuestSession{}, ErrGuestTokenInvalid
	}

	claims := &guestClaims{}
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	parsed, err := parser.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return s.secret, nil
	})
	if err != nil || !parsed.Valid {
		return GuestSession{}, ErrGuestTokenInvalid
	}

	session := GuestSession{
		Owner:      strings.TrimSpace(claims.Subject),
		CheckoutID: strings.TrimSpace(claims.CheckoutID),
	}
	if session.Owner == "" || session.CheckoutID == "" {
		return GuestSession{}, ErrGuestTokenInvalid
	}
	return session, nil
}
