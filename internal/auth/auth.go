// Package auth verifies Supabase access tokens and issues the signed links
// that let a promoted rider cancel from their email.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Shivanand-hulikatti/club-ride-registration/internal/model"
	"github.com/golang-jwt/jwt/v5"
)

// Identity is the verified caller.
type Identity struct {
	UserID string
	Email  string
}

// AccessClaims mirrors the claims Supabase puts in its access tokens.
type AccessClaims struct {
	Email string `json:"email"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}

// Verifier checks HS256 access tokens signed with the project's JWT secret.
type Verifier struct {
	secret   []byte
	audience string
}

// NewVerifier returns a Verifier. An empty audience disables the aud check.
func NewVerifier(secret, audience string) *Verifier {
	return &Verifier{secret: []byte(secret), audience: audience}
}

// Verify parses the token and returns the caller's identity.
func (v *Verifier) Verify(token string) (Identity, error) {
	if len(v.secret) == 0 {
		return Identity{}, fmt.Errorf("%w: jwt secret is not set", model.ErrConfiguration)
	}
	if token == "" {
		return Identity{}, fmt.Errorf("%w: missing access token", model.ErrUnauthorized)
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if v.audience != "" {
		opts = append(opts, jwt.WithAudience(v.audience))
	}

	claims := &AccessClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, opts...)
	if err != nil || !parsed.Valid {
		return Identity{}, fmt.Errorf("%w: invalid access token", model.ErrUnauthorized)
	}
	if claims.Subject == "" {
		return Identity{}, fmt.Errorf("%w: token has no subject", model.ErrUnauthorized)
	}
	return Identity{UserID: claims.Subject, Email: claims.Email}, nil
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) string {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

type identityKey struct{}

// WithIdentity stores the verified caller on the context.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFrom returns the caller stored by WithIdentity.
func IdentityFrom(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok
}

const cancelLinkAudience = "ride-cancel-link"

// CancelClaims binds a link token to one rider's registration.
type CancelClaims struct {
	EventID   int64  `json:"eid"`
	RideLevel string `json:"lvl"`
	jwt.RegisteredClaims
}

// LinkTokens issues and parses cancellation-link tokens.
type LinkTokens struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewLinkTokens returns a token issuer with the given lifetime.
func NewLinkTokens(secret string, ttl time.Duration) *LinkTokens {
	return &LinkTokens{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Issue signs a token for the promoted registration.
func (l *LinkTokens) Issue(p model.Promotion) (string, error) {
	if len(l.secret) == 0 {
		return "", fmt.Errorf("%w: cancel token secret is not set", model.ErrConfiguration)
	}
	now := l.now()
	claims := CancelClaims{
		EventID:   p.EventID,
		RideLevel: p.RideLevel,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.UserID,
			ID:        p.RegistrationID,
			Audience:  jwt.ClaimStrings{cancelLinkAudience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(l.ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(l.secret)
}

// Parse verifies a link token.
func (l *LinkTokens) Parse(token string) (CancelClaims, error) {
	if len(l.secret) == 0 {
		return CancelClaims{}, fmt.Errorf("%w: cancel token secret is not set", model.ErrConfiguration)
	}
	claims := CancelClaims{}
	parsed, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (interface{}, error) {
		return l.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(cancelLinkAudience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(l.now),
	)
	if err != nil || !parsed.Valid {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return CancelClaims{}, fmt.Errorf("%w: cancel link has expired", model.ErrUnauthorized)
		}
		return CancelClaims{}, fmt.Errorf("%w: invalid cancel link", model.ErrUnauthorized)
	}
	if claims.Subject == "" || claims.ID == "" || claims.EventID <= 0 || claims.RideLevel == "" {
		return CancelClaims{}, fmt.Errorf("%w: incomplete cancel link", model.ErrUnauthorized)
	}
	return claims, nil
}
