package auth

import (
	"context"
	"testing"
	"time"

	"github.com/Shivanand-hulikatti/club-ride-registration/internal/model"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const secret = "super-secret-jwt-token-with-at-least-32-characters"

func signAccess(t *testing.T, key string, method jwt.SigningMethod, claims AccessClaims) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(method, claims).SignedString([]byte(key))
	require.NoError(t, err)
	return tok
}

func validClaims() AccessClaims {
	return AccessClaims{
		Email: "rider@example.com",
		Role:  "authenticated",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-1",
			Audience:  jwt.ClaimStrings{"authenticated"},
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
}

func TestVerifier(t *testing.T) {
	v := NewVerifier(secret, "authenticated")

	t.Run("valid", func(t *testing.T) {
		id, err := v.Verify(signAccess(t, secret, jwt.SigningMethodHS256, validClaims()))
		require.NoError(t, err)
		assert.Equal(t, Identity{UserID: "user-1", Email: "rider@example.com"}, id)
	})

	t.Run("wrong secret", func(t *testing.T) {
		_, err := v.Verify(signAccess(t, "another-secret", jwt.SigningMethodHS256, validClaims()))
		assert.ErrorIs(t, err, model.ErrUnauthorized)
	})

	t.Run("wrong algorithm", func(t *testing.T) {
		_, err := v.Verify(signAccess(t, secret, jwt.SigningMethodHS512, validClaims()))
		assert.ErrorIs(t, err, model.ErrUnauthorized)
	})

	t.Run("expired", func(t *testing.T) {
		c := validClaims()
		c.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))
		_, err := v.Verify(signAccess(t, secret, jwt.SigningMethodHS256, c))
		assert.ErrorIs(t, err, model.ErrUnauthorized)
	})

	t.Run("wrong audience", func(t *testing.T) {
		c := validClaims()
		c.Audience = jwt.ClaimStrings{"anon"}
		_, err := v.Verify(signAccess(t, secret, jwt.SigningMethodHS256, c))
		assert.ErrorIs(t, err, model.ErrUnauthorized)
	})

	t.Run("missing subject", func(t *testing.T) {
		c := validClaims()
		c.Subject = ""
		_, err := v.Verify(signAccess(t, secret, jwt.SigningMethodHS256, c))
		assert.ErrorIs(t, err, model.ErrUnauthorized)
	})

	t.Run("empty token", func(t *testing.T) {
		_, err := v.Verify("")
		assert.ErrorIs(t, err, model.ErrUnauthorized)
	})

	t.Run("no secret configured", func(t *testing.T) {
		_, err := NewVerifier("", "").Verify("abc")
		assert.ErrorIs(t, err, model.ErrConfiguration)
	})
}

func TestBearerToken(t *testing.T) {
	assert.Equal(t, "abc.def", BearerToken("Bearer abc.def"))
	assert.Equal(t, "abc.def", BearerToken("bearer  abc.def "))
	assert.Equal(t, "", BearerToken("Basic Zm9vOmJhcg=="))
	assert.Equal(t, "", BearerToken(""))
}

func TestIdentityContext(t *testing.T) {
	_, ok := IdentityFrom(context.Background())
	assert.False(t, ok)

	ctx := WithIdentity(context.Background(), Identity{UserID: "u"})
	id, ok := IdentityFrom(ctx)
	require.True(t, ok)
	assert.Equal(t, "u", id.UserID)
}

func TestLinkTokens(t *testing.T) {
	issued := time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)
	tokens := NewLinkTokens(secret, 48*time.Hour)
	tokens.now = func() time.Time { return issued }

	p := model.Promotion{RegistrationID: "reg-1", EventID: 42, RideLevel: "B", UserID: "user-9"}
	tok, err := tokens.Issue(p)
	require.NoError(t, err)

	claims, err := tokens.Parse(tok)
	require.NoError(t, err)
	assert.Equal(t, int64(42), claims.EventID)
	assert.Equal(t, "B", claims.RideLevel)
	assert.Equal(t, "user-9", claims.Subject)
	assert.Equal(t, "reg-1", claims.ID)

	t.Run("expired", func(t *testing.T) {
		tokens.now = func() time.Time { return issued.Add(49 * time.Hour) }
		defer func() { tokens.now = func() time.Time { return issued } }()
		_, err := tokens.Parse(tok)
		assert.ErrorIs(t, err, model.ErrUnauthorized)
	})

	t.Run("access token is not a link token", func(t *testing.T) {
		_, err := tokens.Parse(signAccess(t, secret, jwt.SigningMethodHS256, validClaims()))
		assert.ErrorIs(t, err, model.ErrUnauthorized)
	})

	t.Run("missing registration id", func(t *testing.T) {
		noID, err := tokens.Issue(model.Promotion{EventID: 42, RideLevel: "B", UserID: "user-9"})
		require.NoError(t, err)
		_, err = tokens.Parse(noID)
		assert.ErrorIs(t, err, model.ErrUnauthorized)
	})

	t.Run("tampered", func(t *testing.T) {
		_, err := tokens.Parse(tok + "x")
		assert.ErrorIs(t, err, model.ErrUnauthorized)
	})
}
