package oauth

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"testing"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signIDToken(t *testing.T, key *rsa.PrivateKey, claims jwt.MapClaims) string {
	t.Helper()
	raw, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(key)
	require.NoError(t, err)
	return raw
}

func TestGoogleIDTokenVerifier(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	otherKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	keySet := &oidc.StaticKeySet{PublicKeys: []crypto.PublicKey{&key.PublicKey}}
	verifier := newGoogleIDTokenVerifier(keySet, "client-id", func() time.Time { return now })
	ctx := context.Background()

	base := func() jwt.MapClaims {
		return jwt.MapClaims{
			"iss":            "https://accounts.google.com",
			"aud":            "client-id",
			"sub":            "110169484474386276334",
			"email":          "ada@example.com",
			"email_verified": true,
			"name":           "Ada",
			"iat":            now.Add(-time.Minute).Unix(),
			"exp":            now.Add(time.Hour).Unix(),
		}
	}

	t.Run("valid", func(t *testing.T) {
		profile, err := verifier.Verify(ctx, signIDToken(t, key, base()))
		require.NoError(t, err)
		assert.Equal(t, Google, profile.Provider)
		assert.Equal(t, "110169484474386276334", profile.ExternalID)
		assert.Equal(t, "ada@example.com", profile.Email)
		assert.Equal(t, "Ada", profile.Name)
	})

	t.Run("short issuer accepted", func(t *testing.T) {
		claims := base()
		claims["iss"] = "accounts.google.com"
		_, err := verifier.Verify(ctx, signIDToken(t, key, claims))
		assert.NoError(t, err)
	})

	t.Run("foreign issuer", func(t *testing.T) {
		claims := base()
		claims["iss"] = "https://evil.example.com"
		_, err := verifier.Verify(ctx, signIDToken(t, key, claims))
		assert.ErrorIs(t, err, ErrInvalidIDToken)
	})

	t.Run("wrong audience", func(t *testing.T) {
		claims := base()
		claims["aud"] = "someone-else"
		_, err := verifier.Verify(ctx, signIDToken(t, key, claims))
		assert.ErrorIs(t, err, ErrInvalidIDToken)
	})

	t.Run("expired", func(t *testing.T) {
		claims := base()
		claims["exp"] = now.Add(-time.Minute).Unix()
		_, err := verifier.Verify(ctx, signIDToken(t, key, claims))
		assert.ErrorIs(t, err, ErrInvalidIDToken)
	})

	t.Run("unknown signing key", func(t *testing.T) {
		_, err := verifier.Verify(ctx, signIDToken(t, otherKey, base()))
		assert.ErrorIs(t, err, ErrInvalidIDToken)
	})

	t.Run("unverified email", func(t *testing.T) {
		claims := base()
		claims["email_verified"] = false
		_, err := verifier.Verify(ctx, signIDToken(t, key, claims))
		assert.ErrorIs(t, err, ErrUnverifiedEmail)
	})
}
