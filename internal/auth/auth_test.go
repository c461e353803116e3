package auth

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signHMAC(t *testing.T, secret string, claims jwt.RegisteredClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func TestChainResolvesInOrder(t *testing.T) {
	chain := Chain{
		DevBypass{Paths: []string{"/health", "/ai/generate"}},
		StaticToken{Token: "test-token"},
	}

	request := httptest.NewRequest("POST", "/ai/generate", nil)
	userID, ok := chain.Resolve(request)
	require.True(t, ok)
	assert.Equal(t, DevUserID, userID)

	request = httptest.NewRequest("GET", "/reports", nil)
	request.Header.Set("Authorization", "Bearer test-token")
	userID, ok = chain.Resolve(request)
	require.True(t, ok)
	assert.Equal(t, TestUserID, userID)

	request = httptest.NewRequest("GET", "/reports", nil)
	request.Header.Set("Authorization", "Bearer other")
	_, ok = chain.Resolve(request)
	assert.False(t, ok)
}

func TestStaticTokenDisabledWhenEmpty(t *testing.T) {
	request := httptest.NewRequest("GET", "/reports", nil)
	request.Header.Set("Authorization", "Bearer ")
	_, ok := StaticToken{}.Resolve(request)
	assert.False(t, ok)
}

func TestJWTResolverHMAC(t *testing.T) {
	resolver, err := NewJWTResolver(context.Background(), JWTConfig{HMACSecret: "s3cret", Issuer: "hiyari"})
	require.NoError(t, err)
	require.NotNil(t, resolver)

	valid := signHMAC(t, "s3cret", jwt.RegisteredClaims{
		Subject:   "user-42",
		Issuer:    "hiyari",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	request := httptest.NewRequest("GET", "/me/level", nil)
	request.Header.Set("Authorization", "Bearer "+valid)
	userID, ok := resolver.Resolve(request)
	require.True(t, ok)
	assert.Equal(t, "user-42", userID)

	wrongIssuer := signHMAC(t, "s3cret", jwt.RegisteredClaims{Subject: "user-42", Issuer: "other"})
	_, err = resolver.Subject(wrongIssuer)
	assert.Error(t, err)

	expired := signHMAC(t, "s3cret", jwt.RegisteredClaims{
		Subject:   "user-42",
		Issuer:    "hiyari",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
	})
	_, err = resolver.Subject(expired)
	assert.ErrorIs(t, err, jwt.ErrTokenExpired)

	badSignature := signHMAC(t, "other", jwt.RegisteredClaims{Subject: "user-42", Issuer: "hiyari"})
	_, err = resolver.Subject(badSignature)
	assert.ErrorIs(t, err, jwt.ErrTokenSignatureInvalid)
}

func TestNewJWTResolverDisabledWithoutKeys(t *testing.T) {
	resolver, err := NewJWTResolver(context.Background(), JWTConfig{})
	require.NoError(t, err)
	assert.Nil(t, resolver)
}

func TestUserIDContext(t *testing.T) {
	_, ok := UserID(context.Background())
	assert.False(t, ok)

	userID, ok := UserID(WithUserID(context.Background(), "u1"))
	require.True(t, ok)
	assert.Equal(t, "u1", userID)
}
