package testutil

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

const testSigningKey = "test-secret-key"

// AccessToken mints HS256 JWT that expires at exp
func AccessToken(t testing.TB, exp time.Time) string {
	return AccessTokenWithKey(t, exp, testSigningKey)
}

func AccessTokenWithKey(t testing.TB, exp time.Time, key string) string {
	t.Helper()

	return sign(t, key, jwt.RegisteredClaims{
		ID:        uuid.NewString(),
		IssuedAt:  jwt.NewNumericDate(time.Now()),
		ExpiresAt: jwt.NewNumericDate(exp),
	})
}

func AccessTokenWithoutExpiry(t testing.TB) string {
	t.Helper()

	return sign(t, testSigningKey, jwt.RegisteredClaims{ID: uuid.NewString()})
}

func sign(t testing.TB, key string, claims jwt.RegisteredClaims) string {
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(key))
	require.NoError(t, err, "test token should be signed")
	return token
}
