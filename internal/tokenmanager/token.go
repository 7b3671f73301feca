// Package tokenmanager reads access tokens on the client side.
//
// The client has no key to verify signatures, so tokens are decoded without verification
// and only the expiry claim is trusted. The server stays the authority on validity.
package tokenmanager

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/nkiryanov/authsession/internal/apperrors"
)

var parser = jwt.NewParser()

// Return the embedded expiry time of the access token
// Tokens that are not JWTs or have no 'exp' claim return apperrors.ErrTokenDecode
func ExpiresAt(access string) (time.Time, error) {
	claims := &jwt.RegisteredClaims{}

	_, _, err := parser.ParseUnverified(access, claims)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %w", apperrors.ErrTokenDecode, err)
	}

	if claims.ExpiresAt == nil {
		return time.Time{}, fmt.Errorf("%w: no exp claim", apperrors.ErrTokenDecode)
	}

	return claims.ExpiresAt.Time, nil
}

// Token is expired if its expiry is at or before now, or if it can't be decoded at all
func IsExpired(access string, now time.Time) bool {
	expiresAt, err := ExpiresAt(access)
	if err != nil {
		return true
	}

	return !expiresAt.After(now)
}
