// Package storage defines the key/value scopes the session is persisted in.
//
// A session is split across two scopes: an ephemeral one that dies with the process
// (access token and profile) and a durable one that survives restarts (refresh token).
package storage

import (
	"context"
)

// Keys of the persisted session layout
const (
	KeyAccessToken     = "access-token"
	KeyUserInformation = "user-information"
	KeyRefreshToken    = "refresh-token"
)

// Scope is a flat string key/value store
type Scope interface {
	// Return the value or apperrors.ErrNotFound if key is absent
	Get(ctx context.Context, key string) (string, error)

	// Set value, overwriting any previous one
	Set(ctx context.Context, key string, value string) error

	// Delete value. Deleting an absent key is not an error
	Delete(ctx context.Context, key string) error
}
