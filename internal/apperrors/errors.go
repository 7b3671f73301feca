package apperrors

import (
	"errors"
)

var (
	// Storage layer
	ErrNotFound           = errors.New("value not found")
	ErrStorageUnavailable = errors.New("storage unavailable")

	// Token lifecycle
	ErrNoRefreshToken    = errors.New("no refresh token")
	ErrRefreshRejected   = errors.New("refresh rejected by server")
	ErrMalformedResponse = errors.New("malformed server response")
	ErrTokenDecode       = errors.New("access token can not be decoded")

	// Auth flow
	ErrValidation = errors.New("validation failed")
)
