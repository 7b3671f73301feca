package keyring

import (
	"context"
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"

	"github.com/nkiryanov/authsession/internal/apperrors"
)

const DefaultService = "authsession"

// Scope keeps values in the OS keyring (Keychain, Secret Service, Windows Credential Manager)
// Every key is a separate secret under the same service name
type Scope struct {
	service string
}

func New(service string) *Scope {
	if service == "" {
		service = DefaultService
	}
	return &Scope{service: service}
}

func (s *Scope) Get(_ context.Context, key string) (string, error) {
	value, err := keyring.Get(s.service, key)
	switch {
	case err == nil:
		return value, nil
	case errors.Is(err, keyring.ErrNotFound):
		return "", apperrors.ErrNotFound
	default:
		return "", fmt.Errorf("keyring get %q: %w", key, errors.Join(apperrors.ErrStorageUnavailable, err))
	}
}

func (s *Scope) Set(_ context.Context, key string, value string) error {
	if err := keyring.Set(s.service, key, value); err != nil {
		return fmt.Errorf("keyring set %q: %w", key, errors.Join(apperrors.ErrStorageUnavailable, err))
	}
	return nil
}

func (s *Scope) Delete(_ context.Context, key string) error {
	err := keyring.Delete(s.service, key)
	if err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("keyring delete %q: %w", key, errors.Join(apperrors.ErrStorageUnavailable, err))
	}
	return nil
}
