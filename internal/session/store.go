package session

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/nkiryanov/authsession/internal/apperrors"
	"github.com/nkiryanov/authsession/internal/logger"
	"github.com/nkiryanov/authsession/internal/models"
	"github.com/nkiryanov/authsession/internal/storage"
)

// Store owns the persisted session
//
// Access token and profile live in the ephemeral scope, refresh token in the durable one.
// Every operation holds one lock across both scopes, so readers never see half of a session.
// Storage faults are logged and absorbed: reads report absent values, writes are dropped.
type Store struct {
	mu sync.RWMutex

	ephemeral storage.Scope
	durable   storage.Scope
	logger    logger.Logger
}

func NewStore(ephemeral storage.Scope, durable storage.Scope, l logger.Logger) (*Store, error) {
	if ephemeral == nil || durable == nil {
		return nil, errors.New("both storage scopes must be set")
	}
	if l == nil {
		l = logger.NewNoOpLogger()
	}

	return &Store{
		ephemeral: ephemeral,
		durable:   durable,
		logger:    l.With("component", "session_store"),
	}, nil
}

// Save replaces the whole session
func (s *Store) Save(ctx context.Context, pair models.TokenPair, profile models.UserProfile) {
	data, err := json.Marshal(profile)
	if err != nil {
		s.logger.Error("Failed to encode user profile", "error", err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.set(ctx, s.ephemeral, storage.KeyAccessToken, pair.AccessToken)
	s.set(ctx, s.ephemeral, storage.KeyUserInformation, string(data))
	s.set(ctx, s.durable, storage.KeyRefreshToken, pair.RefreshToken)
}

func (s *Store) AccessToken(ctx context.Context) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.get(ctx, s.ephemeral, storage.KeyAccessToken)
}

func (s *Store) RefreshToken(ctx context.Context) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.get(ctx, s.durable, storage.KeyRefreshToken)
}

func (s *Store) UserProfile(ctx context.Context) (models.UserProfile, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.profile(ctx)
}

// Replace only the access token. Used by the refresh flow
func (s *Store) UpdateAccessToken(ctx context.Context, access string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.set(ctx, s.ephemeral, storage.KeyAccessToken, access)
}

// Replace only the profile. Used by profile sync
func (s *Store) UpdateUserProfile(ctx context.Context, profile models.UserProfile) {
	data, err := json.Marshal(profile)
	if err != nil {
		s.logger.Error("Failed to encode user profile", "error", err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.set(ctx, s.ephemeral, storage.KeyUserInformation, string(data))
}

// Clear removes the session from both scopes. Safe to call on an empty store
func (s *Store) Clear(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.delete(ctx, s.ephemeral, storage.KeyAccessToken)
	s.delete(ctx, s.ephemeral, storage.KeyUserInformation)
	s.delete(ctx, s.durable, storage.KeyRefreshToken)
}

// HasSession reports a session usable by UI: access token and profile both present
// Refresh token alone is only a way to get one back
func (s *Store) HasSession(ctx context.Context) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, hasAccess := s.get(ctx, s.ephemeral, storage.KeyAccessToken)
	_, hasProfile := s.profile(ctx)
	return hasAccess && hasProfile
}

// Session returns a consistent snapshot of everything stored
func (s *Store) Session(ctx context.Context) models.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var snapshot models.Session

	if profile, ok := s.profile(ctx); ok {
		snapshot.Profile = &profile
	}

	access, hasAccess := s.get(ctx, s.ephemeral, storage.KeyAccessToken)
	refresh, hasRefresh := s.get(ctx, s.durable, storage.KeyRefreshToken)
	if hasAccess || hasRefresh {
		snapshot.Tokens = &models.TokenPair{
			AccessToken:  access,
			RefreshToken: refresh,
			TokenType:    models.TokenTypeBearer,
		}
	}

	return snapshot
}

func (s *Store) profile(ctx context.Context) (models.UserProfile, bool) {
	var profile models.UserProfile

	data, ok := s.get(ctx, s.ephemeral, storage.KeyUserInformation)
	if !ok {
		return profile, false
	}

	if err := json.Unmarshal([]byte(data), &profile); err != nil {
		s.logger.Warn("Stored user profile is corrupted, treat as absent", "error", err)
		return models.UserProfile{}, false
	}
	return profile, true
}

// Empty values are never stored: absent and empty mean the same for the session
func (s *Store) get(ctx context.Context, scope storage.Scope, key string) (string, bool) {
	value, err := scope.Get(ctx, key)
	switch {
	case err == nil:
		return value, value != ""
	case errors.Is(err, apperrors.ErrNotFound):
		return "", false
	default:
		s.logger.Warn("Storage read failed, treat as absent", "key", key, "error", err)
		return "", false
	}
}

func (s *Store) set(ctx context.Context, scope storage.Scope, key string, value string) {
	if value == "" {
		s.delete(ctx, scope, key)
		return
	}

	if err := scope.Set(ctx, key, value); err != nil {
		s.logger.Error("Storage write failed", "key", key, "error", err)
	}
}

func (s *Store) delete(ctx context.Context, scope storage.Scope, key string) {
	if err := scope.Delete(ctx, key); err != nil {
		s.logger.Error("Storage delete failed", "key", key, "error", err)
	}
}
