package session

import (
	"context"
	"time"

	"github.com/nkiryanov/authsession/internal/logger"
	"github.com/nkiryanov/authsession/internal/tokenmanager"
)

// State derives authentication status from the Store without network calls
type State struct {
	store  *Store
	now    func() time.Time
	logger logger.Logger
}

func NewState(store *Store, l logger.Logger) *State {
	if l == nil {
		l = logger.NewNoOpLogger()
	}

	return &State{
		store:  store,
		now:    time.Now,
		logger: l.With("component", "session_state"),
	}
}

// IsAuthenticated is true when the access token is alive, or when it is gone but
// a refresh token can bring it back. The refresh token is not validated here, so the
// answer is optimistic until the first renewed request succeeds.
//
// With neither, the store is cleared as a side effect and false is returned.
func (s *State) IsAuthenticated(ctx context.Context) bool {
	if access, ok := s.store.AccessToken(ctx); ok && !s.IsExpired(access) {
		return true
	}

	if _, ok := s.store.RefreshToken(ctx); ok {
		return true
	}

	s.logger.Debug("No usable tokens, clearing session")
	s.store.Clear(ctx)
	return false
}

// CurrentRole returns the stored profile role
func (s *State) CurrentRole(ctx context.Context) (string, bool) {
	profile, ok := s.store.UserProfile(ctx)
	if !ok || profile.Role == "" {
		return "", false
	}
	return profile.Role, true
}

func (s *State) IsExpired(access string) bool {
	return tokenmanager.IsExpired(access, s.now())
}
