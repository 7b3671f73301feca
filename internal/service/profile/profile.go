package profile

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/nkiryanov/authsession/internal/logger"
	"github.com/nkiryanov/authsession/internal/models"
	"github.com/nkiryanov/authsession/internal/session"
)

const DefaultSyncInterval = 30 * time.Minute

type Fetcher interface {
	Me(ctx context.Context) (models.UserProfile, error)
}

type authState interface {
	IsAuthenticated(ctx context.Context) bool
}

// Subscriber receives every profile change. Nil means there is no profile.
// It must not call Publish or Subscribe: deliveries are serialized.
type Subscriber func(profile *models.UserProfile)

type subscription struct {
	id uint64
	fn Subscriber
}

// Service keeps the current user profile and delivers its changes to subscribers
type Service struct {
	api    Fetcher
	store  *session.Store
	state  authState
	logger logger.Logger

	// Held for a whole delivery so subscribers see changes in the order they were published
	publishMu sync.Mutex

	mu          sync.RWMutex
	current     *models.UserProfile
	subscribers []subscription
	nextID      uint64
}

// NewService creates service seeded with the profile stored in the session, if any
func NewService(ctx context.Context, store *session.Store, state authState, api Fetcher, l logger.Logger) *Service {
	if l == nil {
		l = logger.NewNoOpLogger()
	}

	s := &Service{
		api:    api,
		store:  store,
		state:  state,
		logger: l.With("component", "profile"),
	}

	if p, ok := store.UserProfile(ctx); ok {
		s.current = &p
	}

	return s
}

// Subscribe delivers the current profile right away and then every change until unsubscribed
func (s *Service) Subscribe(fn Subscriber) (unsubscribe func()) {
	s.publishMu.Lock()
	defer s.publishMu.Unlock()

	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.subscribers = append(s.subscribers, subscription{id: id, fn: fn})
	current := clone(s.current)
	s.mu.Unlock()

	fn(current)

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.subscribers = slices.DeleteFunc(s.subscribers, func(sub subscription) bool { return sub.id == id })
	}
}

// Publish replaces the current profile and notifies subscribers
func (s *Service) Publish(profile *models.UserProfile) {
	s.publishMu.Lock()
	defer s.publishMu.Unlock()

	s.mu.Lock()
	s.current = clone(profile)
	subscribers := slices.Clone(s.subscribers)
	s.mu.Unlock()

	for _, sub := range subscribers {
		sub.fn(clone(profile))
	}
}

// RefreshNow fetches the profile from the server and publishes it
// On failure the cached profile stays as it was
func (s *Service) RefreshNow(ctx context.Context) (models.UserProfile, error) {
	p, err := s.api.Me(ctx)
	if err != nil {
		s.logger.Warn("Failed to fetch user profile, keep cached one", "error", err)
		return models.UserProfile{}, err
	}

	s.store.UpdateUserProfile(ctx, p)
	s.Publish(&p)
	s.logger.Debug("User profile synced", "user_id", p.ID)

	return p, nil
}

// StartPeriodicSync fetches the profile every interval until ctx is done
// Nothing starts without a session, and ticks are skipped while there is none.
// The returned channel is closed when syncing stopped.
func (s *Service) StartPeriodicSync(ctx context.Context, interval time.Duration) <-chan struct{} {
	stopped := make(chan struct{})

	if interval <= 0 {
		interval = DefaultSyncInterval
	}

	if !s.state.IsAuthenticated(ctx) {
		s.logger.Debug("Not authenticated, profile sync not started")
		close(stopped)
		return stopped
	}

	s.logger.Debug("Starting profile sync", "interval", interval)

	go func() {
		defer close(stopped)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				s.logger.Debug("Profile sync stopped by context")
				return

			case <-ticker.C:
				if !s.state.IsAuthenticated(ctx) {
					s.logger.Debug("Profile sync tick skipped, not authenticated")
					continue
				}

				// Errors are logged by RefreshNow
				_, _ = s.RefreshNow(ctx)
			}
		}
	}()

	return stopped
}

func (s *Service) Current() (models.UserProfile, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.current == nil {
		return models.UserProfile{}, false
	}
	return *clone(s.current), true
}

func (s *Service) CurrentUserID() (int64, bool) {
	p, ok := s.Current()
	if !ok || p.ID == 0 {
		return 0, false
	}
	return p.ID, true
}

func (s *Service) CurrentRole() (string, bool) {
	p, ok := s.Current()
	if !ok || p.Role == "" {
		return "", false
	}
	return p.Role, true
}

func (s *Service) HasRole(role string) bool {
	current, ok := s.CurrentRole()
	return ok && current == role
}

func (s *Service) HasAnyRole(roles ...string) bool {
	current, ok := s.CurrentRole()
	return ok && slices.Contains(roles, current)
}

// Clear forgets the profile and tells subscribers there is none
func (s *Service) Clear() {
	s.Publish(nil)
}

func clone(p *models.UserProfile) *models.UserProfile {
	if p == nil {
		return nil
	}

	c := *p
	if p.RoleID != nil {
		id := *p.RoleID
		c.RoleID = &id
	}
	return &c
}
