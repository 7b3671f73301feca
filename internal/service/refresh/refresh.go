package refresh

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"github.com/nkiryanov/authsession/internal/apperrors"
	"github.com/nkiryanov/authsession/internal/logger"
	"github.com/nkiryanov/authsession/internal/metrics"
	"github.com/nkiryanov/authsession/internal/session"
)

type State int32

const (
	StateIdle State = iota
	StateRefreshing
	StateSucceeded
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRefreshing:
		return "refreshing"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Server side of the exchange
type TokenRefresher interface {
	RefreshToken(ctx context.Context, refresh string) (string, error)
}

// Called after the session is cleared. Reason is nil for a logout requested by the user
type LogoutListener func(reason error)

// The only flight key: there is one session per store
const flightKey = "refresh"

// Coordinator renews the access token with at most one exchange in flight
//
// Callers that arrive while a refresh is running wait for its outcome instead of starting
// their own. Any failure clears the session and notifies logout listeners.
type Coordinator struct {
	store   *session.Store
	api     TokenRefresher
	metrics *metrics.Metrics
	logger  logger.Logger

	group singleflight.Group
	state atomic.Int32

	mu        sync.Mutex
	listeners map[uint64]LogoutListener
	nextID    uint64
}

type Option func(*Coordinator)

func WithLogger(l logger.Logger) Option {
	return func(c *Coordinator) {
		if l != nil {
			c.logger = l
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Coordinator) {
		c.metrics = m
	}
}

func New(store *session.Store, api TokenRefresher, opts ...Option) *Coordinator {
	c := &Coordinator{
		store:     store,
		api:       api,
		logger:    logger.NewNoOpLogger(),
		listeners: make(map[uint64]LogoutListener),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "refresh")

	return c
}

func (c *Coordinator) State() State {
	return State(c.state.Load())
}

// Refresh returns an access token to use instead of rejected
//
// Pass the access token the server just refused, or empty string when there was none.
// If the store already holds another token, somebody has refreshed meanwhile and that token is
// returned without a network call. Otherwise the refresh token is exchanged, once for all
// concurrent callers.
//
// The exchange is not bound to ctx: when ctx is done the caller stops waiting with ctx.Err(),
// the others still get the outcome.
func (c *Coordinator) Refresh(ctx context.Context, rejected string) (string, error) {
	if token, ok := c.renewed(ctx, rejected); ok {
		c.metrics.RefreshDone(metrics.OutcomeSkipped)
		return token, nil
	}

	started := false
	ch := c.group.DoChan(flightKey, func() (any, error) {
		started = true
		return c.refresh(context.WithoutCancel(ctx), rejected)
	})

	select {
	case <-ctx.Done():
		return "", ctx.Err()

	case res := <-ch:
		if !started {
			c.metrics.RefreshShared()
		}

		// Succeeded and Failed last until the first waiter is released
		c.state.CompareAndSwap(int32(StateSucceeded), int32(StateIdle))
		c.state.CompareAndSwap(int32(StateFailed), int32(StateIdle))

		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	}
}

func (c *Coordinator) refresh(ctx context.Context, rejected string) (string, error) {
	// Previous flight could finish between the check in Refresh and this one
	if token, ok := c.renewed(ctx, rejected); ok {
		c.metrics.RefreshDone(metrics.OutcomeSkipped)
		return token, nil
	}

	c.state.Store(int32(StateRefreshing))
	c.logger.Debug("Refreshing access token")

	refresh, ok := c.store.RefreshToken(ctx)
	if !ok {
		return "", c.fail(ctx, apperrors.ErrNoRefreshToken)
	}

	token, err := c.api.RefreshToken(ctx, refresh)
	if err != nil {
		return "", c.fail(ctx, fmt.Errorf("failed to refresh access token: %w", err))
	}

	c.store.UpdateAccessToken(ctx, token)
	c.state.Store(int32(StateSucceeded))
	c.metrics.RefreshDone(metrics.OutcomeSucceeded)
	c.logger.Debug("Access token refreshed")

	return token, nil
}

func (c *Coordinator) fail(ctx context.Context, reason error) error {
	c.state.Store(int32(StateFailed))
	c.metrics.RefreshDone(metrics.OutcomeFailed)
	c.logger.Warn("Refresh failed, logging out", "error", reason)

	c.Logout(ctx, reason)
	return reason
}

// renewed reports token stored after rejected was handed out
func (c *Coordinator) renewed(ctx context.Context, rejected string) (string, bool) {
	current, ok := c.store.AccessToken(ctx)
	if !ok || current == rejected {
		return "", false
	}
	return current, true
}

// Logout clears the session and notifies listeners
func (c *Coordinator) Logout(ctx context.Context, reason error) {
	c.store.Clear(ctx)
	c.logger.Info("Session cleared", "reason", reason)

	c.mu.Lock()
	listeners := make([]LogoutListener, 0, len(c.listeners))
	for _, l := range c.listeners {
		listeners = append(listeners, l)
	}
	c.mu.Unlock()

	for _, l := range listeners {
		l(reason)
	}
}

// OnLogout registers fn to be called on every logout, forced or not
func (c *Coordinator) OnLogout(fn LogoutListener) (unsubscribe func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := c.nextID
	c.nextID++
	c.listeners[id] = fn

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.listeners, id)
	}
}
