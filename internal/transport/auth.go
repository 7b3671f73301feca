package transport

import (
	"context"
	"io"
	"net/http"
	"strings"

	"github.com/nkiryanov/authsession/internal/authapi"
	"github.com/nkiryanov/authsession/internal/logger"
	"github.com/nkiryanov/authsession/internal/metrics"
	"github.com/nkiryanov/authsession/internal/session"
)

// Paths that must never carry a bearer token nor trigger a refresh
var authExemptPaths = []string{
	authapi.PathLogin,
	authapi.PathRegister,
	authapi.PathRefreshToken,
	authapi.PathForgotPassword,
}

func IsAuthExempt(path string) bool {
	for _, p := range authExemptPaths {
		if strings.Contains(path, p) {
			return true
		}
	}
	return false
}

type Refresher interface {
	Refresh(ctx context.Context, rejected string) (string, error)
}

// AuthTransport attaches the session access token to outgoing requests
//
// A 401 answer makes it refresh the token and send the request once more. The second answer is
// returned whatever it is. When the refresh itself fails the first 401 is returned.
type AuthTransport struct {
	base      http.RoundTripper
	store     *session.Store
	refresher Refresher
	metrics   *metrics.Metrics
	logger    logger.Logger
}

func NewAuthTransport(base http.RoundTripper, store *session.Store, refresher Refresher, m *metrics.Metrics, l logger.Logger) *AuthTransport {
	if base == nil {
		base = http.DefaultTransport
	}
	if l == nil {
		l = logger.NewNoOpLogger()
	}

	return &AuthTransport{
		base:      base,
		store:     store,
		refresher: refresher,
		metrics:   m,
		logger:    l.With("component", "auth_transport"),
	}
}

func Auth(store *session.Store, refresher Refresher, m *metrics.Metrics, l logger.Logger) Middleware {
	return func(next http.RoundTripper) http.RoundTripper {
		return NewAuthTransport(next, store, refresher, m, l)
	}
}

func (t *AuthTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if IsAuthExempt(req.URL.Path) {
		if req.Header.Get("Authorization") != "" {
			req = req.Clone(req.Context())
			req.Header.Del("Authorization")
		}
		return t.base.RoundTrip(req)
	}

	ctx := req.Context()

	access, ok := t.store.AccessToken(ctx)
	if !ok {
		return t.withoutAccess(req)
	}

	resp, err := t.base.RoundTrip(withBearer(req, access))
	if err != nil || resp.StatusCode != http.StatusUnauthorized {
		return resp, err
	}

	retry, ok := rewind(req)
	if !ok {
		t.logger.Debug("Request body can not be replayed, 401 returned as is", "uri", req.URL.Path)
		t.metrics.RetryDone(metrics.OutcomeSkipped)
		return resp, nil
	}

	token, err := t.refresher.Refresh(ctx, access)
	if err != nil {
		t.logger.Debug("Refresh after 401 failed", "uri", req.URL.Path, "error", err)
		t.metrics.RetryDone(metrics.OutcomeFailed)
		return resp, nil
	}

	drain(resp)

	resp, err = t.base.RoundTrip(withBearer(retry, token))
	if err != nil || resp.StatusCode == http.StatusUnauthorized {
		t.metrics.RetryDone(metrics.OutcomeFailed)
	} else {
		t.metrics.RetryDone(metrics.OutcomeSucceeded)
	}

	return resp, err
}

// withoutAccess renews the token first if the session can, else forwards as is
func (t *AuthTransport) withoutAccess(req *http.Request) (*http.Response, error) {
	if _, ok := t.store.RefreshToken(req.Context()); !ok {
		return t.base.RoundTrip(req)
	}

	token, err := t.refresher.Refresh(req.Context(), "")
	if err != nil {
		t.logger.Debug("Refresh before request failed, sending without token", "uri", req.URL.Path, "error", err)
		return t.base.RoundTrip(req)
	}

	return t.base.RoundTrip(withBearer(req, token))
}

func withBearer(req *http.Request, token string) *http.Request {
	r := req.Clone(req.Context())
	r.Header.Set("Authorization", "Bearer "+token)
	return r
}

// rewind returns copy of req with a fresh body, false if the body is gone for good
func rewind(req *http.Request) (*http.Request, bool) {
	r := req.Clone(req.Context())
	if req.Body == nil || req.Body == http.NoBody {
		return r, true
	}
	if req.GetBody == nil {
		return nil, false
	}

	body, err := req.GetBody()
	if err != nil {
		return nil, false
	}
	r.Body = body
	return r, true
}

// Reading the rest lets the connection be reused
func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
	_ = resp.Body.Close()
}
