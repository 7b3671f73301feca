package testutil

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nkiryanov/authsession/internal/models"
)

const (
	DefaultPassword     = "secret-password"
	DefaultRefreshToken = "R"
)

// Request seen by a protected endpoint of AuthServer
type RecordedRequest struct {
	Method        string
	Path          string
	Authorization string
	Body          string
}

// AuthServer is a fake auth API
//
// It serves auth/login, auth/register, auth/refresh-token, me and treats every other path
// under /api/ as a protected resource answering "ok" to a known bearer token and 401 otherwise.
type AuthServer struct {
	srv *httptest.Server
	t   testing.TB

	mu           sync.Mutex
	user         models.UserProfile
	password     string
	refreshToken string
	accessTTL    time.Duration
	valid        map[string]bool
	requests     []RecordedRequest

	refreshHandler http.HandlerFunc
	meHandler      http.HandlerFunc

	refreshCalls atomic.Int64
	meCalls      atomic.Int64
}

type AuthServerOption func(*AuthServer)

func WithUser(user models.UserProfile) AuthServerOption {
	return func(s *AuthServer) { s.user = user }
}

// Replace refresh endpoint. Calls are still counted
func WithRefreshHandler(h http.HandlerFunc) AuthServerOption {
	return func(s *AuthServer) { s.refreshHandler = h }
}

// Replace me endpoint. Calls are still counted
func WithMeHandler(h http.HandlerFunc) AuthServerOption {
	return func(s *AuthServer) { s.meHandler = h }
}

func NewAuthServer(t testing.TB, opts ...AuthServerOption) *AuthServer {
	s := &AuthServer{
		t:            t,
		user:         models.UserProfile{ID: 1, Name: "Ana", Email: "ana@example.com", DNI: "30111222", Role: "admin"},
		password:     DefaultPassword,
		refreshToken: DefaultRefreshToken,
		accessTTL:    15 * time.Minute,
		valid:        make(map[string]bool),
	}
	for _, opt := range opts {
		opt(s)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/auth/login", s.login)
	mux.HandleFunc("POST /api/auth/register", s.register)
	mux.HandleFunc("POST /api/auth/refresh-token", s.refresh)
	mux.HandleFunc("POST /api/auth/forgot-password", s.forgotPassword)
	mux.HandleFunc("GET /api/me", s.me)
	mux.HandleFunc("/api/", s.protected)

	s.srv = httptest.NewServer(mux)
	t.Cleanup(s.srv.Close)

	return s
}

// Base URL of the API, ready to be joined with endpoint paths
func (s *AuthServer) URL() string {
	return s.srv.URL + "/api/"
}

// IssueAccess mints a new access token and starts accepting it
func (s *AuthServer) IssueAccess() string {
	token := AccessToken(s.t, time.Now().Add(s.accessTTL))
	s.Accept(token)
	return token
}

func (s *AuthServer) Accept(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.valid[token] = true
}

func (s *AuthServer) Revoke(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.valid, token)
}

func (s *AuthServer) RefreshCalls() int64 {
	return s.refreshCalls.Load()
}

func (s *AuthServer) MeCalls() int64 {
	return s.meCalls.Load()
}

func (s *AuthServer) User() models.UserProfile {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.user
}

func (s *AuthServer) SetUser(user models.UserProfile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.user = user
}

// Requests returns requests seen by protected endpoints and me
func (s *AuthServer) Requests() []RecordedRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]RecordedRequest(nil), s.requests...)
}

// Requests of protected endpoints that passed authorization
func (s *AuthServer) AcceptedRequests() []RecordedRequest {
	s.mu.Lock()
	defer s.mu.Unlock()

	var accepted []RecordedRequest
	for _, r := range s.requests {
		if s.valid[strings.TrimPrefix(r.Authorization, "Bearer ")] {
			accepted = append(accepted, r)
		}
	}
	return accepted
}

func (s *AuthServer) login(w http.ResponseWriter, r *http.Request) {
	var creds models.Credentials
	if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
		JSON(w, http.StatusBadRequest, map[string]any{"success": false, "message": "Malformed body"})
		return
	}

	s.mu.Lock()
	ok := creds.Password == s.password && creds.Email == s.user.Email
	s.mu.Unlock()

	if !ok {
		JSON(w, http.StatusUnauthorized, map[string]any{"success": false, "message": "Invalid credentials"})
		return
	}

	s.authenticated(w, http.StatusOK, "Login successful")
}

func (s *AuthServer) register(w http.ResponseWriter, r *http.Request) {
	var req models.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		JSON(w, http.StatusBadRequest, map[string]any{"success": false, "message": "Malformed body"})
		return
	}

	s.mu.Lock()
	taken := req.Email == s.user.Email
	if !taken {
		s.user = models.UserProfile{ID: s.user.ID + 1, Name: req.Name, Email: req.Email, DNI: req.DNI, Role: "patient"}
		s.password = req.Password
	}
	s.mu.Unlock()

	if taken {
		JSON(w, http.StatusBadRequest, map[string]any{"success": false, "message": "Email already registered"})
		return
	}

	s.authenticated(w, http.StatusCreated, "User registered")
}

func (s *AuthServer) authenticated(w http.ResponseWriter, status int, message string) {
	access := s.IssueAccess()

	JSON(w, status, map[string]any{
		"success": true,
		"message": message,
		"data": map[string]any{
			"token":        access,
			"refreshToken": s.refreshToken,
			"tokenType":    "Bearer",
			"user":         s.User(),
		},
	})
}

func (s *AuthServer) refresh(w http.ResponseWriter, r *http.Request) {
	s.refreshCalls.Add(1)

	if r.Header.Get("Authorization") != "" {
		JSON(w, http.StatusBadRequest, map[string]any{"success": false, "message": "Refresh must not carry bearer token"})
		return
	}

	if s.refreshHandler != nil {
		s.refreshHandler(w, r)
		return
	}

	var body struct {
		RefreshToken string `json:"refreshToken"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.RefreshToken != s.refreshToken {
		JSON(w, http.StatusUnauthorized, map[string]any{"success": false, "message": "Invalid refresh token"})
		return
	}

	JSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Token refreshed",
		"data":    map[string]any{"token": s.IssueAccess()},
	})
}

func (s *AuthServer) forgotPassword(w http.ResponseWriter, r *http.Request) {
	s.record(r)
	JSON(w, http.StatusOK, map[string]any{"success": true, "message": "Email sent"})
}

func (s *AuthServer) me(w http.ResponseWriter, r *http.Request) {
	s.meCalls.Add(1)
	if !s.authorize(w, r) {
		return
	}

	if s.meHandler != nil {
		s.meHandler(w, r)
		return
	}

	JSON(w, http.StatusOK, map[string]any{"message": "ok", "data": s.User()})
}

func (s *AuthServer) protected(w http.ResponseWriter, r *http.Request) {
	if !s.authorize(w, r) {
		return
	}

	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *AuthServer) authorize(w http.ResponseWriter, r *http.Request) bool {
	rec := s.record(r)

	s.mu.Lock()
	ok := s.valid[strings.TrimPrefix(rec.Authorization, "Bearer ")]
	s.mu.Unlock()

	if !ok {
		JSON(w, http.StatusUnauthorized, map[string]any{"message": "Unauthorized"})
	}
	return ok
}

func (s *AuthServer) record(r *http.Request) RecordedRequest {
	var body bytes.Buffer
	if r.Body != nil {
		_, _ = body.ReadFrom(r.Body)
	}

	rec := RecordedRequest{
		Method:        r.Method,
		Path:          r.URL.Path,
		Authorization: r.Header.Get("Authorization"),
		Body:          body.String(),
	}

	s.mu.Lock()
	s.requests = append(s.requests, rec)
	s.mu.Unlock()

	return rec
}

// JSON sends data as json and enforces status code
func JSON(w http.ResponseWriter, code int, data any) {
	buf := &bytes.Buffer{}
	enc := json.NewEncoder(buf)

	if err := enc.Encode(data); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_, _ = w.Write(buf.Bytes())
}
