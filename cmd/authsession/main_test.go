package main

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nkiryanov/authsession/internal/testutil"
)

func Test_run(t *testing.T) {
	srv := testutil.NewAuthServer(t)
	sessionFile := filepath.Join(t.TempDir(), "session.json")
	wd := t.TempDir()

	getenv := func(key string) string {
		switch key {
		case "AUTH_API_URL":
			return srv.URL()
		case "SESSION_FILE":
			return sessionFile
		case "LOG_LEVEL":
			return "error"
		default:
			return ""
		}
	}
	getwd := func() (string, error) { return wd, nil }

	exec := func(t *testing.T, args ...string) (string, error) {
		t.Helper()

		var out bytes.Buffer
		err := run(t.Context(), &out, getenv, getwd, args)
		return out.String(), err
	}

	t.Run("no command", func(t *testing.T) {
		_, err := exec(t)
		require.ErrorIs(t, err, errUsage)
	})

	t.Run("unknown command", func(t *testing.T) {
		_, err := exec(t, "dance")
		require.ErrorIs(t, err, errUsage)
		require.ErrorContains(t, err, `unknown command "dance"`)
	})

	t.Run("status before login", func(t *testing.T) {
		out, err := exec(t, "status")
		require.NoError(t, err)
		require.Contains(t, out, "authenticated: false")
	})

	t.Run("protected route before login", func(t *testing.T) {
		out, err := exec(t, "route", "/admin/manage-appointments")
		require.NoError(t, err)
		require.Equal(t, "redirect /auth/login?returnUrl=%2Fadmin%2Fmanage-appointments\n", out)
	})

	t.Run("login with wrong password", func(t *testing.T) {
		_, err := exec(t, "--email", "ana@example.com", "--password", "wrong-password", "login")
		require.Error(t, err)
		require.Equal(t, "Invalid credentials", describe(err))
	})

	t.Run("login with invalid email", func(t *testing.T) {
		_, err := exec(t, "--email", "ana", "--password", "123456", "login")
		require.Error(t, err)
		require.Equal(t, "validation failed: email: Invalid email address", describe(err))
	})

	t.Run("login", func(t *testing.T) {
		out, err := exec(t, "--email", "ana@example.com", "--password", testutil.DefaultPassword, "login")
		require.NoError(t, err)
		require.Equal(t, "Logged in as Ana <ana@example.com>, role admin\nLanding: /admin/manage-appointments\n", out)
	})

	// Every run is a new process: only the refresh token from the session file is left
	t.Run("status after login", func(t *testing.T) {
		out, err := exec(t, "status")
		require.NoError(t, err)
		require.Contains(t, out, "authenticated: true")
		require.Contains(t, out, "access token: none")
		require.Contains(t, out, "refresh token: present")
	})

	t.Run("public route after login", func(t *testing.T) {
		out, err := exec(t, "route", "/auth/login")
		require.NoError(t, err)
		require.Equal(t, "redirect /admin/manage-appointments\n", out)
	})

	t.Run("protected route after login", func(t *testing.T) {
		out, err := exec(t, "route", "/admin/manage-appointments")
		require.NoError(t, err)
		require.Equal(t, "allow /admin/manage-appointments\n", out)
	})

	t.Run("me", func(t *testing.T) {
		out, err := exec(t, "me")
		require.NoError(t, err)
		require.JSONEq(t, `{"id": 1, "name": "Ana", "email": "ana@example.com", "dni": "30111222", "role": "admin"}`, out)
	})

	t.Run("token", func(t *testing.T) {
		out, err := exec(t, "token")
		require.NoError(t, err)

		token := strings.TrimSpace(out)
		require.NotEmpty(t, token)

		req, err := http.NewRequestWithContext(t.Context(), http.MethodGet, srv.URL()+"appointments", nil)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		defer func() { _ = resp.Body.Close() }()
		require.Equal(t, http.StatusOK, resp.StatusCode, "printed token must be accepted by server")
	})

	t.Run("sync", func(t *testing.T) {
		port, err := testutil.RandomPort()
		require.NoError(t, err, "failed to get random port to start metrics server")

		ctx, cancel := context.WithTimeout(t.Context(), 300*time.Millisecond)
		t.Cleanup(cancel)

		var out bytes.Buffer
		err = run(ctx, &out, getenv, getwd, []string{
			"--metrics-address", fmt.Sprintf("localhost:%d", port),
			"--sync-interval", "50ms",
			"sync",
		})

		require.NoError(t, err, "on correct stop should not return error")
		require.Contains(t, out.String(), "profile: Ana <ana@example.com>, role admin")
	})

	t.Run("logout", func(t *testing.T) {
		out, err := exec(t, "logout")
		require.NoError(t, err)
		require.Equal(t, "Logged out\n", out)

		out, err = exec(t, "status")
		require.NoError(t, err)
		require.Contains(t, out, "authenticated: false")
		require.Contains(t, out, "refresh token: none")
	})

	t.Run("sync after logout", func(t *testing.T) {
		_, err := exec(t, "sync")
		require.ErrorIs(t, err, errNotLoggedIn)
	})
}
