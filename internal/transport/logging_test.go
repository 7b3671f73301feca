package transport

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nkiryanov/authsession/internal/logger"
)

type entry struct {
	level string
	msg   string
	args  []any
}

type recordLogger struct {
	mu      *sync.Mutex
	entries *[]entry
}

func newRecordLogger() recordLogger {
	return recordLogger{mu: &sync.Mutex{}, entries: &[]entry{}}
}

func (l recordLogger) log(level string, msg string, args []any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	*l.entries = append(*l.entries, entry{level: level, msg: msg, args: args})
}

func (l recordLogger) Debug(msg string, args ...any)       { l.log("debug", msg, args) }
func (l recordLogger) Info(msg string, args ...any)        { l.log("info", msg, args) }
func (l recordLogger) Warn(msg string, args ...any)        { l.log("warn", msg, args) }
func (l recordLogger) Error(msg string, args ...any)       { l.log("error", msg, args) }
func (l recordLogger) With(args ...any) logger.Logger      { return l }
func (l recordLogger) WithGroup(name string) logger.Logger { return l }

func (l recordLogger) Entries() []entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]entry(nil), *l.entries...)
}

func Test_Logging(t *testing.T) {
	t.Parallel()

	echo := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(HeaderRequestID, r.Header.Get(HeaderRequestID))
		w.WriteHeader(http.StatusTeapot)
	}))
	t.Cleanup(echo.Close)

	t.Run("request id added and logged", func(t *testing.T) {
		l := newRecordLogger()
		client := &http.Client{Transport: Chain(nil, Logging(l))}

		resp, err := client.Get(echo.URL + "/api/me")
		require.NoError(t, err)
		defer func() { _ = resp.Body.Close() }()

		id := resp.Header.Get(HeaderRequestID)
		require.Len(t, id, 36, "uuid expected")

		entries := l.Entries()
		require.Len(t, entries, 1)
		require.Equal(t, "info", entries[0].level)
		require.Contains(t, entries[0].args, "/api/me")
		require.Contains(t, entries[0].args, http.StatusTeapot)
		require.Contains(t, entries[0].args, id)
	})

	t.Run("caller request id kept", func(t *testing.T) {
		client := &http.Client{Transport: Chain(nil, Logging(nil))}

		req, err := http.NewRequestWithContext(t.Context(), http.MethodGet, echo.URL, nil)
		require.NoError(t, err)
		req.Header.Set(HeaderRequestID, "caller-id")

		resp, err := client.Do(req)
		require.NoError(t, err)
		defer func() { _ = resp.Body.Close() }()

		require.Equal(t, "caller-id", resp.Header.Get(HeaderRequestID))
	})

	t.Run("transport error logged", func(t *testing.T) {
		l := newRecordLogger()
		failing := RoundTripperFunc(func(*http.Request) (*http.Response, error) {
			return nil, errors.New("connection refused")
		})
		client := &http.Client{Transport: Chain(failing, Logging(l))}

		_, err := client.Get("http://example.invalid/api/me")
		require.Error(t, err)

		entries := l.Entries()
		require.Len(t, entries, 1)
		require.Equal(t, "warn", entries[0].level)
	})
}

func Test_Chain(t *testing.T) {
	t.Parallel()

	var order []string
	mark := func(name string) Middleware {
		return func(next http.RoundTripper) http.RoundTripper {
			return RoundTripperFunc(func(r *http.Request) (*http.Response, error) {
				order = append(order, name)
				return next.RoundTrip(r)
			})
		}
	}
	base := RoundTripperFunc(func(r *http.Request) (*http.Response, error) {
		order = append(order, "base")
		return &http.Response{StatusCode: http.StatusNoContent, Body: http.NoBody, Request: r}, nil
	})

	req, err := http.NewRequestWithContext(t.Context(), http.MethodGet, "http://example.com", nil)
	require.NoError(t, err)

	resp, err := Chain(base, mark("outer"), mark("inner")).RoundTrip(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	require.Equal(t, []string{"outer", "inner", "base"}, order)
}
