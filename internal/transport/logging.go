package transport

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/nkiryanov/authsession/internal/logger"
)

const HeaderRequestID = "X-Request-ID"

type loggingTransport struct {
	base   http.RoundTripper
	logger logger.Logger
}

// Logging logs every request that reaches the wire and tags it with a request id
// An id set by the caller is kept
func Logging(l logger.Logger) Middleware {
	if l == nil {
		l = logger.NewNoOpLogger()
	}

	return func(next http.RoundTripper) http.RoundTripper {
		return &loggingTransport{base: next, logger: l}
	}
}

func (t *loggingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()

	id := req.Header.Get(HeaderRequestID)
	if id == "" {
		id = uuid.NewString()
		req = req.Clone(req.Context())
		req.Header.Set(HeaderRequestID, id)
	}

	resp, err := t.base.RoundTrip(req)
	if err != nil {
		t.logger.Warn(
			"HTTP request failed",
			"method", req.Method,
			"uri", req.URL.Path,
			"duration", time.Since(start),
			"request_id", id,
			"error", err,
		)
		return resp, err
	}

	t.logger.Info(
		"sent HTTP request",
		"method", req.Method,
		"uri", req.URL.Path,
		"duration", time.Since(start),
		"status", resp.StatusCode,
		"request_id", id,
	)

	return resp, nil
}
