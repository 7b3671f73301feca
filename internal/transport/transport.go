// Package transport holds http.RoundTripper middlewares the API client is built from
package transport

import (
	"net/http"
)

type Middleware func(http.RoundTripper) http.RoundTripper

// Chain wraps base so that the first middleware sees the request first
func Chain(base http.RoundTripper, mws ...Middleware) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	for i := len(mws) - 1; i >= 0; i-- {
		base = mws[i](base)
	}
	return base
}

type RoundTripperFunc func(*http.Request) (*http.Response, error)

func (f RoundTripperFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}
