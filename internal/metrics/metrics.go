package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "authsession"

// Outcome label values
const (
	OutcomeSucceeded = "succeeded"
	OutcomeFailed    = "failed"
	OutcomeSkipped   = "skipped"
)

// Metrics of the token lifecycle. A nil *Metrics is valid and records nothing
type Metrics struct {
	refreshTotal  *prometheus.CounterVec
	refreshShared prometheus.Counter
	retryTotal    *prometheus.CounterVec
}

// New creates counters and registers them in reg
// Pass prometheus.NewRegistry() in tests to keep them isolated
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		refreshTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refresh_total",
			Help:      "Refresh token exchanges with the server, by outcome.",
		}, []string{"outcome"}),
		refreshShared: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refresh_shared_total",
			Help:      "Callers that joined an already running refresh instead of starting one.",
		}),
		retryTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retry_total",
			Help:      "Requests retried after a 401 response, by outcome of the retry.",
		}, []string{"outcome"}),
	}

	for _, c := range []prometheus.Collector{m.refreshTotal, m.refreshShared, m.retryTotal} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}

	return m, nil
}

func (m *Metrics) RefreshDone(outcome string) {
	if m == nil {
		return
	}
	m.refreshTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) RefreshShared() {
	if m == nil {
		return
	}
	m.refreshShared.Inc()
}

func (m *Metrics) RetryDone(outcome string) {
	if m == nil {
		return
	}
	m.retryTotal.WithLabelValues(outcome).Inc()
}

// Exposed for assertions in other packages' tests
func (m *Metrics) RefreshCounter(outcome string) prometheus.Counter {
	return m.refreshTotal.WithLabelValues(outcome)
}

func (m *Metrics) SharedCounter() prometheus.Counter {
	return m.refreshShared
}

func (m *Metrics) RetryCounter(outcome string) prometheus.Counter {
	return m.retryTotal.WithLabelValues(outcome)
}
