package navigation

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks engine activity. A nil *Metrics records nothing.
type Metrics struct {
	engines         prometheus.Counter
	requests        prometheus.Counter
	failures        *prometheus.CounterVec
	inFlight        prometheus.Gauge
	requestDuration prometheus.Histogram
	reconciliations *prometheus.CounterVec
	toggleClicks    prometheus.Counter
}

// NewMetrics registers the engine collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		engines: f.NewCounter(prometheus.CounterOpts{
			Name: "ctxnav_engines_total",
			Help: "Context navigation engine instances started",
		}),
		requests: f.NewCounter(prometheus.CounterOpts{
			Name: "ctxnav_requests_total",
			Help: "Collection context requests issued",
		}),
		failures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ctxnav_failures_total",
			Help: "Engine instances that did not render, by reason",
		}, []string{"reason"}),
		inFlight: f.NewGauge(prometheus.GaugeOpts{
			Name: "ctxnav_requests_in_flight",
			Help: "Collection context requests currently outstanding",
		}),
		requestDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "ctxnav_request_duration_seconds",
			Help:    "Duration of collection context requests",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}),
		reconciliations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ctxnav_reconciliations_total",
			Help: "Rendered visible lists by reconciliation outcome",
		}, []string{"outcome"}),
		toggleClicks: f.NewCounter(prometheus.CounterOpts{
			Name: "ctxnav_toggle_clicks_total",
			Help: "Disclosure toggle clicks handled",
		}),
	}
}

func (m *Metrics) engineStarted() {
	if m != nil {
		m.engines.Inc()
	}
}

func (m *Metrics) requestStarted() func() {
	if m == nil {
		return func() {}
	}
	m.requests.Inc()
	m.inFlight.Inc()
	start := time.Now()
	return func() {
		m.inFlight.Dec()
		m.requestDuration.Observe(time.Since(start).Seconds())
	}
}

func (m *Metrics) failed(reason string) {
	if m != nil {
		m.failures.WithLabelValues(reason).Inc()
	}
}

func (m *Metrics) reconciled(o Outcome) {
	if m != nil {
		m.reconciliations.WithLabelValues(o.String()).Inc()
	}
}

func (m *Metrics) toggled() {
	if m != nil {
		m.toggleClicks.Inc()
	}
}
