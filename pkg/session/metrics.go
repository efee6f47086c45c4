package session

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors sessions report to.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	actions        *prometheus.CounterVec
	duration       *prometheus.HistogramVec
	attempts       prometheus.Counter
	sessionsActive prometheus.Gauge
}

// NewMetrics creates session collectors and registers them with reg.
// A nil reg leaves the collectors unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		actions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pagetrace",
			Name:      "actions_total",
			Help:      "Actions performed, by kind and final status.",
		}, []string{"kind", "status"}),
		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "pagetrace",
			Name:      "action_duration_seconds",
			Help:      "Duration of the final attempt of each action.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"kind"}),
		attempts: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "pagetrace",
			Name:      "action_attempts_total",
			Help:      "Action attempts, including retries.",
		}),
		sessionsActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "pagetrace",
			Name:      "sessions_active",
			Help:      "Number of open browser sessions.",
		}),
	}
}

func (m *Metrics) observeResult(res *ActionResult) {
	if m == nil {
		return
	}
	m.actions.WithLabelValues(string(res.Kind), string(res.Status)).Inc()
	m.duration.WithLabelValues(string(res.Kind)).Observe(float64(res.DurationMs) / 1000)
}

func (m *Metrics) observeAttempt() {
	if m == nil {
		return
	}
	m.attempts.Inc()
}

func (m *Metrics) sessionOpened() {
	if m == nil {
		return
	}
	m.sessionsActive.Inc()
}

func (m *Metrics) sessionClosed() {
	if m == nil {
		return
	}
	m.sessionsActive.Dec()
}
