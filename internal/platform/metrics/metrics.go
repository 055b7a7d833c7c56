package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the confirmation lifecycle.
// Every method is nil-safe so components can run without metrics wired.
type Metrics struct {
	Confirmations       *prometheus.CounterVec
	Expirations         *prometheus.CounterVec
	Reaps               *prometheus.CounterVec
	ProfilesSynthesized prometheus.Counter
	RollNumberDraws     prometheus.Counter
	StatusCheckDuration prometheus.Histogram
	ActiveWatchers      prometheus.Gauge
	HTTPLatency         *prometheus.HistogramVec
}

// New registers all metrics with reg. Pass prometheus.DefaultRegisterer in main
// and a fresh registry in tests.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Confirmations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "signbridge_confirmations_total",
			Help: "Accounts confirmed, by the trigger that resolved them",
		}, []string{"source"}),
		Expirations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "signbridge_expirations_total",
			Help: "Confirmation windows that ended in expiry, by the trigger that declared it",
		}, []string{"source"}),
		Reaps: f.NewCounterVec(prometheus.CounterOpts{
			Name: "signbridge_reaps_total",
			Help: "Expired account deletions by outcome",
		}, []string{"result"}),
		ProfilesSynthesized: f.NewCounter(prometheus.CounterOpts{
			Name: "signbridge_profiles_synthesized_total",
			Help: "Profiles backfilled from identity metadata",
		}),
		RollNumberDraws: f.NewCounter(prometheus.CounterOpts{
			Name: "signbridge_roll_number_draws_total",
			Help: "Random roll number draws including collisions and retries",
		}),
		StatusCheckDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "signbridge_status_check_duration_seconds",
			Help:    "Duration of confirmation status checks",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}),
		ActiveWatchers: f.NewGauge(prometheus.GaugeOpts{
			Name: "signbridge_active_watchers",
			Help: "Confirmation watchers currently in the Watching state",
		}),
		HTTPLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "signbridge_http_request_duration_seconds",
			Help:    "API latency by route pattern and status class",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}
}

func (m *Metrics) IncConfirmed(source string) {
	if m != nil {
		m.Confirmations.WithLabelValues(source).Inc()
	}
}

func (m *Metrics) IncExpired(source string) {
	if m != nil {
		m.Expirations.WithLabelValues(source).Inc()
	}
}

func (m *Metrics) IncReap(ok bool) {
	if m == nil {
		return
	}
	result := "failed"
	if ok {
		result = "deleted"
	}
	m.Reaps.WithLabelValues(result).Inc()
}

func (m *Metrics) IncSynthesized() {
	if m != nil {
		m.ProfilesSynthesized.Inc()
	}
}

func (m *Metrics) IncRollNumberDraw() {
	if m != nil {
		m.RollNumberDraws.Inc()
	}
}

// ObserveStatusCheck records the duration of a status check.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveStatusCheck(start time.Time) {
	if m != nil {
		m.StatusCheckDuration.Observe(time.Since(start).Seconds())
	}
}

func (m *Metrics) WatcherStarted() {
	if m != nil {
		m.ActiveWatchers.Inc()
	}
}

func (m *Metrics) WatcherStopped() {
	if m != nil {
		m.ActiveWatchers.Dec()
	}
}

// ObserveRequest records one API call. route is the matched pattern, not the raw path.
func (m *Metrics) ObserveRequest(method, route string, status int, start time.Time) {
	if m != nil {
		m.HTTPLatency.WithLabelValues(method, route, statusClass(status)).Observe(time.Since(start).Seconds())
	}
}

func statusClass(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
