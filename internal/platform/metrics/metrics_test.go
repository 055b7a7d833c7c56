package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCountersByLabel(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.IncConfirmed("poll")
	m.IncConfirmed("manual")
	m.IncConfirmed("manual")
	m.IncExpired("tick")
	m.IncReap(true)
	m.IncReap(false)
	m.ObserveStatusCheck(time.Now())

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Confirmations.WithLabelValues("poll")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Confirmations.WithLabelValues("manual")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Expirations.WithLabelValues("tick")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Reaps.WithLabelValues("failed")))
}

func TestNilMetricsAreNoOps(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.IncConfirmed("poll")
		m.IncReap(true)
		m.WatcherStarted()
		m.ObserveStatusCheck(time.Now())
		m.ObserveRequest("GET", "/me", 200, time.Now())
	})
}

func TestObserveRequestUsesStatusClass(t *testing.T) {
	m := New(prometheus.NewRegistry())
	m.ObserveRequest("POST", "/auth/signin", 401, time.Now())
	m.ObserveRequest("POST", "/auth/signin", 404, time.Now())

	assert.Equal(t, 1, testutil.CollectAndCount(m.HTTPLatency))
	assert.Equal(t, "5xx", statusClass(503))
	assert.Equal(t, "2xx", statusClass(204))
}
