package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/hive-corporation/iocscope/internal/core/domain"
)

var (
	// defaultOnce ensures the process-wide collectors are registered only once
	defaultOnce sync.Once
	defaultSet  *Metrics
)

// Metrics holds the Prometheus collectors for source calls, extracted indicators and
// the HTTP API.
type Metrics struct {
	// sourceLookupsTotal counts source calls by source and status ("success", "failure")
	sourceLookupsTotal *prometheus.CounterVec

	// sourceLookupDuration tracks latency of individual source calls
	sourceLookupDuration *prometheus.HistogramVec

	// indicatorsTotal counts aggregated indicators by type
	indicatorsTotal *prometheus.CounterVec

	// flaggedTotal counts indicators at least one source flagged
	flaggedTotal *prometheus.CounterVec

	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
}

// New registers a fresh set of collectors with reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		sourceLookupsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "iocscope_source_lookups_total",
				Help: "Total number of threat-intel source calls by source and status",
			},
			[]string{"source", "status"},
		),
		sourceLookupDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "iocscope_source_lookup_duration_seconds",
				Help:    "Duration of threat-intel source calls in seconds",
				Buckets: []float64{0.1, 0.25, 0.5, 1.0, 2.0, 5.0, 10.0},
			},
			[]string{"source"},
		),
		indicatorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "iocscope_indicators_total",
				Help: "Total number of aggregated indicators by type",
			},
			[]string{"type"},
		),
		flaggedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "iocscope_indicators_flagged_total",
				Help: "Total number of indicators flagged by at least one source, by type",
			},
			[]string{"type"},
		),
		httpRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "iocscope_http_requests_total",
				Help: "Total number of API requests by method, route and status code",
			},
			[]string{"method", "route", "code"},
		),
		httpRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "iocscope_http_request_duration_seconds",
				Help:    "Duration of API requests in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"route"},
		),
	}
}

// Default returns the collectors registered on the default Prometheus registry.
// This should be called once at application startup, later calls return the same set.
func Default() *Metrics {
	defaultOnce.Do(func() {
		defaultSet = New(prometheus.DefaultRegisterer)
	})
	return defaultSet
}

// ObserveSource records one source call. It satisfies ports.SourceRecorder.
func (m *Metrics) ObserveSource(source domain.SourceName, success bool, elapsed time.Duration) {
	if m == nil {
		return
	}
	status := "failure"
	if success {
		status = "success"
	}
	m.sourceLookupsTotal.WithLabelValues(string(source), status).Inc()
	m.sourceLookupDuration.WithLabelValues(string(source)).Observe(elapsed.Seconds())
}

// RecordIndicator counts an aggregated indicator and whether any source flagged it.
func (m *Metrics) RecordIndicator(typ domain.IndicatorType, flagged bool) {
	if m == nil {
		return
	}
	m.indicatorsTotal.WithLabelValues(typ.String()).Inc()
	if flagged {
		m.flaggedTotal.WithLabelValues(typ.String()).Inc()
	}
}

// RecordHTTPRequest records a finished API request
func (m *Metrics) RecordHTTPRequest(method, route string, code int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.httpRequestsTotal.WithLabelValues(method, route, strconv.Itoa(code)).Inc()
	m.httpRequestDuration.WithLabelValues(route).Observe(elapsed.Seconds())
}

// Timer is a helper for timing one operation.
type Timer struct {
	start time.Time
}

func StartTimer() *Timer {
	return &Timer{start: time.Now()}
}

func (t *Timer) Elapsed() time.Duration {
	if t == nil {
		return 0
	}
	return time.Since(t.start)
}
