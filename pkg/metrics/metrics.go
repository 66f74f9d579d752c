package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors of the reports service and the
// interaction consumer.
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Report metrics
	ReportDuration *prometheus.HistogramVec
	ReportErrors   *prometheus.CounterVec

	// Cache metrics
	CacheHits          *prometheus.CounterVec
	CacheMisses        *prometheus.CounterVec
	CacheInvalidations prometheus.Counter

	// Consumer metrics
	EventsConsumed *prometheus.CounterVec
}

// New registers all collectors with reg. Tests pass a fresh registry.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path", "status"},
		),

		ReportDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "report_duration_seconds",
				Help:    "Time spent computing a report",
				Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"report"},
		),
		ReportErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "report_errors_total",
				Help: "Total number of reports that failed",
			},
			[]string{"report"},
		),

		CacheHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "report_cache_hits_total",
				Help: "Total number of report cache hits",
			},
			[]string{"report"},
		),
		CacheMisses: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "report_cache_misses_total",
				Help: "Total number of report cache misses",
			},
			[]string{"report"},
		),
		CacheInvalidations: factory.NewCounter(prometheus.CounterOpts{
			Name: "report_cache_invalidated_entries_total",
			Help: "Total number of cached reports dropped after an interaction",
		}),

		EventsConsumed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "interaction_events_consumed_total",
				Help: "Total number of interaction events consumed",
			},
			[]string{"target_type", "interaction", "status"}, // status: ok, invalid, failed
		),
	}
}

// Middleware records request counts and latency per chi route pattern.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		path := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				path = pattern
			}
		}

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}

		m.HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(status)).Inc()
		m.HTTPRequestDuration.WithLabelValues(r.Method, path, strconv.Itoa(status)).Observe(time.Since(start).Seconds())
	})
}

func (m *Metrics) ObserveReport(report string, duration time.Duration, err error) {
	m.ReportDuration.WithLabelValues(report).Observe(duration.Seconds())
	if err != nil {
		m.ReportErrors.WithLabelValues(report).Inc()
	}
}

func (m *Metrics) RecordCache(report string, hit bool) {
	if hit {
		m.CacheHits.WithLabelValues(report).Inc()
		return
	}
	m.CacheMisses.WithLabelValues(report).Inc()
}

func (m *Metrics) RecordInvalidation(entries int) {
	m.CacheInvalidations.Add(float64(entries))
}

func (m *Metrics) RecordEvent(targetType, interaction, status string) {
	m.EventsConsumed.WithLabelValues(targetType, interaction, status).Inc()
}
