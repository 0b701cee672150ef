package metrics

import (
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPResponseSize    *prometheus.HistogramVec

	// Territory metrics
	AssignmentsTotal   *prometheus.CounterVec
	OwnershipTransfers *prometheus.CounterVec
	RuleEvaluations    *prometheus.CounterVec
	AnalyticsDuration  *prometheus.HistogramVec
	JobRuns            *prometheus.CounterVec

	// Database metrics
	DBConnections prometheus.Gauge

	// Cache metrics
	CacheHits   *prometheus.CounterVec
	CacheMisses *prometheus.CounterVec
}

// New creates a new Metrics instance registered with the default registry
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates a Metrics instance registered with reg
func NewWithRegistry(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		// HTTP metrics
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
		HTTPResponseSize: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_response_size_bytes",
				Help:    "HTTP response size in bytes",
				Buckets: []float64{100, 1000, 5000, 10000, 50000, 100000, 500000, 1000000},
			},
			[]string{"method", "path"},
		),

		// Territory metrics
		AssignmentsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "territory_assignments_total",
				Help: "Total number of territory assignment writes",
			},
			[]string{"type", "outcome"}, // manual/automatic/reassign/unassign, created/unchanged/removed/failed
		),
		OwnershipTransfers: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "territory_ownership_transfers_total",
				Help: "Total number of entity ownership transfers",
			},
			[]string{"outcome"}, // updated, skipped, failed
		),
		RuleEvaluations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "territory_rule_matches_total",
				Help: "Total number of territory match lookups",
			},
			[]string{"result"}, // matched, unmatched
		),
		AnalyticsDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "territory_analytics_duration_seconds",
				Help:    "Territory analytics computation time in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5},
			},
			[]string{"operation"},
		),
		JobRuns: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "territory_job_runs_total",
				Help: "Total number of scheduled job runs",
			},
			[]string{"job", "status"},
		),

		// Database metrics
		DBConnections: factory.NewGauge(prometheus.GaugeOpts{
			Name: "db_connections_active",
			Help: "Number of active database connections",
		}),

		// Cache metrics
		CacheHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cache_hits_total",
				Help: "Total number of cache hits",
			},
			[]string{"cache_type"},
		),
		CacheMisses: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cache_misses_total",
				Help: "Total number of cache misses",
			},
			[]string{"cache_type"},
		),
	}
}

// Middleware creates an Echo middleware for Prometheus metrics
func (m *Metrics) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			req := c.Request()
			path := c.Path() // route pattern, not the raw path

			err := next(c)

			status := strconv.Itoa(c.Response().Status)
			m.HTTPRequestsTotal.WithLabelValues(req.Method, path, status).Inc()
			m.HTTPRequestDuration.WithLabelValues(req.Method, path, status).Observe(time.Since(start).Seconds())
			m.HTTPResponseSize.WithLabelValues(req.Method, path).Observe(float64(c.Response().Size))

			return err
		}
	}
}

// The Record helpers below are safe to call on a nil *Metrics.

// RecordAssignment increments the assignment counter
func (m *Metrics) RecordAssignment(assignmentType, outcome string) {
	if m == nil {
		return
	}
	m.AssignmentsTotal.WithLabelValues(assignmentType, outcome).Inc()
}

// RecordOwnershipTransfer increments the ownership transfer counter
func (m *Metrics) RecordOwnershipTransfer(outcome string) {
	if m == nil {
		return
	}
	m.OwnershipTransfers.WithLabelValues(outcome).Inc()
}

// RecordMatch records whether a territory lookup found a match
func (m *Metrics) RecordMatch(matched bool) {
	if m == nil {
		return
	}
	result := "unmatched"
	if matched {
		result = "matched"
	}
	m.RuleEvaluations.WithLabelValues(result).Inc()
}

// RecordAnalytics records analytics computation time
func (m *Metrics) RecordAnalytics(operation string, duration time.Duration) {
	if m == nil {
		return
	}
	m.AnalyticsDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordJobRun increments the job run counter
func (m *Metrics) RecordJobRun(job string, err error) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "failed"
	}
	m.JobRuns.WithLabelValues(job, status).Inc()
}

// UpdateDBConnections updates active database connections gauge
func (m *Metrics) UpdateDBConnections(count float64) {
	if m == nil {
		return
	}
	m.DBConnections.Set(count)
}

// RecordCacheHit increments cache hits counter
func (m *Metrics) RecordCacheHit(cacheType string) {
	if m == nil {
		return
	}
	m.CacheHits.WithLabelValues(cacheType).Inc()
}

// RecordCacheMiss increments cache misses counter
func (m *Metrics) RecordCacheMiss(cacheType string) {
	if m == nil {
		return
	}
	m.CacheMisses.WithLabelValues(cacheType).Inc()
}
