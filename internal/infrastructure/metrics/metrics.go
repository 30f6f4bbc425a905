// Package metrics exposes Prometheus collectors for tenant isolation,
// usage metering and limit enforcement.
package metrics

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "lending"

var (
	UnscopedAccessTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tenancy",
			Name:      "unscoped_access_total",
			Help:      "Privileged accessors handed out, by declared reason.",
		},
		[]string{"reason"},
	)

	TenantStampCorrectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tenancy",
			Name:      "stamp_corrections_total",
			Help:      "Create payloads whose tenant id was overwritten or rejected, by entity kind and policy.",
		},
		[]string{"kind", "policy"},
	)

	UsageIncrementsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "usage",
			Name:      "increments_total",
			Help:      "Usage counter increments by resource kind and result.",
		},
		[]string{"kind", "result"},
	)

	UsageCacheRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "usage",
			Name:      "cache_requests_total",
			Help:      "Usage cache lookups by result (hit, miss, error).",
		},
		[]string{"result"},
	)

	StockBackfillsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "usage",
			Name:      "stock_backfills_total",
			Help:      "Stock counters recomputed from tenant tables, by resource kind.",
		},
		[]string{"kind"},
	)

	LimitChecksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "limits",
			Name:      "checks_total",
			Help:      "Limit decisions by resource kind and outcome.",
		},
		[]string{"kind", "outcome"},
	)

	NotificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notifications",
			Name:      "requests_total",
			Help:      "Notification requests by kind and outcome (sent, suppressed, failed).",
		},
		[]string{"kind", "outcome"},
	)

	SubscriptionTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "subscriptions",
			Name:      "transitions_total",
			Help:      "Subscription status transitions by target status.",
		},
		[]string{"status"},
	)

	SchedulerJobDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "job_duration_seconds",
			Help:      "Billing scheduler job duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"job"},
	)

	SchedulerJobFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "job_failures_total",
			Help:      "Billing scheduler job failures.",
		},
		[]string{"job"},
	)

	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by method, route and status code.",
		},
		[]string{"method", "route", "status_code"},
	)

	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency in seconds.",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"method", "route"},
	)

	HTTPActiveRequests = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "active_requests",
			Help:      "HTTP requests currently being served.",
		},
	)
)

// Limit decision outcomes.
const (
	OutcomeAllowed   = "allowed"
	OutcomeNear      = "near"
	OutcomeBlocked   = "blocked"
	OutcomeUnlimited = "unlimited"
	OutcomeUnknown   = "unknown"
)

// Cache lookup results.
const (
	CacheHit   = "hit"
	CacheMiss  = "miss"
	CacheError = "error"
)

func init() {
	prometheus.MustRegister(
		UnscopedAccessTotal,
		TenantStampCorrectionsTotal,
		UsageIncrementsTotal,
		UsageCacheRequestsTotal,
		StockBackfillsTotal,
		LimitChecksTotal,
		NotificationsTotal,
		SubscriptionTransitionsTotal,
		SchedulerJobDuration,
		SchedulerJobFailuresTotal,
		HTTPRequestsTotal,
		HTTPRequestDuration,
		HTTPActiveRequests,
	)
}

// Handler returns the Prometheus metrics HTTP handler for the /metrics endpoint.
func Handler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}
