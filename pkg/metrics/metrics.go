package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ProviderCallLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "provider_call_latency_ms",
			Help:    "Mailbox provider API call latency in milliseconds",
			Buckets: prometheus.ExponentialBuckets(10, 2, 10), // 10ms to ~10s
		},
		[]string{"provider", "operation", "status"},
	)

	SyncRunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mailbox_sync_run_duration_seconds",
			Help:    "Duration of one mailbox sync run in seconds",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms to ~100s
		},
		[]string{"provider", "mode"}, // mode: list, delta
	)

	EmailIngestedCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "email_ingested_count",
			Help: "Total number of email ingestion attempts",
		},
		[]string{"result"}, // result: created, duplicate, parse_error, failed
	)

	TimelineQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "timeline_query_duration_seconds",
			Help:    "Timeline aggregation duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"scope_kind"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
		},
		[]string{"method", "path", "status"},
	)

	SlowQueryCount = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "db_slow_query_count",
			Help: "Total number of queries slower than the slow-query threshold",
		},
	)
)

func RecordProviderCall(provider, operation, status string, duration time.Duration) {
	ProviderCallLatency.WithLabelValues(provider, operation, status).Observe(float64(duration.Milliseconds()))
}

func RecordSyncRun(provider, mode string, duration time.Duration) {
	SyncRunDuration.WithLabelValues(provider, mode).Observe(duration.Seconds())
}

func IncrementEmailIngested(result string) {
	EmailIngestedCount.WithLabelValues(result).Inc()
}

func RecordTimelineQuery(scopeKind string, duration time.Duration) {
	TimelineQueryDuration.WithLabelValues(scopeKind).Observe(duration.Seconds())
}

func RecordHTTPRequestDuration(method, path, status string, duration time.Duration) {
	HTTPRequestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())
}

func IncrementSlowQuery() {
	SlowQueryCount.Inc()
}
