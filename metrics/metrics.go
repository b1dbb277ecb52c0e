// Package metrics declares the Prometheus instruments the fetchers,
// summarizers, scheduler and reliable client report through, plus the HTTP
// server that exposes them. Grounded on the teacher's
// beacon-chain/sync/metrics.go (package-level promauto instruments) and
// shared/prometheus/service.go (the /metrics + /healthz server).
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// JobRuns counts every scheduler job invocation, labeled by job id and
	// outcome ("ok" or "error"), per §4.6's fixed job set.
	JobRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "indexer_job_runs_total",
			Help: "Count of scheduled job runs by job id and outcome.",
		},
		[]string{"job", "outcome"},
	)

	// JobDuration observes the wall-clock time of one job run.
	JobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "indexer_job_duration_seconds",
			Help:    "Duration of one scheduled job run.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"job"},
	)

	// JobOverrunsDropped counts ticks dropped because the previous run of
	// a preventOverrun job was still in flight.
	JobOverrunsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "indexer_job_overruns_dropped_total",
			Help: "Count of ticks dropped because the previous run was still in flight.",
		},
		[]string{"job"},
	)

	// ReliableRequestAttempts counts every attempt the reliable client
	// makes, labeled by pool and outcome ("success", "retry", "missed",
	// "error"), per §4.2's retry-with-backoff semantics.
	ReliableRequestAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "indexer_reliable_request_attempts_total",
			Help: "Count of reliable-client attempts by pool and outcome.",
		},
		[]string{"pool", "outcome"},
	)

	// ReliableRequestLatency observes the end-to-end latency of one
	// reliable-client call, including any retries, by pool.
	ReliableRequestLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "indexer_reliable_request_latency_seconds",
			Help:    "End-to-end latency of one reliable-client call, including retries.",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"pool"},
	)

	// PoolInFlight gauges the number of requests currently holding a pool
	// concurrency slot, by pool name (full/archive).
	PoolInFlight = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "indexer_pool_in_flight",
			Help: "Requests currently holding a pool concurrency slot.",
		},
		[]string{"pool"},
	)

	// RateLimiterTokens gauges the token bucket's current level.
	RateLimiterTokens = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "indexer_rate_limiter_tokens",
			Help: "Current level of the shared rate-limiter token bucket.",
		},
	)

	// HourlyWatermarkSlot gauges the slot the hourly summarizer has
	// advanced its watermark through, as a proxy for indexing lag.
	HourlyWatermarkSlot = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "indexer_hourly_watermark_slot",
			Help: "Slot corresponding to the current hourly summarization watermark.",
		},
	)

	// RequestsPerSecond gauges the reliable client's rolling one-second
	// beacon-request rate, from the paulbellamy/ratecounter sampling
	// window paired with the rate limiter in client.Client.
	RequestsPerSecond = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "indexer_requests_per_second",
			Help: "Rolling count of beacon requests issued in the last second.",
		},
	)
)
