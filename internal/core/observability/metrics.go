// Package observability holds the Prometheus vectors shared by the service.
package observability

import (
	"errors"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 14), // 5ms to ~80s
		},
		[]string{"method", "route", "status"},
	)

	upstreamLatencySeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "upstream_latency_seconds",
			Help:    "Latency of map server calls in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		},
		[]string{"upstream", "request"},
	)

	buildInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "impact_build_info",
			Help: "Build information for the binary.",
		},
		[]string{"version"},
	)

	impactRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "impact_runs_total",
			Help: "Impact function runs by function and terminal state.",
		},
		[]string{"function", "state"},
	)

	impactStageSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "impact_stage_duration_seconds",
			Help:    "Time spent per runner stage.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 16),
		},
		[]string{"stage"},
	)

	metadataPollTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "metadata_poll_attempts_total",
			Help: "Metadata polling attempts by outcome.",
		},
		[]string{"outcome"},
	)

	cacheResults = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_results_total",
			Help: "Metadata cache lookups by tier and outcome.",
		},
		[]string{"tier", "outcome"},
	)

	cacheOpTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_op_total",
			Help: "Redis operations by result.",
		},
		[]string{"op", "result"},
	)

	redisOpSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "redis_operation_duration_seconds",
			Help:    "Redis operation latency.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
		},
		[]string{"op"},
	)

	invalidationEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "invalidation_events_total",
			Help: "Layer update events by outcome.",
		},
		[]string{"outcome"},
	)

	collectors = []prometheus.Collector{
		httpRequestsTotal, httpRequestDurationSeconds, upstreamLatencySeconds, buildInfo,
		impactRunsTotal, impactStageSeconds, metadataPollTotal,
		cacheResults, cacheOpTotal, redisOpSeconds, invalidationEvents,
	}
)

// Init registers every vector on reg. Vectors are always updated; when Init
// is never called or enabled is false they are simply not exported.
func Init(reg prometheus.Registerer, enabled bool) {
	if !enabled || reg == nil {
		return
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			panic(err)
		}
	}
}

func ObserveHTTP(method, route string, status int, durationSeconds float64) {
	st := strconv.Itoa(status)
	httpRequestsTotal.WithLabelValues(method, route, st).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route, st).Observe(durationSeconds)
}

// ObserveUpstreamLatency records one OWS call; request is the OGC request name.
func ObserveUpstreamLatency(upstream, request string, durationSeconds float64) {
	upstreamLatencySeconds.WithLabelValues(upstream, request).Observe(durationSeconds)
}

func ObserveStage(stage string, durationSeconds float64) {
	impactStageSeconds.WithLabelValues(stage).Observe(durationSeconds)
}

func IncImpactRun(function, state string) {
	impactRunsTotal.WithLabelValues(function, state).Inc()
}

func IncMetadataPoll(outcome string) {
	metadataPollTotal.WithLabelValues(outcome).Inc()
}

func IncCacheHit(tier string) {
	cacheResults.WithLabelValues(tier, "hit").Inc()
}

func IncCacheMiss(tier string) {
	cacheResults.WithLabelValues(tier, "miss").Inc()
}

func ObserveCacheOp(op string, err error, durationSeconds float64) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	cacheOpTotal.WithLabelValues(op, result).Inc()
	redisOpSeconds.WithLabelValues(op).Observe(durationSeconds)
}

func IncInvalidation(outcome string) {
	invalidationEvents.WithLabelValues(outcome).Inc()
}

func ExposeBuildInfo(version string) {
	if version == "" {
		version = "dev"
	}
	buildInfo.WithLabelValues(version).Set(1)
}
