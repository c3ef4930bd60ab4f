package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agentmemory_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "agentmemory_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	HTTPRequestsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "agentmemory_http_requests_in_flight",
			Help: "HTTP requests currently being served.",
		},
	)

	MemoryOperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agentmemory_operations_total",
			Help: "Memory operations by tier and outcome.",
		},
		[]string{"op", "tier", "outcome"},
	)

	MemoryFallbacksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agentmemory_fallbacks_total",
			Help: "Number of times an operation fell through a failing tier.",
		},
		[]string{"op", "from"},
	)

	EmbeddingCacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agentmemory_embedding_cache_total",
			Help: "Embedding lookups by result (redis_hit, local_hit, provider, local_generated).",
		},
		[]string{"result"},
	)

	VectorIndexCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agentmemory_vector_index_calls_total",
			Help: "Vector index calls by operation and outcome.",
		},
		[]string{"op", "outcome"},
	)

	RateLimitedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "agentmemory_rate_limited_total",
			Help: "Requests rejected by the API rate limiter.",
		},
	)

	WorkerPoolQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "agentmemory_worker_pool_queue_depth",
			Help: "Tasks waiting in the vector index worker pool.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		HTTPRequestsInFlight,
		MemoryOperationsTotal,
		MemoryFallbacksTotal,
		EmbeddingCacheTotal,
		VectorIndexCallsTotal,
		RateLimitedTotal,
		WorkerPoolQueueDepth,
	)
}
