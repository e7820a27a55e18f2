package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "tutorcore"

var (
	// AuthorizationDenials counts gate denials.
	// Labels: operation
	AuthorizationDenials = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "authorization_denials_total",
			Help:      "Total number of denied tenant authorization checks",
		},
		[]string{"operation"},
	)

	// ChunksStored counts chunks written by chunk replacement.
	ChunksStored = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "chunks_stored_total",
			Help:      "Total number of content chunks stored",
		},
	)

	// EmbeddingsWritten counts vectors committed to chunks.
	EmbeddingsWritten = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "embeddings_written_total",
			Help:      "Total number of chunk embeddings committed",
		},
	)

	// ProviderRequests counts embedding provider calls.
	// Labels: result (success, transient, error)
	ProviderRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "provider",
			Name:      "requests_total",
			Help:      "Total number of embedding provider requests",
		},
		[]string{"result"},
	)

	// ProviderDuration tracks embedding provider latency.
	ProviderDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "provider",
			Name:      "request_duration_seconds",
			Help:      "Duration of embedding provider requests in seconds",
			Buckets:   prometheus.DefBuckets,
		},
	)

	// SearchDuration tracks similarity search latency.
	// Labels: backend (pgvector, memory), mode (exact, approximate)
	SearchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "search",
			Name:      "duration_seconds",
			Help:      "Duration of similarity searches in seconds",
			Buckets:   []float64{.001, .0025, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"backend", "mode"},
	)

	// RetrievalFallbacks counts retrievals that found no context.
	RetrievalFallbacks = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "retrieval",
			Name:      "fallbacks_total",
			Help:      "Total number of retrievals answered without context",
		},
	)

	// QueryCacheLookups counts query embedding cache lookups.
	// Labels: result (hit, miss, error)
	QueryCacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "lookups_total",
			Help:      "Total number of query embedding cache lookups",
		},
		[]string{"result"},
	)

	// JobsProcessed counts embedding jobs by outcome.
	// Labels: result (completed, retried, failed)
	JobsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "jobs",
			Name:      "processed_total",
			Help:      "Total number of embedding jobs processed",
		},
		[]string{"result"},
	)

	// IndexVectors is the number of vectors held by the in-memory index.
	IndexVectors = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "index",
			Name:      "vectors",
			Help:      "Number of vectors in the in-memory similarity index",
		},
	)
)
