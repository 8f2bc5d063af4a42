// Package metrics holds the Prometheus collectors shared by the search
// pipeline. Collectors are registered at init via promauto; callers use
// the Record* helpers so label sets stay consistent.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Search pipeline
	SearchesStarted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bahith_searches_started_total",
			Help: "Search requests entering the pipeline",
		},
		[]string{"mode", "refined"},
	)

	SearchesCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bahith_searches_completed_total",
			Help: "Search requests completed",
		},
		[]string{"mode", "refined", "status"},
	)

	SearchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bahith_search_duration_seconds",
			Help:    "End-to-end search latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"mode", "refined"},
	)

	// Engine branches
	EngineRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bahith_engine_requests_total",
			Help: "Per-engine branch outcomes (lexical, vector, graph)",
		},
		[]string{"engine", "domain", "status"},
	)

	EngineLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bahith_engine_latency_seconds",
			Help:    "Per-engine branch latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"engine", "domain"},
	)

	// Vector store
	VectorSearches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bahith_vector_search_total",
			Help: "Vector store searches",
		},
		[]string{"collection", "status"},
	)

	VectorSearchLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bahith_vector_search_latency_seconds",
			Help:    "Vector search latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"collection"},
	)

	// Embeddings
	EmbeddingRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bahith_embedding_requests_total",
			Help: "Embedding lookups by outcome (memory_hit, redis_hit, backend_ok, error)",
		},
		[]string{"model", "status"},
	)

	EmbeddingLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bahith_embedding_latency_seconds",
			Help:    "Embedding backend latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"model"},
	)

	EmbeddingRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "bahith_embedding_retries_total",
			Help: "Embedding backend retries after HTTP 429",
		},
	)

	// Reranker
	RerankRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bahith_rerank_requests_total",
			Help: "LLM rerank calls by outcome (ok, parse_fallback, timeout, error)",
		},
		[]string{"model", "status"},
	)

	RerankLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bahith_rerank_latency_seconds",
			Help:    "LLM rerank latency",
			Buckets: []float64{0.5, 1, 2, 5, 10, 15, 20, 25},
		},
		[]string{"model"},
	)

	// Query expansion
	ExpansionRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bahith_expansion_requests_total",
			Help: "Query expansion calls by outcome (cache_hit, ok, parse_fallback, error)",
		},
		[]string{"status"},
	)

	// Translation merge
	TranslationMerges = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bahith_translation_merges_total",
			Help: "Translation joins by domain and outcome",
		},
		[]string{"domain", "status"},
	)

	// Indexed-book-set refreshes
	IndexedSetRefreshes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bahith_indexed_set_refreshes_total",
			Help: "Indexed-book-set recomputations",
		},
		[]string{"status"},
	)

	// Analytics sink
	AnalyticsEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bahith_analytics_events_total",
			Help: "Fire-and-forget analytics events",
		},
		[]string{"status"},
	)
)

// RecordSearchStarted records a search request entering the pipeline.
func RecordSearchStarted(mode string, refined bool) {
	SearchesStarted.WithLabelValues(mode, boolLabel(refined)).Inc()
}

// RecordSearch records a completed search request.
func RecordSearch(mode string, refined bool, status string, seconds float64) {
	r := boolLabel(refined)
	SearchesCompleted.WithLabelValues(mode, r, status).Inc()
	SearchDuration.WithLabelValues(mode, r).Observe(seconds)
}

// RecordEngine records one fan-out branch outcome.
func RecordEngine(engine, domain, status string, seconds float64) {
	EngineRequests.WithLabelValues(engine, domain, status).Inc()
	if seconds > 0 {
		EngineLatency.WithLabelValues(engine, domain).Observe(seconds)
	}
}

// RecordVectorSearch records a vector store call.
func RecordVectorSearch(collection, status string, seconds float64) {
	VectorSearches.WithLabelValues(collection, status).Inc()
	if seconds > 0 {
		VectorSearchLatency.WithLabelValues(collection).Observe(seconds)
	}
}

// RecordEmbedding records an embedding lookup or backend call.
func RecordEmbedding(model, status string, seconds float64) {
	EmbeddingRequests.WithLabelValues(model, status).Inc()
	if seconds > 0 {
		EmbeddingLatency.WithLabelValues(model).Observe(seconds)
	}
}

// RecordRerank records an LLM rerank call.
func RecordRerank(model, status string, seconds float64) {
	RerankRequests.WithLabelValues(model, status).Inc()
	if seconds > 0 {
		RerankLatency.WithLabelValues(model).Observe(seconds)
	}
}

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
