package metrics

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	QueryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "koval_retrieval_query_duration_seconds",
			Help:    "Retrieval pipeline duration in seconds",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10},
		},
		[]string{"query_type"},
	)

	QueryTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "koval_retrieval_query_total",
			Help: "Total queries processed",
		},
		[]string{"status"},
	)

	VerbatimTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "koval_retrieval_verbatim_total",
			Help: "Queries answered with canonical verbatim text",
		},
	)

	ChunksReturned = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "koval_retrieval_chunks_returned",
			Help:    "Chunks returned per query",
			Buckets: []float64{0, 1, 2, 5, 10, 20},
		},
	)

	CacheHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "koval_retrieval_cache_hits_total",
			Help: "Total cache hits",
		},
		[]string{"cache_type"},
	)

	CacheMisses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "koval_retrieval_cache_misses_total",
			Help: "Total cache misses",
		},
		[]string{"cache_type"},
	)

	UpstreamErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "koval_retrieval_upstream_errors_total",
			Help: "Failed calls to upstream services",
		},
		[]string{"service"},
	)

	DocumentsProcessed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "koval_retrieval_documents_processed_total",
			Help: "Total documents processed by ingestion",
		},
	)

	EmbeddingTokensUsed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "koval_retrieval_embedding_tokens_used",
			Help: "Total embedding tokens used",
		},
		[]string{"model"},
	)
)

func Init() {
	prometheus.MustRegister(QueryDuration)
	prometheus.MustRegister(QueryTotal)
	prometheus.MustRegister(VerbatimTotal)
	prometheus.MustRegister(ChunksReturned)
	prometheus.MustRegister(CacheHits)
	prometheus.MustRegister(CacheMisses)
	prometheus.MustRegister(UpstreamErrors)
	prometheus.MustRegister(DocumentsProcessed)
	prometheus.MustRegister(EmbeddingTokensUsed)
}

func MetricsHandler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}
