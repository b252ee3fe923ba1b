package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Pipeline-level metrics. Registered once at package init; callers record
// through the exported collectors.
var (
	IngestDocsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mcpress_ingest_docs_total",
		Help: "Documents ingested, by outcome.",
	}, []string{"outcome"})

	IngestChunksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mcpress_ingest_chunks_total",
		Help: "Chunks produced by ingestion, by chunk type.",
	}, []string{"type"})

	IngestStageSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "mcpress_ingest_stage_seconds",
		Help:    "Ingestion stage durations.",
		Buckets: prometheus.DefBuckets,
	}, []string{"stage"})

	RetrieveStageSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "mcpress_retrieve_stage_seconds",
		Help:    "Retrieval stage durations.",
		Buckets: prometheus.DefBuckets,
	}, []string{"stage"})

	RetrieveResultsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mcpress_retrieve_results_total",
		Help: "Chunks returned to the answerer after filtering.",
	})

	AnswerTokensTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mcpress_answer_tokens_total",
		Help: "Token events streamed to callers.",
	})

	EmbedBatchSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "mcpress_embed_batch_seconds",
		Help:    "Embedding batch round-trip durations.",
		Buckets: prometheus.DefBuckets,
	})

	EnrichFallbacksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mcpress_enrich_fallbacks_total",
		Help: "Sources degraded to stub enrichment.",
	})
)
