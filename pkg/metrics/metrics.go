// Package metrics 提供 Prometheus 指标采集功能
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespace = "synapse"
)

var (
	// HTTP 请求指标
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path"},
	)

	// 摄取指标
	IngestChunksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "chunks_total",
			Help:      "Total number of chunks processed by the ingestion pipeline",
		},
		[]string{"source_kind", "status"}, // status: written/failed
	)

	IngestDocumentDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "document_duration_seconds",
			Help:      "Per-document ingestion duration in seconds",
			Buckets:   []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"source_kind"},
	)

	// Embedding 指标
	EmbeddingCallTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "embedding",
			Name:      "call_total",
			Help:      "Total number of embedding provider calls",
		},
		[]string{"status"}, // status: ok/transient/fatal
	)

	EmbeddingCallDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "embedding",
			Name:      "call_duration_seconds",
			Help:      "Embedding provider call duration in seconds",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10},
		},
	)

	// 向量检索指标
	VectorSearchTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "vector",
			Name:      "search_total",
			Help:      "Total number of vector index searches",
		},
		[]string{"backend", "status"},
	)

	VectorSearchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "vector",
			Name:      "search_duration_seconds",
			Help:      "Vector index search duration in seconds",
			Buckets:   []float64{.01, .05, .1, .25, .5, 1},
		},
		[]string{"backend"},
	)

	VectorUpsertTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "vector",
			Name:      "upsert_records_total",
			Help:      "Total number of records written to the vector index",
		},
		[]string{"backend"},
	)

	// LLM 指标
	LLMCallTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "llm",
			Name:      "call_total",
			Help:      "Total number of LLM completion calls",
		},
		[]string{"provider", "model", "status"},
	)

	LLMCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "llm",
			Name:      "call_duration_seconds",
			Help:      "LLM completion call duration in seconds",
			Buckets:   []float64{.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"provider", "model"},
	)

	LLMTokensTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "llm",
			Name:      "tokens_total",
			Help:      "Total number of LLM tokens consumed",
		},
		[]string{"provider", "model", "kind"}, // kind: prompt/completion
	)

	// 同步任务指标
	SyncJobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "jobs_total",
			Help:      "Total number of source sync jobs by terminal status",
		},
		[]string{"source_kind", "status"},
	)

	SyncJobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "job_duration_seconds",
			Help:      "Source sync job duration in seconds",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"source_kind"},
	)
)
