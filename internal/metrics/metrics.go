// Package metrics exposes the Prometheus instrumentation for the
// service.
package metrics

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	DocumentsIngested = promauto.NewCounter(prometheus.CounterOpts{
		Name: "docqa_documents_ingested_total",
		Help: "Number of documents ingested into per-document indexes.",
	})

	ChunksAppended = promauto.NewCounter(prometheus.CounterOpts{
		Name: "docqa_chunks_appended_total",
		Help: "Number of chunks appended across all indexes.",
	})

	SummariesGenerated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "docqa_summaries_generated_total",
		Help: "Number of document summaries generated.",
	})

	QARequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "docqa_qa_requests_total",
		Help: "QA requests by agent kind and outcome.",
	}, []string{"agent", "status"})

	QALatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "docqa_qa_latency_seconds",
		Help:    "End-to-end QA latency by agent kind.",
		Buckets: prometheus.DefBuckets,
	}, []string{"agent"})

	LLMLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "docqa_llm_latency_seconds",
		Help:    "Upstream LLM call latency by operation.",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})

	CacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "docqa_cache_hits_total",
		Help: "Cache hits by kind.",
	}, []string{"kind"})

	CacheMisses = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "docqa_cache_misses_total",
		Help: "Cache misses by kind.",
	}, []string{"kind"})

	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "docqa_active_websocket_sessions",
		Help: "Currently open websocket query sessions.",
	})
)

// Handler serves the Prometheus scrape endpoint through fiber.
func Handler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}
