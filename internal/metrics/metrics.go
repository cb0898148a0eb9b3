package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Workflow metrics
	WorkflowsStarted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "agenticrag_workflows_started_total",
			Help: "Total number of agentic workflow runs started",
		},
	)

	WorkflowsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agenticrag_workflows_completed_total",
			Help: "Total number of agentic workflow runs completed",
		},
		[]string{"query_type", "status"},
	)

	WorkflowDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "agenticrag_workflow_duration_seconds",
			Help:    "End-to-end workflow duration in seconds",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"query_type"},
	)

	NodeDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "agenticrag_node_duration_seconds",
			Help:    "Per-node execution duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"node", "status"},
	)

	QueriesClassified = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agenticrag_queries_classified_total",
			Help: "Queries by classified intent",
		},
		[]string{"query_type", "recognized"},
	)

	RetrievalConfidence = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "agenticrag_retrieval_confidence",
			Help:    "Confidence derived from retrieved neighbors",
			Buckets: []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1},
		},
	)

	QualityGateFallbacks = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "agenticrag_quality_gate_fallbacks_total",
			Help: "Runs where low retrieval confidence downgraded the retrieval decision",
		},
	)

	// LLM metrics
	LLMRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agenticrag_llm_requests_total",
			Help: "Completion requests sent to the language model",
		},
		[]string{"model", "purpose", "status"},
	)

	LLMLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "agenticrag_llm_latency_seconds",
			Help:    "Completion request latency in seconds",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"model", "purpose"},
	)

	LLMTokens = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agenticrag_llm_tokens_total",
			Help: "Tokens reported by the language model",
		},
		[]string{"model", "kind"},
	)

	LLMCost = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agenticrag_llm_cost_usd_total",
			Help: "Estimated completion spend in USD",
		},
		[]string{"model"},
	)

	PricingFallbacks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agenticrag_pricing_fallbacks_total",
			Help: "Cost estimates that used the default price",
		},
		[]string{"reason"},
	)

	// Retry metrics
	RetryAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agenticrag_retry_attempts_total",
			Help: "Retries issued for transient external failures",
		},
		[]string{"operation"},
	)

	RetryExhausted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agenticrag_retry_exhausted_total",
			Help: "Operations that failed after exhausting retries",
		},
		[]string{"operation"},
	)

	// Vector store metrics
	VectorSearches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agenticrag_vector_searches_total",
			Help: "Nearest-neighbor queries against the vector store",
		},
		[]string{"store", "status"},
	)

	VectorSearchLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "agenticrag_vector_search_latency_seconds",
			Help:    "Vector search latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"store"},
	)

	DocumentsIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agenticrag_documents_ingested_total",
			Help: "Documents written to the knowledge base",
		},
		[]string{"source"},
	)

	KnowledgeBaseDocuments = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "agenticrag_knowledge_base_documents",
			Help: "Documents currently stored in the knowledge base",
		},
	)

	// Embedding metrics
	EmbeddingRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agenticrag_embedding_requests_total",
			Help: "Embedding lookups by outcome (lru_hit, cache_hit, ok, error)",
		},
		[]string{"model", "status"},
	)

	EmbeddingLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "agenticrag_embedding_latency_seconds",
			Help:    "Embedding provider latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"model"},
	)

	// Web search metrics
	WebSearches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agenticrag_web_searches_total",
			Help: "Web search requests by provider and outcome",
		},
		[]string{"provider", "status"},
	)

	// HTTP metrics
	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agenticrag_http_requests_total",
			Help: "API requests by route and status code",
		},
		[]string{"method", "route", "code"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "agenticrag_http_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	// Run log metrics
	RunLogWrites = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agenticrag_run_log_writes_total",
			Help: "Workflow run log writes by outcome",
		},
		[]string{"status"},
	)
)

// RecordWorkflowMetrics records a finished run.
func RecordWorkflowMetrics(queryType, status string, durationSeconds float64) {
	WorkflowsCompleted.WithLabelValues(queryType, status).Inc()
	WorkflowDuration.WithLabelValues(queryType).Observe(durationSeconds)
}

// RecordNodeMetrics records one node execution.
func RecordNodeMetrics(node, status string, durationSeconds float64) {
	NodeDuration.WithLabelValues(node, status).Observe(durationSeconds)
}

// RecordLLMMetrics records a completion request.
func RecordLLMMetrics(model, purpose, status string, durationSeconds float64, promptTokens, completionTokens int64) {
	LLMRequests.WithLabelValues(model, purpose, status).Inc()
	if durationSeconds > 0 {
		LLMLatency.WithLabelValues(model, purpose).Observe(durationSeconds)
	}
	if promptTokens > 0 {
		LLMTokens.WithLabelValues(model, "prompt").Add(float64(promptTokens))
	}
	if completionTokens > 0 {
		LLMTokens.WithLabelValues(model, "completion").Add(float64(completionTokens))
	}
}

// RecordLLMCost adds an estimated completion cost.
func RecordLLMCost(model string, usd float64) {
	if usd > 0 {
		LLMCost.WithLabelValues(model).Add(usd)
	}
}

// RecordVectorSearchMetrics records vector search metrics
func RecordVectorSearchMetrics(store, status string, durationSeconds float64) {
	VectorSearches.WithLabelValues(store, status).Inc()
	if durationSeconds > 0 {
		VectorSearchLatency.WithLabelValues(store).Observe(durationSeconds)
	}
}

// RecordEmbeddingMetrics records embedding metrics
func RecordEmbeddingMetrics(model, status string, durationSeconds float64) {
	EmbeddingRequests.WithLabelValues(model, status).Inc()
	if durationSeconds > 0 {
		EmbeddingLatency.WithLabelValues(model).Observe(durationSeconds)
	}
}

// RecordHTTPMetrics records an API request.
func RecordHTTPMetrics(method, route, code string, durationSeconds float64) {
	HTTPRequests.WithLabelValues(method, route, code).Inc()
	HTTPRequestDuration.WithLabelValues(method, route).Observe(durationSeconds)
}
