// Package metrics provides internal metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// =============================================================================
// 📊 指标收集器
// =============================================================================

// Collector 指标收集器.
//
// 同时实现 llm.CallObserver、rag.IndexObserver、rag.AnswerObserver、
// policy.IngestionObserver 与 embedding.CacheObserver，由组装层直接注入。
type Collector struct {
	// HTTP 指标
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	httpResponseSize    *prometheus.HistogramVec

	// 外部能力（embedding / generation）指标
	capabilityCallsTotal   *prometheus.CounterVec
	capabilityCallDuration *prometheus.HistogramVec

	// RAG 指标
	answersTotal    *prometheus.CounterVec
	answerDuration  *prometheus.HistogramVec
	answerRetrieved prometheus.Histogram
	indexVectors    prometheus.Gauge
	ingestionsTotal *prometheus.CounterVec
	ingestedChunks  prometheus.Counter
	ingestDuration  prometheus.Histogram

	// 缓存指标
	cacheHits   *prometheus.CounterVec
	cacheMisses *prometheus.CounterVec

	// 数据库指标
	dbConnectionsOpen *prometheus.GaugeVec
	dbConnectionsIdle *prometheus.GaugeVec

	logger *zap.Logger
}

// NewCollector 创建指标收集器（注册到默认 registry）
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	// HTTP 指标
	c.httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	c.httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	c.httpResponseSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_response_size_bytes",
			Help:      "HTTP response size in bytes",
			Buckets:   prometheus.ExponentialBuckets(100, 10, 6),
		},
		[]string{"method", "path"},
	)

	// 外部能力指标
	c.capabilityCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "capability_calls_total",
			Help:      "Total number of embedding and generation calls",
		},
		[]string{"kind", "provider", "model", "status"},
	)

	c.capabilityCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "capability_call_duration_seconds",
			Help:      "Embedding and generation call duration in seconds, retries included",
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"kind", "provider", "model"},
	)

	// RAG 指标
	c.answersTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "answers_total",
			Help:      "Total number of answered questions by outcome",
		},
		[]string{"outcome"},
	)

	c.answerDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "answer_duration_seconds",
			Help:      "End-to-end answer latency in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"outcome"},
	)

	c.answerRetrieved = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "answer_retrieved_chunks",
			Help:      "Number of chunks retrieved per answer",
			Buckets:   prometheus.LinearBuckets(0, 1, 11),
		},
	)

	c.indexVectors = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "index_vectors",
			Help:      "Number of vectors in the published index",
		},
	)

	c.ingestionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingestions_total",
			Help:      "Total number of document ingestions by outcome",
		},
		[]string{"outcome"},
	)

	c.ingestedChunks = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingested_chunks_total",
			Help:      "Total number of chunks appended to the index",
		},
	)

	c.ingestDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "ingestion_duration_seconds",
			Help:      "Document ingestion duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		},
	)

	// 缓存指标
	c.cacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_hits_total",
			Help:      "Total number of cache hits",
		},
		[]string{"cache_type"},
	)

	c.cacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_misses_total",
			Help:      "Total number of cache misses",
		},
		[]string{"cache_type"},
	)

	// 数据库指标
	c.dbConnectionsOpen = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "db_connections_open",
			Help:      "Number of open database connections",
		},
		[]string{"database"},
	)

	c.dbConnectionsIdle = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "db_connections_idle",
			Help:      "Number of idle database connections",
		},
		[]string{"database"},
	)

	logger.Info("metrics collector initialized", zap.String("namespace", namespace))

	return c
}

// =============================================================================
// 🎯 HTTP 指标记录
// =============================================================================

// RecordHTTPRequest 记录 HTTP 请求
func (c *Collector) RecordHTTPRequest(method, path string, status int, duration time.Duration, responseSize int64) {
	c.httpRequestsTotal.WithLabelValues(method, path, statusClass(status)).Inc()
	c.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	c.httpResponseSize.WithLabelValues(method, path).Observe(float64(responseSize))
}

// =============================================================================
// 🤖 外部能力与 RAG 指标
// =============================================================================

// ObserveCall 实现 llm.CallObserver
func (c *Collector) ObserveCall(kind, provider, model, status string, duration time.Duration) {
	c.capabilityCallsTotal.WithLabelValues(kind, provider, model, status).Inc()
	c.capabilityCallDuration.WithLabelValues(kind, provider, model).Observe(duration.Seconds())
}

// ObserveAnswer 实现 rag.AnswerObserver
func (c *Collector) ObserveAnswer(outcome string, retrieved int, duration time.Duration) {
	c.answersTotal.WithLabelValues(outcome).Inc()
	c.answerDuration.WithLabelValues(outcome).Observe(duration.Seconds())
	c.answerRetrieved.Observe(float64(retrieved))
}

// ObserveIndexSize 实现 rag.IndexObserver
func (c *Collector) ObserveIndexSize(vectors int) {
	c.indexVectors.Set(float64(vectors))
}

// ObserveIngestion 实现 policy.IngestionObserver
func (c *Collector) ObserveIngestion(outcome string, chunks int, duration time.Duration) {
	c.ingestionsTotal.WithLabelValues(outcome).Inc()
	c.ingestedChunks.Add(float64(chunks))
	c.ingestDuration.Observe(duration.Seconds())
}

// =============================================================================
// 💾 缓存指标记录
// =============================================================================

// ObserveCacheLookup 实现 embedding.CacheObserver
func (c *Collector) ObserveCacheLookup(cacheType string, hits, misses int) {
	if hits > 0 {
		c.cacheHits.WithLabelValues(cacheType).Add(float64(hits))
	}
	if misses > 0 {
		c.cacheMisses.WithLabelValues(cacheType).Add(float64(misses))
	}
}

// =============================================================================
// 🗄️ 数据库指标记录
// =============================================================================

// RecordDBConnections 记录数据库连接数
func (c *Collector) RecordDBConnections(database string, open, idle int) {
	c.dbConnectionsOpen.WithLabelValues(database).Set(float64(open))
	c.dbConnectionsIdle.WithLabelValues(database).Set(float64(idle))
}

// =============================================================================
// 🔧 辅助函数
// =============================================================================

// statusClass 将 HTTP 状态码归类
func statusClass(code int) string {
	if code < 100 || code > 599 {
		return "unknown"
	}
	return strconv.Itoa(code/100) + "xx"
}
