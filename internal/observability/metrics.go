// Package observability wires Prometheus metrics and OpenTelemetry tracing
// for the retrieval pipeline, adapted from the teacher's pkg/observability
// (metrics.go's per-domain CounterVec/HistogramVec pattern, tracer.go's
// OTLP-gRPC tracer-provider setup), trimmed to the stages this engine
// actually has: no agent/LLM-token/tool/session counters, since this
// module exposes one RPC, not an agent runtime.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// MetricsConfig mirrors the teacher's MetricsConfig shape, trimmed to the
// fields this module's Metrics actually consults.
type MetricsConfig struct {
	Enabled   bool
	Namespace string
}

// SetDefaults fills in the namespace when unset, matching the teacher's
// NewMetrics/SetDefaults contract.
func (c *MetricsConfig) SetDefaults() {
	if c.Namespace == "" {
		c.Namespace = "wikiq"
	}
}

// Metrics holds the retrieval pipeline's Prometheus collectors: one set
// per stage (dense/sparse fanout, fusion, rerank, diversity, context
// expansion, grounding) plus a top-level query counter.
type Metrics struct {
	config   *MetricsConfig
	registry *prometheus.Registry

	queriesTotal    *prometheus.CounterVec
	queryDuration   *prometheus.HistogramVec
	queryResults    *prometheus.HistogramVec
	queryErrors     *prometheus.CounterVec
	stageDuration   *prometheus.HistogramVec
	stageResults    *prometheus.HistogramVec
	cacheHits       *prometheus.CounterVec
	cacheMisses     *prometheus.CounterVec
	groundingScore  *prometheus.HistogramVec
	filteredResults *prometheus.CounterVec
}

// NewMetrics creates a Metrics instance from configuration. Returns
// (nil, nil) when disabled, matching the teacher's no-op-on-disabled
// contract so callers can unconditionally pass the result around.
func NewMetrics(cfg *MetricsConfig) (*Metrics, error) {
	if cfg == nil || !cfg.Enabled {
		return nil, nil
	}
	cfg.SetDefaults()

	m := &Metrics{config: cfg, registry: prometheus.NewRegistry()}

	m.queriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: "query",
			Name:      "total",
			Help:      "Total number of SemanticSearch calls",
		},
		[]string{"space"},
	)

	m.queryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: cfg.Namespace,
			Subsystem: "query",
			Name:      "duration_seconds",
			Help:      "End-to-end query latency in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to 20s
		},
		[]string{"space"},
	)

	m.queryResults = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: cfg.Namespace,
			Subsystem: "query",
			Name:      "results_count",
			Help:      "Number of results returned per query",
			Buckets:   prometheus.LinearBuckets(0, 2, 11), // 0, 2, 4, ... 20
		},
		[]string{"space"},
	)

	m.queryErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: "query",
			Name:      "errors_total",
			Help:      "Total number of query errors by error kind",
		},
		[]string{"error_kind"},
	)

	m.stageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: cfg.Namespace,
			Subsystem: "stage",
			Name:      "duration_seconds",
			Help:      "Per-pipeline-stage latency in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 14), // 1ms to 8s
		},
		[]string{"stage"},
	)

	m.stageResults = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: cfg.Namespace,
			Subsystem: "stage",
			Name:      "output_count",
			Help:      "Number of hits emitted by a pipeline stage",
			Buckets:   prometheus.LinearBuckets(0, 10, 11), // 0, 10, ... 100
		},
		[]string{"stage"},
	)

	m.cacheHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: "cache",
			Name:      "hits_total",
			Help:      "Total cache hits by cache name",
		},
		[]string{"cache"},
	)

	m.cacheMisses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: "cache",
			Name:      "misses_total",
			Help:      "Total cache misses by cache name",
		},
		[]string{"cache"},
	)

	m.groundingScore = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: cfg.Namespace,
			Subsystem: "grounding",
			Name:      "score",
			Help:      "Grounding check score distribution",
			Buckets:   prometheus.LinearBuckets(0, 0.1, 11), // 0.0 to 1.0
		},
		[]string{"space"},
	)

	m.filteredResults = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: "query",
			Name:      "filtered_total",
			Help:      "Total hits removed by the adaptive-threshold or diversity filters",
		},
		[]string{"filter"},
	)

	m.registry.MustRegister(
		m.queriesTotal, m.queryDuration, m.queryResults, m.queryErrors,
		m.stageDuration, m.stageResults, m.cacheHits, m.cacheMisses,
		m.groundingScore, m.filteredResults,
	)

	return m, nil
}

// Registry exposes the underlying Prometheus registry for wiring into an
// HTTP /metrics handler via promhttp.HandlerFor.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) RecordQuery(space string, duration time.Duration, resultCount int) {
	if m == nil {
		return
	}
	m.queriesTotal.WithLabelValues(space).Inc()
	m.queryDuration.WithLabelValues(space).Observe(duration.Seconds())
	m.queryResults.WithLabelValues(space).Observe(float64(resultCount))
}

func (m *Metrics) RecordQueryError(errorKind string) {
	if m == nil {
		return
	}
	m.queryErrors.WithLabelValues(errorKind).Inc()
}

func (m *Metrics) RecordStage(stage string, duration time.Duration, outputCount int) {
	if m == nil {
		return
	}
	m.stageDuration.WithLabelValues(stage).Observe(duration.Seconds())
	m.stageResults.WithLabelValues(stage).Observe(float64(outputCount))
}

func (m *Metrics) RecordCacheHit(cache string) {
	if m == nil {
		return
	}
	m.cacheHits.WithLabelValues(cache).Inc()
}

func (m *Metrics) RecordCacheMiss(cache string) {
	if m == nil {
		return
	}
	m.cacheMisses.WithLabelValues(cache).Inc()
}

func (m *Metrics) RecordGroundingScore(space string, score float64) {
	if m == nil {
		return
	}
	m.groundingScore.WithLabelValues(space).Observe(score)
}

func (m *Metrics) RecordFiltered(filter string, count int) {
	if m == nil || count <= 0 {
		return
	}
	m.filteredResults.WithLabelValues(filter).Add(float64(count))
}
