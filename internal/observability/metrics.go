// Package observability provides Prometheus metrics and structured logging.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Processing metrics
	EventsProcessed        *prometheus.CounterVec
	EventsSkipped          prometheus.Counter
	EventProcessingErrors  *prometheus.CounterVec
	EventProcessingLatency *prometheus.HistogramVec

	// Correlation metrics
	CorrelationOutcomes *prometheus.CounterVec
	IntentsStaged       *prometheus.CounterVec
	IntentsBlacklisted  prometheus.Counter

	// Snapshot metrics
	SnapshotWrites     *prometheus.CounterVec
	SnapshotSinkErrors prometheus.Counter

	// Metadata metrics
	RPCCallLatency       *prometheus.HistogramVec
	MetadataCacheLookups *prometheus.CounterVec

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec

	// Health metrics
	LastProcessedBlock      prometheus.Gauge
	LastSuccessfulEventTime prometheus.Gauge
	ChainHeadBlock          prometheus.Gauge
}

// NewMetrics creates a new Metrics instance registered with the default registry.
func NewMetrics(namespace string) *Metrics {
	return NewMetricsWith(prometheus.DefaultRegisterer, namespace)
}

// NewMetricsWith creates a new Metrics instance registered with reg.
func NewMetricsWith(reg prometheus.Registerer, namespace string) *Metrics {
	if namespace == "" {
		namespace = "moxie_indexer"
	}
	factory := promauto.With(reg)

	return &Metrics{
		// Processing metrics
		EventsProcessed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "processor",
			Name:      "events_processed_total",
			Help:      "Total number of events applied by kind",
		}, []string{"event_type"}),
		EventsSkipped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "processor",
			Name:      "events_skipped_total",
			Help:      "Total number of redelivered events at or below the checkpoint",
		}),
		EventProcessingErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "processor",
			Name:      "event_processing_errors_total",
			Help:      "Total number of fatal event processing errors by type",
		}, []string{"event_type", "error_type"}),
		EventProcessingLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "processor",
			Name:      "event_processing_latency_seconds",
			Help:      "Event processing latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"event_type"}),

		// Correlation metrics
		CorrelationOutcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "correlation",
			Name:      "outcomes_total",
			Help:      "Total number of settled transfers by outcome",
		}, []string{"outcome"}),
		IntentsStaged: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "correlation",
			Name:      "intents_staged_total",
			Help:      "Total number of auction intents staged by kind",
		}, []string{"kind"}),
		IntentsBlacklisted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "correlation",
			Name:      "intents_blacklisted_total",
			Help:      "Total number of auction intents skipped by the blacklist",
		}),

		// Snapshot metrics
		SnapshotWrites: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "snapshot",
			Name:      "writes_total",
			Help:      "Total number of snapshot writes by granularity",
		}, []string{"granularity"}),
		SnapshotSinkErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "snapshot",
			Name:      "sink_errors_total",
			Help:      "Total number of failed analytics sink flushes",
		}),

		// Metadata metrics
		RPCCallLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "rpc",
			Name:      "call_latency_seconds",
			Help:      "Ethereum RPC call latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		MetadataCacheLookups: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "metadata",
			Name:      "cache_lookups_total",
			Help:      "Total number of token metadata cache lookups by result",
		}, []string{"result"}),

		// Database metrics
		DBQueryDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"database", "operation"}),
		DBQueryErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_errors_total",
			Help:      "Total number of database query errors",
		}, []string{"database", "operation"}),

		// Health metrics
		LastProcessedBlock: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_processed_block",
			Help:      "Block number of the last applied event",
		}),
		LastSuccessfulEventTime: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_event_timestamp",
			Help:      "Unix timestamp of the last applied event",
		}),
		ChainHeadBlock: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "chain_head_block",
			Help:      "Latest block number announced by the chain node",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordEventProcessed records an applied event and its latency.
func (m *Metrics) RecordEventProcessed(eventType string, block uint64, seconds float64) {
	m.EventsProcessed.WithLabelValues(eventType).Inc()
	m.EventProcessingLatency.WithLabelValues(eventType).Observe(seconds)
	m.LastProcessedBlock.Set(float64(block))
	m.LastSuccessfulEventTime.SetToCurrentTime()
}

// RecordEventSkipped increments the skipped events counter.
func (m *Metrics) RecordEventSkipped() {
	m.EventsSkipped.Inc()
}

// RecordEventError records a fatal event processing error.
func (m *Metrics) RecordEventError(eventType, errorType string) {
	m.EventProcessingErrors.WithLabelValues(eventType, errorType).Inc()
}

// RecordCorrelation records the outcome of a settled transfer.
func (m *Metrics) RecordCorrelation(outcome string) {
	m.CorrelationOutcomes.WithLabelValues(outcome).Inc()
}

// RecordIntent records a staged or blacklisted intent.
func (m *Metrics) RecordIntent(kind string, staged bool) {
	if !staged {
		m.IntentsBlacklisted.Inc()
		return
	}
	m.IntentsStaged.WithLabelValues(kind).Inc()
}

// RecordSnapshotWrites records flushed snapshot writes for a granularity.
func (m *Metrics) RecordSnapshotWrites(granularity string, n int) {
	m.SnapshotWrites.WithLabelValues(granularity).Add(float64(n))
}

// RecordSinkError increments the sink error counter.
func (m *Metrics) RecordSinkError() {
	m.SnapshotSinkErrors.Inc()
}

// RecordRPCLatency records RPC call latency.
func (m *Metrics) RecordRPCLatency(method string, seconds float64) {
	m.RPCCallLatency.WithLabelValues(method).Observe(seconds)
}

// RecordCacheLookup records a metadata cache hit or miss.
func (m *Metrics) RecordCacheLookup(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.MetadataCacheLookups.WithLabelValues(result).Inc()
}

// RecordDBQuery records database query metrics.
func (m *Metrics) RecordDBQuery(database, operation string, seconds float64, err error) {
	m.DBQueryDuration.WithLabelValues(database, operation).Observe(seconds)
	if err != nil {
		m.DBQueryErrors.WithLabelValues(database, operation).Inc()
	}
}

// RecordChainHead sets the chain head gauge.
func (m *Metrics) RecordChainHead(block uint64) {
	m.ChainHeadBlock.Set(float64(block))
}
