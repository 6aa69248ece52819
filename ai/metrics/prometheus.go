// Package metrics provides Prometheus metrics export for the AI modules.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Exporter exports AI metrics in Prometheus format.
// A nil *Exporter is a valid no-op recorder.
type Exporter struct {
	registry *prometheus.Registry

	// Enrichment metrics
	enrichmentEvents  *prometheus.CounterVec
	enrichmentLatency prometheus.Histogram
	enrichmentRetries prometheus.Counter

	// Retrieval metrics
	retrievalRequests  *prometheus.CounterVec
	retrievedDocuments prometheus.Histogram

	// Agent metrics
	agentRuns  *prometheus.CounterVec
	agentSteps prometheus.Histogram
	toolCalls  *prometheus.CounterVec
}

// Config configures the Prometheus exporter.
type Config struct {
	// Registry to use (if nil, creates a new one)
	Registry *prometheus.Registry

	// Buckets for latency histograms (in seconds)
	LatencyBuckets []float64
}

// DefaultConfig returns default Prometheus configuration.
func DefaultConfig() Config {
	return Config{
		LatencyBuckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
	}
}

// NewExporter creates a new Prometheus metrics exporter.
func NewExporter(cfg Config) *Exporter {
	if len(cfg.LatencyBuckets) == 0 {
		cfg.LatencyBuckets = DefaultConfig().LatencyBuckets
	}
	registry := cfg.Registry
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	e := &Exporter{registry: registry}

	e.enrichmentEvents = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "notesense",
		Subsystem: "enrichment",
		Name:      "events_total",
		Help:      "Change events processed by the enrichment worker, by outcome.",
	}, []string{"status"})

	e.enrichmentLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "notesense",
		Subsystem: "enrichment",
		Name:      "duration_seconds",
		Help:      "End-to-end latency of one enrichment run.",
		Buckets:   cfg.LatencyBuckets,
	})

	e.enrichmentRetries = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "notesense",
		Subsystem: "enrichment",
		Name:      "retries_total",
		Help:      "Transient failures retried by the enrichment worker.",
	})

	e.retrievalRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "notesense",
		Subsystem: "retrieval",
		Name:      "requests_total",
		Help:      "Retrieval answer requests, by outcome.",
	}, []string{"status"})

	e.retrievedDocuments = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "notesense",
		Subsystem: "retrieval",
		Name:      "documents_returned",
		Help:      "Documents passing the distance threshold per query.",
		Buckets:   []float64{0, 1, 2, 3, 4, 5},
	})

	e.agentRuns = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "notesense",
		Subsystem: "agent",
		Name:      "runs_total",
		Help:      "Agent runs, by terminal state.",
	}, []string{"state"})

	e.agentSteps = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "notesense",
		Subsystem: "agent",
		Name:      "steps_per_run",
		Help:      "Planning steps consumed per agent run.",
		Buckets:   []float64{1, 2, 3, 5, 8, 10, 15},
	})

	e.toolCalls = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "notesense",
		Subsystem: "agent",
		Name:      "tool_calls_total",
		Help:      "Tool invocations, by tool and outcome.",
	}, []string{"tool", "status"})

	registry.MustRegister(
		e.enrichmentEvents,
		e.enrichmentLatency,
		e.enrichmentRetries,
		e.retrievalRequests,
		e.retrievedDocuments,
		e.agentRuns,
		e.agentSteps,
		e.toolCalls,
	)

	return e
}

// Handler returns an HTTP handler serving the /metrics endpoint.
func (e *Exporter) Handler() http.Handler {
	return promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{})
}

func (e *Exporter) ObserveEnrichment(status string, duration time.Duration) {
	if e == nil {
		return
	}
	e.enrichmentEvents.WithLabelValues(status).Inc()
	e.enrichmentLatency.Observe(duration.Seconds())
}

func (e *Exporter) IncEnrichmentRetry() {
	if e == nil {
		return
	}
	e.enrichmentRetries.Inc()
}

func (e *Exporter) ObserveRetrieval(status string, documents int) {
	if e == nil {
		return
	}
	e.retrievalRequests.WithLabelValues(status).Inc()
	e.retrievedDocuments.Observe(float64(documents))
}

func (e *Exporter) ObserveAgentRun(state string, steps int) {
	if e == nil {
		return
	}
	e.agentRuns.WithLabelValues(state).Inc()
	e.agentSteps.Observe(float64(steps))
}

func (e *Exporter) IncToolCall(tool, status string) {
	if e == nil {
		return
	}
	e.toolCalls.WithLabelValues(tool, status).Inc()
}
