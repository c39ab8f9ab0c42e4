package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// HTTPRequestDuration tracks Read API request latency.
var HTTPRequestDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "indexpilot",
		Subsystem: "api",
		Name:      "request_duration_seconds",
		Help:      "Read API request duration in seconds.",
		Buckets:   prometheus.DefBuckets,
	},
	[]string{"method", "path", "status"},
)

// CandidatesEmittedTotal counts index candidates emitted by the Decision Engine.
var CandidatesEmittedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "indexpilot",
		Subsystem: "decision",
		Name:      "candidates_emitted_total",
		Help:      "Total number of index candidates emitted by the decision engine.",
	},
	[]string{"method"},
)

// CandidatesPrunedTotal counts candidates dropped by redundancy/budget rules.
var CandidatesPrunedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "indexpilot",
		Subsystem: "decision",
		Name:      "candidates_pruned_total",
		Help:      "Total number of candidates pruned before reaching the executor.",
	},
	[]string{"reason"},
)

// SpikeSuppressedTotal counts fingerprints classified as spikes.
var SpikeSuppressedTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Namespace: "indexpilot",
		Subsystem: "decision",
		Name:      "spike_suppressed_total",
		Help:      "Total number of fingerprints suppressed as load spikes.",
	},
)

// MutationsTotal counts mutation log records by action.
var MutationsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "indexpilot",
		Subsystem: "mutation",
		Name:      "total",
		Help:      "Total number of mutation log records written, by action.",
	},
	[]string{"action"},
)

// ExecutorStateTransitionsTotal counts executor state machine transitions.
var ExecutorStateTransitionsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "indexpilot",
		Subsystem: "executor",
		Name:      "state_transitions_total",
		Help:      "Total number of executor state transitions.",
	},
	[]string{"from", "to"},
)

// CircuitBreakerState exposes breaker state as a gauge: 0=closed, 1=open, 2=half-open.
var CircuitBreakerState = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: "indexpilot",
		Subsystem: "safeguards",
		Name:      "circuit_breaker_state",
		Help:      "Circuit breaker state by scope key (0=closed 1=open 2=half-open).",
	},
	[]string{"scope"},
)

// RateLimiterDeferredTotal counts actions deferred by the token bucket.
var RateLimiterDeferredTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "indexpilot",
		Subsystem: "safeguards",
		Name:      "rate_limited_total",
		Help:      "Total number of actions deferred due to an empty rate-limiter bucket.",
	},
	[]string{"key"},
)

// IngestDroppedTotal counts query samples dropped because the ingest buffer was full.
var IngestDroppedTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Namespace: "indexpilot",
		Subsystem: "querystats",
		Name:      "ingest_dropped_total",
		Help:      "Total number of query samples dropped because the ingest buffer was full.",
	},
)

// PlannerFailuresTotal counts EXPLAIN failures by fingerprint cooldown state.
var PlannerFailuresTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "indexpilot",
		Subsystem: "planner",
		Name:      "failures_total",
		Help:      "Total number of planner failures, labeled by whether the fingerprint entered cooldown.",
	},
	[]string{"cooldown"},
)

// BudgetUsedBytes reports current storage budget usage.
var BudgetUsedBytes = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: "indexpilot",
		Subsystem: "safeguards",
		Name:      "budget_used_bytes",
		Help:      "Storage budget bytes used+reserved, by tenant scope.",
	},
	[]string{"tenant"},
)

// All returns every IndexPilot-specific collector for registration.
func All() []prometheus.Collector {
	return []prometheus.Collector{
		HTTPRequestDuration,
		CandidatesEmittedTotal,
		CandidatesPrunedTotal,
		SpikeSuppressedTotal,
		MutationsTotal,
		ExecutorStateTransitionsTotal,
		CircuitBreakerState,
		RateLimiterDeferredTotal,
		IngestDroppedTotal,
		PlannerFailuresTotal,
		BudgetUsedBytes,
	}
}

// NewMetricsRegistry creates a Prometheus registry with Go/process collectors
// plus every IndexPilot collector.
func NewMetricsRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	for _, c := range All() {
		reg.MustRegister(c)
	}
	return reg
}
