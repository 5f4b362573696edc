// Package metrics provides Prometheus metrics for the engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TenantCacheLookups tracks tenant context resolutions by outcome (hit, miss, refresh, not_found, error)
	TenantCacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "engine",
			Subsystem: "tenant_cache",
			Name:      "lookups_total",
			Help:      "Total number of tenant context lookups by outcome",
		},
		[]string{"outcome"},
	)

	// TenantCacheEntries tracks the number of live cache keys
	TenantCacheEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "engine",
			Subsystem: "tenant_cache",
			Name:      "entries",
			Help:      "Number of keys held by the tenant context cache",
		},
	)

	// TenantCacheEvictions tracks entries removed by sweeps and invalidations
	TenantCacheEvictions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "engine",
			Subsystem: "tenant_cache",
			Name:      "evictions_total",
			Help:      "Total number of evicted tenant cache keys by reason",
		},
		[]string{"reason"},
	)

	// TenantConfigProblems tracks tenant loads whose configuration failed validation
	TenantConfigProblems = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "engine",
			Subsystem: "tenant_cache",
			Name:      "config_problems_total",
			Help:      "Total number of tenant loads with an invalid field mapping",
		},
	)

	// TenantCredentialFailures tracks credential blobs that could not be opened
	TenantCredentialFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "engine",
			Subsystem: "tenant_cache",
			Name:      "credential_failures_total",
			Help:      "Total number of tenant credential blobs that failed to decrypt",
		},
	)

	// ReconciliationsTotal tracks reconciliation outcomes per tenant
	ReconciliationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "engine",
			Subsystem: "reconciliation",
			Name:      "total",
			Help:      "Total number of patient reconciliations by outcome",
		},
		[]string{"tenant_id", "outcome"},
	)

	// ReconciliationDuration tracks reconciliation latency
	ReconciliationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "engine",
			Subsystem: "reconciliation",
			Name:      "duration_seconds",
			Help:      "Duration of patient reconciliations in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 15},
		},
		[]string{"outcome"},
	)

	// LeadsCreated tracks leads registered through the lead endpoint
	LeadsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "engine",
			Subsystem: "reconciliation",
			Name:      "leads_created_total",
			Help:      "Total number of leads created or enriched",
		},
		[]string{"tenant_id", "inserted"},
	)

	// ExternalRequestsTotal tracks calls to tenant systems of record
	ExternalRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "engine",
			Subsystem: "external",
			Name:      "requests_total",
			Help:      "Total number of external system lookups by result",
		},
		[]string{"result"},
	)

	// ExternalRequestDuration tracks external lookup latency
	ExternalRequestDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "engine",
			Subsystem: "external",
			Name:      "request_duration_seconds",
			Help:      "Duration of external system lookups in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 12},
		},
	)

	// InterlocutorFallbacks tracks records whose addressing context fell back
	InterlocutorFallbacks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "engine",
			Subsystem: "interlocutor",
			Name:      "fallbacks_total",
			Help:      "Total number of interlocutor analyses that used the fallback context",
		},
		[]string{"reason"},
	)

	// StateTransitionsTotal tracks conversation state transitions
	StateTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "engine",
			Subsystem: "conversation",
			Name:      "transitions_total",
			Help:      "Total number of conversation state transitions by result",
		},
		[]string{"from", "to", "result"},
	)

	// EventsPublished tracks domain events by type and result
	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "engine",
			Subsystem: "events",
			Name:      "published_total",
			Help:      "Total number of domain events published",
		},
		[]string{"event_type", "status"},
	)

	// HTTPRequestsTotal tracks inbound API requests
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "engine",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of inbound HTTP requests",
		},
		[]string{"method", "route", "status_code"},
	)

	// HTTPRequestDuration tracks inbound request duration
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "engine",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of inbound HTTP requests in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"method", "route"},
	)
)
