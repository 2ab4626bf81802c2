// Package observability declares the Prometheus metrics exported on /metrics.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// namespace defines the global prefix for all metrics (e.g., crm_...).
const namespace = "crm"

var (
	// -------------------------------------------------------------------------
	// HTTP API
	// -------------------------------------------------------------------------

	// HTTPReqDuration measures the latency of HTTP requests.
	// Metric: crm_api_http_handling_seconds
	HTTPReqDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "api",
		Name:      "http_handling_seconds",
		Help:      "Time taken to handle HTTP requests",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path"})

	// HTTPReqTotal counts HTTP requests by route pattern and status code.
	// Metric: crm_api_http_requests_total
	HTTPReqTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "api",
		Name:      "http_requests_total",
		Help:      "Total HTTP requests",
	}, []string{"method", "path", "code"})

	// -------------------------------------------------------------------------
	// DISPATCH
	// -------------------------------------------------------------------------

	// DispatchSendsTotal counts vendor send attempts by outcome (accepted, rejected, error).
	DispatchSendsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "dispatch",
		Name:      "sends_total",
		Help:      "Total vendor send attempts by outcome",
	}, []string{"outcome"})

	// DispatchDuration measures how long a campaign fan-out takes until every ack is in.
	DispatchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "dispatch",
		Name:      "campaign_duration_seconds",
		Help:      "Time from dispatch start until every recipient was acknowledged",
		Buckets:   prometheus.DefBuckets,
	})

	// DispatchJobsTotal counts dispatch jobs handled by workers.
	DispatchJobsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "dispatch",
		Name:      "jobs_total",
		Help:      "Total campaign dispatch jobs processed",
	}, []string{"status"}) // success, skipped, fail

	// DispatchQueueLatency measures how long a dispatch job waited in the queue.
	DispatchQueueLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "dispatch",
		Name:      "queue_latency_seconds",
		Help:      "Time between enqueueing a dispatch job and a worker picking it up",
		Buckets:   prometheus.DefBuckets,
	})

	// -------------------------------------------------------------------------
	// RECEIPTS
	// -------------------------------------------------------------------------

	// ReceiptsIngestedTotal counts receipts by ingestion result (queued, rejected, invalid).
	ReceiptsIngestedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "receipts",
		Name:      "ingested_total",
		Help:      "Total delivery receipts received by the ingestor",
	}, []string{"result"})

	// ReceiptQueueDepth is the number of receipts waiting for the next flush.
	ReceiptQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "receipts",
		Name:      "queue_depth",
		Help:      "Current number of receipts waiting for the next batch flush",
	})

	// BatchFlushesTotal counts non-empty flushes by status (success, fail).
	BatchFlushesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "receipts",
		Name:      "batch_flushes_total",
		Help:      "Total bulk delivery-log writes",
	}, []string{"status"})

	// BatchSize records how many distinct receipts each flush wrote.
	BatchSize = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "receipts",
		Name:      "batch_size",
		Help:      "Distinct receipts per bulk write",
		Buckets:   prometheus.ExponentialBuckets(1, 4, 8),
	})

	// ReceiptsAppliedTotal counts receipts that moved a log out of PENDING.
	// The gap to the flushed count is duplicates and unknown keys.
	ReceiptsAppliedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "receipts",
		Name:      "applied_total",
		Help:      "Total receipts that changed a delivery log",
	})

	// -------------------------------------------------------------------------
	// SEGMENTS
	// -------------------------------------------------------------------------

	PredicateCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "segments",
		Name:      "predicate_cache_hits_total",
		Help:      "Total compiled predicate cache hits",
	})

	PredicateCacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "segments",
		Name:      "predicate_cache_misses_total",
		Help:      "Total compiled predicate cache misses",
	})
)
