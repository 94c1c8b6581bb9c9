package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BatchesCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "groupsense_batches_created_total",
		Help: "The total number of message batches created",
	})

	BatchesProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "groupsense_batches_processed_total",
		Help: "The total number of batches finalized by outcome",
	}, []string{"status"})

	BatchClaimLost = promauto.NewCounter(prometheus.CounterOpts{
		Name: "groupsense_batch_claim_lost_total",
		Help: "Number of claim attempts lost to a concurrent processor",
	})

	BatchDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "groupsense_batch_duration_seconds",
		Help:    "Duration in seconds to process one batch end to end",
		Buckets: []float64{1, 2, 5, 10, 20, 30, 60, 120, 300},
	})

	PendingBatches = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "groupsense_pending_batches",
		Help: "Number of batches waiting for processing",
	})

	StaleBatchesRequeued = promauto.NewCounter(prometheus.CounterOpts{
		Name: "groupsense_stale_batches_requeued_total",
		Help: "Number of stuck processing batches re-queued by the janitor",
	})

	GatewayRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "groupsense_gateway_request_duration_seconds",
		Help:    "Duration of analysis service requests",
		Buckets: prometheus.DefBuckets,
	}, []string{"model"})

	FanoutStepFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "groupsense_fanout_step_failures_total",
		Help: "Fan-out persistence step failures by step",
	}, []string{"step"})

	AlertsPersisted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "groupsense_alerts_persisted_total",
		Help: "The total number of alerts persisted by severity",
	}, []string{"severity"})

	DeliveriesEnqueued = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "groupsense_deliveries_enqueued_total",
		Help: "The total number of delivery queue items enqueued by type",
	}, []string{"type"})

	DeliveriesSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "groupsense_deliveries_sent_total",
		Help: "The total number of delivery attempts by type and outcome",
	}, []string{"type", "status"})
)
