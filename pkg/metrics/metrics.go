package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics for monitoring
var (
	PooledIntents = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "relaypool_pooled_intents",
		Help: "The number of intents currently waiting in the pool",
	})

	BatchesExecuted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "relaypool_batches_executed_total",
		Help: "The total number of successfully settled batches",
	})

	IntentsSettled = promauto.NewCounter(prometheus.CounterOpts{
		Name: "relaypool_intents_settled_total",
		Help: "The total number of intents settled across all batches",
	})

	BatchSize = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "relaypool_batch_size",
		Help:    "Number of intents per settled batch",
		Buckets: prometheus.LinearBuckets(1, 2, 10),
	})

	ExecutionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "relaypool_execution_seconds",
		Help:    "Time taken for one batch execution attempt",
		Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
	})

	ExecutionFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "relaypool_execution_failures_total",
		Help: "Total number of failed batch executions by reason",
	}, []string{"reason"})

	TriggersDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "relaypool_triggers_dropped_total",
		Help: "Triggers that found execution already in progress or cooling down",
	}, []string{"reason"})

	PredictorConfidence = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "relaypool_predictor_confidence",
		Help: "Latest predictor confidence score",
	})

	LatestFeeSample = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "relaypool_latest_fee_wei",
		Help: "Most recent network fee sample in wei",
	})
)
