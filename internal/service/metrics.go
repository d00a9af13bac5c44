package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// submissionsTotal counts submissions by outcome
	submissionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wwfm_submissions_total",
		Help: "Rating submissions by outcome",
	}, []string{"outcome"})

	// aggregationAttempts counts aggregation runs by caller and outcome
	aggregationAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wwfm_aggregation_attempts_total",
		Help: "Aggregation attempts by path and outcome",
	}, []string{"path", "outcome"})

	aggregationDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "wwfm_aggregation_duration_seconds",
		Help:    "Aggregation recompute duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
	})

	transitionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "wwfm_transitions_total",
		Help: "AI-to-human display transitions fired",
	})

	// queueJobsTotal counts processed queue jobs by outcome
	queueJobsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wwfm_queue_jobs_total",
		Help: "Aggregation queue jobs by outcome",
	}, []string{"outcome"})

	queuePending = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "wwfm_queue_pending_jobs",
		Help: "Aggregation queue jobs waiting to be processed",
	})

	queueProcessing = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "wwfm_queue_processing_jobs",
		Help: "Aggregation queue jobs currently flagged as processing",
	})

	queueOldestAge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "wwfm_queue_oldest_job_age_seconds",
		Help: "Age of the oldest aggregation queue job",
	})
)
