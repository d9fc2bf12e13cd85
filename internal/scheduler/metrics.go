package scheduler

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	jobsCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "conveyor_jobs_created_total",
		Help: "Number of jobs accepted by the scheduler.",
	})

	jobsCompletedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "conveyor_jobs_completed_total",
		Help: "Number of jobs that reached a terminal state, by status.",
	}, []string{"status"})

	stagesDispatchedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "conveyor_stages_dispatched_total",
		Help: "Number of stage dispatches published, by worker type.",
	}, []string{"worker_type"})

	stageResultsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "conveyor_stage_results_total",
		Help: "Number of stage results absorbed, by worker type and outcome.",
	}, []string{"worker_type", "outcome"})

	duplicateResultsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "conveyor_duplicate_results_total",
		Help: "Number of redelivered or stale results dropped by the idempotency checks.",
	})

	stageTimeoutsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "conveyor_stage_timeouts_total",
		Help: "Number of in-flight stages failed by the timeout sweeper.",
	})

	jobsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "conveyor_jobs_active",
		Help: "Number of non-terminal jobs created by this scheduler instance.",
	})

	stageDurationSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "conveyor_stage_duration_seconds",
		Help:    "Time from stage dispatch to absorbed result, by worker type.",
		Buckets: prometheus.ExponentialBuckets(1, 4, 8),
	}, []string{"worker_type"})
)

const (
	outcomeSucceeded = "succeeded"
	outcomeFailed    = "failed"
)
