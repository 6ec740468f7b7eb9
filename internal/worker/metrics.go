package worker

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	tasksReceived = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "flame_worker_tasks_received_total",
			Help: "Total number of imprint tasks received by the flame worker.",
		},
	)
	tasksSucceeded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "flame_worker_tasks_succeeded_total",
			Help: "Total number of imprint tasks successfully processed.",
		},
	)
	tasksFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flame_worker_tasks_failed_total",
			Help: "Total number of imprint tasks failed, partitioned by failure reason.",
		},
		[]string{"reason"},
	)
	taskDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "flame_worker_task_duration_seconds",
			Help:    "Histogram of imprint task processing durations.",
			Buckets: prometheus.DefBuckets,
		},
	)
)
