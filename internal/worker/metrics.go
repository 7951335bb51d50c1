package worker

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Task throughput metrics
	metricTasksProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pulse_worker_tasks_total",
		Help: "Total number of tasks processed, by task name and final status",
	}, []string{"task_name", "status"})

	metricTaskRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pulse_worker_task_retries_total",
		Help: "Total number of task retries scheduled, by task name",
	}, []string{"task_name"})
)
