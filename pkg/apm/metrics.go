package apm

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Agent throughput metrics
	metricTransactionsEnded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pulse_transactions_total",
		Help: "Total number of transactions ended, by outcome",
	}, []string{"outcome"})

	metricSpansStarted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pulse_spans_total",
		Help: "Total number of spans started",
	})

	metricErrorsCaptured = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pulse_errors_captured_total",
		Help: "Total number of errors and panics captured",
	})

	metricRecordsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pulse_records_dropped_total",
		Help: "Total number of trace records dropped because the report queue was full",
	})

	metricExportBatches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pulse_export_batches_total",
		Help: "Total number of export batches sent, by status",
	}, []string{"status"})
)
