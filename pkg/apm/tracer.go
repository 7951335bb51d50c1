package apm

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"sync/atomic"
	"time"
)

const (
	defaultFlushInterval = 10 * time.Second
	defaultMaxQueueSize  = 1024
	defaultMaxBatchSize  = 256
)

// TracerOptions configures a Tracer. The zero value of every field has a
// usable default; only ServiceName is required.
type TracerOptions struct {
	// ServiceName identifies the instrumented service in every record.
	ServiceName string

	// ServiceVersion and Environment enrich the exported metadata.
	ServiceVersion string
	Environment    string

	// ServerURL is the collector base URL. Empty means no collector:
	// the tracer still runs the full pipeline but exports through the
	// structured log instead of the network.
	ServerURL string

	// SecretToken authenticates against the collector, when set.
	SecretToken string

	// SampleRate is the head sampling rate in [0, 1]. Default 1.0.
	// Unsampled transactions drop their spans but still report name,
	// duration and outcome.
	SampleRate *float64

	// FlushInterval bounds how long a completed record can sit in the
	// reporter before being exported. Default 10s.
	FlushInterval time.Duration

	// MaxQueueSize caps the reporter queue. When full, finished
	// transactions are dropped and counted rather than blocking. Default
	// 1024.
	MaxQueueSize int

	// MaxBatchSize caps how many transactions go into one export batch.
	// Default 256.
	MaxBatchSize int

	// Exporter overrides the destination. When nil, ServerURL selects an
	// HTTPExporter and an empty ServerURL selects a LogExporter.
	Exporter Exporter

	// HTTPClient is used by the HTTP exporter. Default: 30s timeout.
	HTTPClient *http.Client

	// Logger receives agent diagnostics. Default slog.Default().
	Logger *slog.Logger
}

// Tracer owns the reporting pipeline and creates transactions. A Tracer is
// safe for concurrent use; one per process is the norm.
type Tracer struct {
	serviceName string
	sampleRate  float64
	log         *slog.Logger
	reporter    *reporter
	stats       *tracerStats
	closed      atomic.Bool
}

type tracerStats struct {
	transactionsStarted atomic.Uint64
	transactionsEnded   atomic.Uint64
	transactionsSent    atomic.Uint64
	spansStarted        atomic.Uint64
	spansDropped        atomic.Uint64
	errorsCaptured      atomic.Uint64
	recordsDropped      atomic.Uint64
	sendFailures        atomic.Uint64
}

// TracerStats is a point-in-time snapshot of agent counters.
type TracerStats struct {
	TransactionsStarted uint64
	TransactionsEnded   uint64
	TransactionsSent    uint64
	SpansStarted        uint64
	SpansDropped        uint64
	ErrorsCaptured      uint64
	RecordsDropped      uint64
	SendFailures        uint64
}

// NewTracer builds a Tracer and starts its background reporter.
func NewTracer(opts TracerOptions) (*Tracer, error) {
	if opts.ServiceName == "" {
		return nil, fmt.Errorf("apm: ServiceName is required")
	}
	sampleRate := 1.0
	if opts.SampleRate != nil {
		sampleRate = *opts.SampleRate
		if sampleRate < 0 || sampleRate > 1 {
			return nil, fmt.Errorf("apm: SampleRate %v outside [0, 1]", sampleRate)
		}
	}
	if opts.FlushInterval <= 0 {
		opts.FlushInterval = defaultFlushInterval
	}
	if opts.MaxQueueSize <= 0 {
		opts.MaxQueueSize = defaultMaxQueueSize
	}
	if opts.MaxBatchSize <= 0 {
		opts.MaxBatchSize = defaultMaxBatchSize
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}

	exporter := opts.Exporter
	if exporter == nil {
		if opts.ServerURL != "" {
			exporter = NewHTTPExporter(opts.ServerURL, opts.SecretToken, opts.HTTPClient)
		} else {
			exporter = NewLogExporter(log)
		}
	}

	stats := &tracerStats{}
	metadata := buildMetadata(opts.ServiceName, opts.ServiceVersion, opts.Environment)

	t := &Tracer{
		serviceName: opts.ServiceName,
		sampleRate:  sampleRate,
		log:         log,
		stats:       stats,
		reporter:    newReporter(exporter, metadata, opts.FlushInterval, opts.MaxQueueSize, opts.MaxBatchSize, log, stats),
	}
	return t, nil
}

// StartTransaction begins a new unit of work with a fresh trace id.
func (t *Tracer) StartTransaction(name, ttype string) *Transaction {
	return t.StartTransactionOptions(name, ttype, TransactionOptions{})
}

// StartTransactionOptions begins a unit of work with explicit options, e.g.
// continuing a trace received from upstream.
func (t *Tracer) StartTransactionOptions(name, ttype string, opts TransactionOptions) *Transaction {
	start := opts.Start
	if start.IsZero() {
		start = time.Now()
	}

	tx := &Transaction{
		tracer: t,
		id:     newSpanID(),
		name:   name,
		ttype:  ttype,
		start:  start,
	}
	if opts.TraceContext.Valid() {
		// Continued traces were recorded upstream, so they stay sampled
		// here as well.
		tx.traceID = opts.TraceContext.TraceID
		tx.parentID = opts.TraceContext.SpanID
		tx.sampled = !t.closed.Load()
	} else {
		tx.traceID = newTraceID()
		tx.sampled = !t.closed.Load() && (t.sampleRate >= 1 || rand.Float64() < t.sampleRate)
	}

	t.stats.transactionsStarted.Add(1)
	return tx
}

// report receives completed records from Transaction.End.
func (t *Tracer) report(rec *TransactionRecord) {
	t.stats.transactionsEnded.Add(1)
	metricTransactionsEnded.WithLabelValues(rec.Outcome).Inc()
	if t.closed.Load() {
		t.stats.recordsDropped.Add(1)
		metricRecordsDropped.Inc()
		return
	}
	t.reporter.enqueue(rec)
}

// Flush pushes everything buffered so far through the exporter. It blocks
// until done or ctx expires.
func (t *Tracer) Flush(ctx context.Context) error {
	return t.reporter.flush(ctx)
}

// Close flushes and stops the reporter. Transactions ended after Close are
// dropped. Safe to call more than once.
func (t *Tracer) Close(ctx context.Context) error {
	t.closed.Store(true)
	return t.reporter.stop(ctx)
}

// Stats returns a snapshot of the agent counters.
func (t *Tracer) Stats() TracerStats {
	return TracerStats{
		TransactionsStarted: t.stats.transactionsStarted.Load(),
		TransactionsEnded:   t.stats.transactionsEnded.Load(),
		TransactionsSent:    t.stats.transactionsSent.Load(),
		SpansStarted:        t.stats.spansStarted.Load(),
		SpansDropped:        t.stats.spansDropped.Load(),
		ErrorsCaptured:      t.stats.errorsCaptured.Load(),
		RecordsDropped:      t.stats.recordsDropped.Load(),
		SendFailures:        t.stats.sendFailures.Load(),
	}
}
