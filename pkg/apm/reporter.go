package apm

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/pulsemetric/pulse/pkg/logger"
)

const sendTimeout = 30 * time.Second

// reporter decouples instrumented code from the exporter. Completed records
// go into a bounded channel; a single goroutine batches them by size or
// flush interval and hands batches to the exporter. Enqueueing never blocks:
// when the channel is full the record is dropped and counted.
type reporter struct {
	exporter Exporter
	metadata *Metadata
	interval time.Duration
	maxBatch int
	log      *slog.Logger
	stats    *tracerStats

	ch        chan *TransactionRecord
	flushCh   chan chan struct{}
	stopCh    chan struct{}
	stoppedCh chan struct{}
	stopOnce  sync.Once
}

func newReporter(exporter Exporter, metadata *Metadata, interval time.Duration, queueSize, maxBatch int, log *slog.Logger, stats *tracerStats) *reporter {
	r := &reporter{
		exporter:  exporter,
		metadata:  metadata,
		interval:  interval,
		maxBatch:  maxBatch,
		log:       log,
		stats:     stats,
		ch:        make(chan *TransactionRecord, queueSize),
		flushCh:   make(chan chan struct{}),
		stopCh:    make(chan struct{}),
		stoppedCh: make(chan struct{}),
	}
	go r.run()
	return r
}

// enqueue hands a completed record to the reporter goroutine. Returns false
// when the queue is full and the record was dropped.
func (r *reporter) enqueue(rec *TransactionRecord) bool {
	select {
	case r.ch <- rec:
		return true
	default:
		r.stats.recordsDropped.Add(1)
		metricRecordsDropped.Inc()
		return false
	}
}

func (r *reporter) run() {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	batch := make([]*TransactionRecord, 0, r.maxBatch)

	for {
		select {
		case rec := <-r.ch:
			batch = append(batch, rec)
			if len(batch) >= r.maxBatch {
				r.send(batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			if len(batch) > 0 {
				r.send(batch)
				batch = batch[:0]
			}
		case ack := <-r.flushCh:
			batch = r.drain(batch)
			if len(batch) > 0 {
				r.send(batch)
				batch = batch[:0]
			}
			close(ack)
		case <-r.stopCh:
			batch = r.drain(batch)
			if len(batch) > 0 {
				r.send(batch)
			}
			close(r.stoppedCh)
			return
		}
	}
}

// drain pulls everything currently buffered without blocking.
func (r *reporter) drain(batch []*TransactionRecord) []*TransactionRecord {
	for {
		select {
		case rec := <-r.ch:
			batch = append(batch, rec)
		default:
			return batch
		}
	}
}

// send ships one batch. Export failures are logged and counted; they never
// propagate to instrumented code.
func (r *reporter) send(batch []*TransactionRecord) {
	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()

	out := Batch{
		Metadata:     r.metadata,
		Transactions: append([]*TransactionRecord(nil), batch...),
	}
	if err := r.exporter.SendBatch(ctx, out); err != nil {
		r.stats.sendFailures.Add(1)
		metricExportBatches.WithLabelValues("error").Inc()
		r.log.Warn("trace batch export failed",
			logger.Scope("apm.reporter"),
			logger.Error(err),
			slog.Int("transactions", len(out.Transactions)))
		return
	}
	r.stats.transactionsSent.Add(uint64(len(out.Transactions)))
	metricExportBatches.WithLabelValues("ok").Inc()
}

// flush forces everything buffered so far out through the exporter, waiting
// until the batch has been handed over or ctx expires.
func (r *reporter) flush(ctx context.Context) error {
	ack := make(chan struct{})
	select {
	case r.flushCh <- ack:
	case <-r.stoppedCh:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-ack:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// stop terminates the reporter goroutine after a final drain. Safe to call
// more than once.
func (r *reporter) stop(ctx context.Context) error {
	r.stopOnce.Do(func() { close(r.stopCh) })
	select {
	case <-r.stoppedCh:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
