package apm

import (
	"sync"
	"time"
)

// Transaction is the top-level unit of work: one HTTP request, one queued
// task, one batch run. It owns the span tree and is reported exactly once,
// when End is called.
//
// Transactions do not nest. Binding a second transaction to a context simply
// replaces the first for downstream callers; each entry point (middleware,
// worker, batch main) is expected to be the only place that starts one.
type Transaction struct {
	tracer *Tracer

	traceID  string
	id       string
	parentID string
	name     string
	ttype    string
	start    time.Time
	sampled  bool

	mu           sync.Mutex
	ended        bool
	duration     time.Duration
	outcome      Outcome
	outcomeSet   bool
	result       string
	labels       map[string]LabelValue
	custom       map[string]LabelValue
	errors       []*ErrorRecord
	spans        []*Span
	spansStarted int
}

// TransactionOptions carries optional settings for StartTransactionOptions.
type TransactionOptions struct {
	// TraceContext continues an existing trace instead of starting a new
	// one. The transaction becomes a child of TraceContext.SpanID.
	TraceContext TraceContext

	// Start overrides the transaction start time. Zero means now.
	Start time.Time
}

// Sampled reports whether this transaction records spans. Unsampled
// transactions are still reported with name, duration and outcome.
func (tx *Transaction) Sampled() bool {
	if tx == nil {
		return false
	}
	return tx.sampled
}

// TraceContext returns the ids identifying this transaction inside its
// trace, for propagation to downstream work.
func (tx *Transaction) TraceContext() TraceContext {
	if tx == nil {
		return TraceContext{}
	}
	return TraceContext{TraceID: tx.traceID, SpanID: tx.id}
}

// Name returns the current transaction name.
func (tx *Transaction) Name() string {
	if tx == nil {
		return ""
	}
	tx.mu.Lock()
	defer tx.mu.Unlock()
	return tx.name
}

// SetName renames the transaction, e.g. once the route is known.
func (tx *Transaction) SetName(name string) {
	if tx == nil {
		return
	}
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if tx.ended {
		return
	}
	tx.name = name
}

// SetResult records a result string such as "HTTP 2xx" or "completed".
func (tx *Transaction) SetResult(result string) {
	if tx == nil {
		return
	}
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if tx.ended {
		return
	}
	tx.result = result
}

// SetOutcome overrides the outcome that would otherwise be inferred at End.
func (tx *Transaction) SetOutcome(outcome Outcome) {
	if tx == nil {
		return
	}
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if tx.ended {
		return
	}
	tx.outcome = outcome
	tx.outcomeSet = true
}

// AddLabels attaches labels at transaction scope, last write per key winning.
func (tx *Transaction) AddLabels(labels ...Label) {
	if tx == nil {
		return
	}
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if tx.ended {
		return
	}
	tx.labels = labelMap(tx.labels, labels)
}

// SetCustomContext merges values into the transaction's custom context
// block, last write per key winning.
func (tx *Transaction) SetCustomContext(values ...Label) {
	if tx == nil || len(values) == 0 {
		return
	}
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if tx.ended {
		return
	}
	tx.custom = labelMap(tx.custom, values)
}

// StartSpan opens a span as a direct child of the transaction. Most callers
// should prefer the context based apm.StartSpan, which nests under the
// current span automatically.
func (tx *Transaction) StartSpan(name, category string) *Span {
	return tx.startSpan(name, category, nil)
}

func (tx *Transaction) startSpan(name, category string, parent *Span) *Span {
	if tx == nil || !tx.sampled {
		return newDroppedSpan()
	}
	span := &Span{
		tx:       tx,
		parent:   parent,
		id:       newSpanID(),
		name:     name,
		category: category,
		start:    time.Now(),
	}
	if parent != nil {
		if parent.attachChild(span) {
			tx.noteSpanStarted()
			return span
		}
		// Parent already ended; fall through to the transaction root.
	}
	tx.mu.Lock()
	if tx.ended {
		tx.mu.Unlock()
		tx.tracer.stats.spansDropped.Add(1)
		return newDroppedSpan()
	}
	span.parent = nil
	tx.spans = append(tx.spans, span)
	tx.spansStarted++
	tx.mu.Unlock()
	tx.tracer.stats.spansStarted.Add(1)
	metricSpansStarted.Inc()
	return span
}

func (tx *Transaction) noteSpanStarted() {
	tx.mu.Lock()
	tx.spansStarted++
	tx.mu.Unlock()
	tx.tracer.stats.spansStarted.Add(1)
	metricSpansStarted.Inc()
}

// Duration returns the measured duration, zero until the transaction ends.
func (tx *Transaction) Duration() time.Duration {
	if tx == nil {
		return 0
	}
	tx.mu.Lock()
	defer tx.mu.Unlock()
	return tx.duration
}

// Outcome returns the transaction outcome. Before End it reflects only
// explicit SetOutcome calls.
func (tx *Transaction) Outcome() Outcome {
	if tx == nil {
		return OutcomeUnknown
	}
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if !tx.outcomeSet && !tx.ended {
		return OutcomeUnknown
	}
	return tx.outcome
}

// End closes the transaction and hands the completed record to the reporter.
// The first call wins; later calls are no-ops. The outcome is the explicit
// one when set, failure when an error was captured, success otherwise.
// Spans still running at this point are excluded from the record and counted
// as dropped.
func (tx *Transaction) End() {
	if tx == nil {
		return
	}
	tx.mu.Lock()
	if tx.ended {
		tx.mu.Unlock()
		return
	}
	tx.ended = true
	tx.duration = time.Since(tx.start)
	if !tx.outcomeSet {
		if len(tx.errors) > 0 {
			tx.outcome = OutcomeFailure
		} else {
			tx.outcome = OutcomeSuccess
		}
	}
	rec := tx.buildRecordLocked()
	tx.mu.Unlock()

	tx.tracer.report(rec)
}

func (tx *Transaction) buildRecordLocked() *TransactionRecord {
	rec := &TransactionRecord{
		ID:        tx.id,
		TraceID:   tx.traceID,
		ParentID:  tx.parentID,
		Name:      tx.name,
		Type:      tx.ttype,
		Timestamp: tx.start.UnixMicro(),
		Duration:  durationMillis(tx.duration),
		Outcome:   tx.outcome.String(),
		Result:    tx.result,
		Sampled:   tx.sampled,
		Labels:    copyLabels(tx.labels),
		Custom:    copyLabels(tx.custom),
	}
	dropped := 0
	for _, span := range tx.spans {
		if sr := span.snapshot(&dropped); sr != nil {
			rec.Spans = append(rec.Spans, sr)
		}
	}
	rec.SpanCount.Started = tx.spansStarted
	rec.SpanCount.Dropped = dropped
	for _, er := range tx.errors {
		rec.Errors = append(rec.Errors, er.wire())
	}
	if dropped > 0 {
		tx.tracer.stats.spansDropped.Add(uint64(dropped))
	}
	return rec
}

// addError appends a captured error. Returns false once the transaction has
// ended, in which case the capture is dropped.
func (tx *Transaction) addError(er *ErrorRecord) bool {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if tx.ended {
		return false
	}
	tx.errors = append(tx.errors, er)
	return true
}
