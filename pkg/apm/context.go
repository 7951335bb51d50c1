package apm

import (
	"context"
)

type contextKey int

const (
	transactionKey contextKey = iota
	spanKey
)

// ContextWithTransaction binds a transaction to the context. Downstream
// helpers pick it up from there.
func ContextWithTransaction(ctx context.Context, tx *Transaction) context.Context {
	return context.WithValue(ctx, transactionKey, tx)
}

// TransactionFromContext returns the bound transaction, or nil.
func TransactionFromContext(ctx context.Context) *Transaction {
	tx, _ := ctx.Value(transactionKey).(*Transaction)
	return tx
}

// ContextWithSpan binds a span as the context's current span. StartSpan does
// this automatically; direct use is only needed when handing a span across
// goroutines by hand.
func ContextWithSpan(ctx context.Context, span *Span) context.Context {
	return context.WithValue(ctx, spanKey, span)
}

// SpanFromContext returns the context's current span, or nil.
func SpanFromContext(ctx context.Context) *Span {
	span, _ := ctx.Value(spanKey).(*Span)
	return span
}

// StartSpan opens a span under the context's current span, or directly under
// the transaction when no span is active. The returned context carries the
// new span, so nested StartSpan calls build the tree that mirrors the call
// structure.
//
// Without an active sampled transaction the returned span is dropped (all
// methods no-op) and the context comes back unchanged. This is never an
// error.
func StartSpan(ctx context.Context, name, category string) (context.Context, *Span) {
	tx := TransactionFromContext(ctx)
	if tx == nil || !tx.sampled {
		return ctx, newDroppedSpan()
	}
	var parent *Span
	if cur := SpanFromContext(ctx); cur != nil && !cur.Dropped() && cur.tx == tx {
		parent = cur
	}
	span := tx.startSpan(name, category, parent)
	if span.Dropped() {
		return ctx, span
	}
	return ContextWithSpan(ctx, span), span
}

// CurrentTraceContext returns the trace context closest to the caller: the
// current span's when one is live, otherwise the transaction's. The zero
// value means the context carries no trace. Use it to propagate the trace
// over process boundaries (headers, task envelopes).
func CurrentTraceContext(ctx context.Context) TraceContext {
	if span := SpanFromContext(ctx); span != nil && !span.Dropped() {
		return span.TraceContext()
	}
	if tx := TransactionFromContext(ctx); tx != nil {
		return tx.TraceContext()
	}
	return TraceContext{}
}

// WithSpan runs fn inside a span and guarantees the span ends on every exit
// path. A returned error or a panic is captured, flips the span to failure,
// and still propagates to the caller.
func WithSpan(ctx context.Context, name, category string, fn func(context.Context) error) error {
	ctx, span := StartSpan(ctx, name, category)
	defer func() {
		if r := recover(); r != nil {
			CapturePanic(ctx, r)
			span.End()
			panic(r)
		}
		span.End()
	}()
	err := fn(ctx)
	if err != nil {
		CaptureError(ctx, err)
	}
	return err
}

// AddLabels attaches labels to the context's current span, falling back to
// the transaction. With neither active it is a no-op.
func AddLabels(ctx context.Context, labels ...Label) {
	if span := SpanFromContext(ctx); span != nil && !span.Dropped() {
		span.AddLabels(labels...)
		return
	}
	if tx := TransactionFromContext(ctx); tx != nil {
		tx.AddLabels(labels...)
	}
}

// SetCustomContext merges custom context values into the active transaction.
// No-op without one.
func SetCustomContext(ctx context.Context, values ...Label) {
	TransactionFromContext(ctx).SetCustomContext(values...)
}

// CaptureError records err against the active transaction and marks the
// current span as failed. The error is not consumed: callers still return
// or handle it themselves. Without an active transaction, or with a nil
// err, nothing happens.
func CaptureError(ctx context.Context, err error) {
	if err == nil {
		return
	}
	captureError(ctx, err, 1)
}

// CapturePanic records a recovered panic value like CaptureError does for
// errors. Callers that need the panic to keep unwinding re-panic afterwards.
func CapturePanic(ctx context.Context, recovered any) {
	if recovered == nil {
		return
	}
	var err error
	if e, ok := recovered.(error); ok {
		err = e
	} else {
		err = PanicError{Value: recovered}
	}
	captureError(ctx, err, 1)
}

func captureError(ctx context.Context, err error, skip int) {
	tx := TransactionFromContext(ctx)
	if tx == nil {
		return
	}
	er := newErrorRecord(err, skip+1)
	if span := SpanFromContext(ctx); span != nil && !span.Dropped() && span.tx == tx {
		er.SpanID = span.id
		span.SetOutcome(OutcomeFailure)
	} else {
		er.SpanID = tx.id
	}
	if tx.addError(er) {
		tx.tracer.stats.errorsCaptured.Add(1)
		metricErrorsCaptured.Inc()
	}
}
