package apm_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pulsemetric/pulse/pkg/apm"
	"github.com/pulsemetric/pulse/pkg/apm/apmtest"
)

func TestNewTracerValidation(t *testing.T) {
	_, err := apm.NewTracer(apm.TracerOptions{})
	assert.Error(t, err, "service name is required")

	bad := 1.5
	_, err = apm.NewTracer(apm.TracerOptions{ServiceName: "svc", SampleRate: &bad})
	assert.Error(t, err)

	negative := -0.1
	_, err = apm.NewTracer(apm.TracerOptions{ServiceName: "svc", SampleRate: &negative})
	assert.Error(t, err)
}

func TestOutcomeInference(t *testing.T) {
	tracer, recorder := apmtest.NewRecorderTracer(t)

	clean := tracer.StartTransaction("clean", "test")
	clean.End()

	failed := tracer.StartTransaction("failed", "test")
	ctx := apm.ContextWithTransaction(context.Background(), failed)
	apm.CaptureError(ctx, errors.New("went wrong"))
	failed.End()

	overridden := tracer.StartTransaction("overridden", "test")
	overridden.SetOutcome(apm.OutcomeUnknown)
	overridden.End()

	apmtest.Flush(t, tracer)

	require.NotNil(t, recorder.TransactionByName("clean"))
	assert.Equal(t, "success", recorder.TransactionByName("clean").Outcome)
	assert.Equal(t, "failure", recorder.TransactionByName("failed").Outcome)
	assert.Equal(t, "unknown", recorder.TransactionByName("overridden").Outcome)
}

func TestUnsampledTransactionReportsWithoutSpans(t *testing.T) {
	recorder := &apmtest.RecorderExporter{}
	never := 0.0
	tracer, err := apm.NewTracer(apm.TracerOptions{
		ServiceName:   "sampling-test",
		SampleRate:    &never,
		FlushInterval: 10 * time.Millisecond,
		Exporter:      recorder,
	})
	require.NoError(t, err)
	defer closeTracer(t, tracer)

	tx := tracer.StartTransaction("unsampled", "test")
	assert.False(t, tx.Sampled())
	ctx := apm.ContextWithTransaction(context.Background(), tx)

	_, span := apm.StartSpan(ctx, "invisible", "app")
	assert.True(t, span.Dropped())
	span.End()

	tx.End()
	apmtest.Flush(t, tracer)

	rec := recorder.TransactionByName("unsampled")
	require.NotNil(t, rec, "unsampled transactions still report")
	assert.False(t, rec.Sampled)
	assert.Empty(t, rec.Spans)
	assert.Equal(t, "success", rec.Outcome)
}

func TestTraceContinuation(t *testing.T) {
	tracer, recorder := apmtest.NewRecorderTracer(t)

	upstream := tracer.StartTransaction("upstream", "request")
	parent := upstream.TraceContext()
	header := parent.Traceparent()
	upstream.End()

	tc, err := apm.ParseTraceparent(header)
	require.NoError(t, err)

	downstream := tracer.StartTransactionOptions("downstream", "task", apm.TransactionOptions{TraceContext: tc})
	downstream.End()
	apmtest.Flush(t, tracer)

	rec := recorder.TransactionByName("downstream")
	require.NotNil(t, rec)
	assert.Equal(t, parent.TraceID, rec.TraceID, "downstream joins the upstream trace")
	assert.Equal(t, parent.SpanID, rec.ParentID)
	assert.NotEqual(t, parent.SpanID, rec.ID)
}

func TestReporterDropsWhenQueueFull(t *testing.T) {
	gate := make(chan struct{})
	blocked := &gatedExporter{gate: gate}
	tracer, err := apm.NewTracer(apm.TracerOptions{
		ServiceName:   "overflow-test",
		FlushInterval: time.Hour,
		MaxQueueSize:  2,
		MaxBatchSize:  1,
		Exporter:      blocked,
	})
	require.NoError(t, err)

	start := time.Now()
	for i := 0; i < 5; i++ {
		tracer.StartTransaction("burst", "test").End()
	}
	assert.Less(t, time.Since(start), time.Second, "End must never block on a jammed exporter")
	assert.GreaterOrEqual(t, tracer.Stats().RecordsDropped, uint64(1))

	close(gate)
	closeTracer(t, tracer)
}

func TestCloseDropsLateTransactions(t *testing.T) {
	recorder := &apmtest.RecorderExporter{}
	tracer, err := apm.NewTracer(apm.TracerOptions{
		ServiceName:   "closing-test",
		FlushInterval: 10 * time.Millisecond,
		Exporter:      recorder,
	})
	require.NoError(t, err)

	tx := tracer.StartTransaction("before-close", "test")
	tx.End()
	closeTracer(t, tracer)

	late := tracer.StartTransaction("after-close", "test")
	assert.False(t, late.Sampled())
	late.End()

	assert.NotNil(t, recorder.TransactionByName("before-close"), "close drains the queue")
	assert.Nil(t, recorder.TransactionByName("after-close"))
	assert.GreaterOrEqual(t, tracer.Stats().RecordsDropped, uint64(1))
}

func TestStatsCountEnvelopeActivity(t *testing.T) {
	tracer, _ := apmtest.NewRecorderTracer(t)

	tx := tracer.StartTransaction("counted", "test")
	ctx := apm.ContextWithTransaction(context.Background(), tx)
	_, span := apm.StartSpan(ctx, "step", "app")
	span.End()
	apm.CaptureError(ctx, errors.New("counted too"))
	tx.End()
	apmtest.Flush(t, tracer)

	stats := tracer.Stats()
	assert.Equal(t, uint64(1), stats.TransactionsStarted)
	assert.Equal(t, uint64(1), stats.TransactionsEnded)
	assert.Equal(t, uint64(1), stats.TransactionsSent)
	assert.Equal(t, uint64(1), stats.SpansStarted)
	assert.Equal(t, uint64(1), stats.ErrorsCaptured)
	assert.Zero(t, stats.RecordsDropped)
	assert.Zero(t, stats.SendFailures)
}

type gatedExporter struct {
	gate <-chan struct{}
}

func (g *gatedExporter) SendBatch(ctx context.Context, batch apm.Batch) error {
	select {
	case <-g.gate:
	case <-ctx.Done():
	}
	return nil
}

func closeTracer(t *testing.T, tracer *apm.Tracer) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, tracer.Close(ctx))
}
