// Package apmtest provides test doubles for asserting on traced behavior.
package apmtest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pulsemetric/pulse/pkg/apm"
)

// RecorderExporter keeps every exported batch in memory.
type RecorderExporter struct {
	mu      sync.Mutex
	batches []apm.Batch
}

func (r *RecorderExporter) SendBatch(ctx context.Context, batch apm.Batch) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.batches = append(r.batches, batch)
	return nil
}

// Batches returns a copy of everything received so far.
func (r *RecorderExporter) Batches() []apm.Batch {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]apm.Batch(nil), r.batches...)
}

// Transactions returns all received transaction records, flattened across
// batches in arrival order.
func (r *RecorderExporter) Transactions() []*apm.TransactionRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*apm.TransactionRecord
	for _, b := range r.batches {
		out = append(out, b.Transactions...)
	}
	return out
}

// TransactionByName returns the first received transaction with the given
// name, or nil.
func (r *RecorderExporter) TransactionByName(name string) *apm.TransactionRecord {
	for _, tx := range r.Transactions() {
		if tx.Name == name {
			return tx
		}
	}
	return nil
}

// NewRecorderTracer builds a tracer wired to an in-memory recorder, with a
// short flush interval. Tests end their transactions, call tracer.Flush, and
// assert on the recorder. The tracer is closed via t.Cleanup.
func NewRecorderTracer(t *testing.T) (*apm.Tracer, *RecorderExporter) {
	t.Helper()

	recorder := &RecorderExporter{}
	tracer, err := apm.NewTracer(apm.TracerOptions{
		ServiceName:   "test-service",
		Environment:   "test",
		FlushInterval: 10 * time.Millisecond,
		Exporter:      recorder,
	})
	if err != nil {
		t.Fatalf("NewTracer: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = tracer.Close(ctx)
	})
	return tracer, recorder
}

// Flush flushes the tracer, failing the test on error.
func Flush(t *testing.T, tracer *apm.Tracer) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := tracer.Flush(ctx); err != nil {
		t.Fatalf("tracer flush: %v", err)
	}
}
