package apm_test

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pulsemetric/pulse/pkg/apm"
)

func TestHTTPExporterSendsNDJSON(t *testing.T) {
	type received struct {
		path        string
		contentType string
		auth        string
		body        []byte
	}
	got := make(chan received, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		got <- received{
			path:        r.URL.Path,
			contentType: r.Header.Get("Content-Type"),
			auth:        r.Header.Get("Authorization"),
			body:        body,
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	exporter := apm.NewHTTPExporter(srv.URL, "s3cret", srv.Client())
	err := exporter.SendBatch(context.Background(), apm.Batch{
		Metadata: &apm.Metadata{
			Service: apm.ServiceMetadata{Name: "demo", Language: "go"},
		},
		Transactions: []*apm.TransactionRecord{
			{ID: "a1", TraceID: "t1", Name: "GET /", Type: "request", Outcome: "success"},
			{ID: "a2", TraceID: "t2", Name: "task.email", Type: "task", Outcome: "failure"},
		},
	})
	require.NoError(t, err)

	req := <-got
	assert.Equal(t, "/intake/v2/events", req.path)
	assert.Equal(t, "application/x-ndjson", req.contentType)
	assert.Equal(t, "Bearer s3cret", req.auth)

	scanner := bufio.NewScanner(bytes.NewReader(req.body))
	var lines []map[string]json.RawMessage
	for scanner.Scan() {
		var line map[string]json.RawMessage
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &line))
		lines = append(lines, line)
	}
	require.Len(t, lines, 3, "metadata line plus one line per transaction")

	assert.Contains(t, lines[0], "metadata")
	assert.Contains(t, lines[1], "transaction")
	assert.Contains(t, lines[2], "transaction")

	var first apm.TransactionRecord
	require.NoError(t, json.Unmarshal(lines[1]["transaction"], &first))
	assert.Equal(t, "GET /", first.Name)
}

func TestHTTPExporterReportsRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "queue is full", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	exporter := apm.NewHTTPExporter(srv.URL, "", srv.Client())
	err := exporter.SendBatch(context.Background(), apm.Batch{Metadata: &apm.Metadata{}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
	assert.Contains(t, err.Error(), "queue is full")
}

func TestExporterFailureNeverReachesInstrumentedCode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	tracer, err := apm.NewTracer(apm.TracerOptions{
		ServiceName:   "export-failure-test",
		ServerURL:     srv.URL,
		FlushInterval: 10 * time.Millisecond,
		HTTPClient:    srv.Client(),
	})
	require.NoError(t, err)
	defer closeTracer(t, tracer)

	// Ending and flushing must stay error-free for the instrumented path
	// even though every export attempt fails.
	tracer.StartTransaction("doomed", "test").End()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, tracer.Flush(ctx))

	assert.GreaterOrEqual(t, tracer.Stats().SendFailures, uint64(1))
	assert.Zero(t, tracer.Stats().TransactionsSent)
}
