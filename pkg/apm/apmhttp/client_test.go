package apmhttp_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pulsemetric/pulse/pkg/apm"
	"github.com/pulsemetric/pulse/pkg/apm/apmhttp"
	"github.com/pulsemetric/pulse/pkg/apm/apmtest"
)

func TestWrapClientRecordsSpan(t *testing.T) {
	tracer, recorder := apmtest.NewRecorderTracer(t)

	var gotTraceparent string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotTraceparent = r.Header.Get("Traceparent")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client := apmhttp.WrapClient(srv.Client())

	tx := tracer.StartTransaction("outbound", "test")
	ctx := apm.ContextWithTransaction(context.Background(), tx)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/repos", nil)
	require.NoError(t, err)
	resp, err := client.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	tx.End()
	apmtest.Flush(t, tracer)

	rec := recorder.TransactionByName("outbound")
	require.NotNil(t, rec)
	require.Len(t, rec.Spans, 1)

	span := rec.Spans[0]
	assert.Equal(t, "external.http", span.Category)
	assert.True(t, strings.HasPrefix(span.Name, "GET "))
	assert.Equal(t, int64(http.StatusOK), span.Labels["http.status_code"].IntValue())
	assert.Equal(t, "success", span.Outcome)

	require.NotEmpty(t, gotTraceparent, "trace context must propagate downstream")
	tc, err := apm.ParseTraceparent(gotTraceparent)
	require.NoError(t, err)
	assert.Equal(t, rec.TraceID, tc.TraceID)
	assert.Equal(t, span.ID, tc.SpanID, "the outbound span is the downstream parent")
}

func TestWrapClientServerErrorIsFailure(t *testing.T) {
	tracer, recorder := apmtest.NewRecorderTracer(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	client := apmhttp.WrapClient(srv.Client())

	tx := tracer.StartTransaction("outbound-failure", "test")
	ctx := apm.ContextWithTransaction(context.Background(), tx)

	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
	resp, err := client.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	tx.End()
	apmtest.Flush(t, tracer)

	rec := recorder.TransactionByName("outbound-failure")
	require.NotNil(t, rec)
	require.Len(t, rec.Spans, 1)
	assert.Equal(t, "failure", rec.Spans[0].Outcome)
}

func TestWrapClientWithoutTransactionPassesThrough(t *testing.T) {
	var gotTraceparent string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotTraceparent = r.Header.Get("Traceparent")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client := apmhttp.WrapClient(srv.Client())

	resp, err := client.Get(srv.URL)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Empty(t, gotTraceparent, "no transaction, no propagation")
}

func TestWrapClientDoesNotModifyOriginal(t *testing.T) {
	original := &http.Client{}
	wrapped := apmhttp.WrapClient(original)
	assert.Nil(t, original.Transport)
	assert.NotNil(t, wrapped.Transport)
	assert.NotSame(t, original, wrapped)
}
