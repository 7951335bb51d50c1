package processing

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pulsemetric/pulse/pkg/apm"
	"github.com/pulsemetric/pulse/pkg/apm/apmecho"
	"github.com/pulsemetric/pulse/pkg/apm/apmtest"
	"github.com/pulsemetric/pulse/pkg/apperror"
)

func newTestHandler(t *testing.T) (*echo.Echo, *apm.Tracer, *apmtest.RecorderExporter) {
	t.Helper()

	tracer, recorder := apmtest.NewRecorderTracer(t)
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	h := NewHandler()
	h.sleep = func(time.Duration) {}

	e := echo.New()
	e.HTTPErrorHandler = apperror.HTTPErrorHandler(log)
	e.Use(apmecho.Middleware(tracer))
	RegisterRoutes(e, h)

	return e, tracer, recorder
}

func TestProcessRunsThreeSequentialSteps(t *testing.T) {
	e, tracer, recorder := newTestHandler(t)

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/processing", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	apmtest.Flush(t, tracer)

	tx := recorder.TransactionByName("GET /api/processing")
	require.NotNil(t, tx)
	require.Len(t, tx.Spans, 3, "three sibling steps, no nesting")
	assert.Equal(t, "validation", tx.Spans[0].Name)
	assert.Equal(t, "processing", tx.Spans[1].Name)
	assert.Equal(t, "storage", tx.Spans[2].Name)
	for _, span := range tx.Spans {
		assert.Empty(t, span.Children)
		assert.Equal(t, "app", span.Category)
	}
	assert.Equal(t, int64(100), tx.Spans[1].Labels["records"].IntValue())
}

func TestSlowQueryClampsDelay(t *testing.T) {
	e, tracer, recorder := newTestHandler(t)

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/slow-query?delay=9999", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	apmtest.Flush(t, tracer)

	tx := recorder.TransactionByName("GET /api/slow-query")
	require.NotNil(t, tx)
	require.Len(t, tx.Spans, 1)
	span := tx.Spans[0]
	assert.Equal(t, "slow_query", span.Name)
	assert.Equal(t, "db.query", span.Category)
	assert.Equal(t, maxQueryDelay.Seconds(), span.Labels["delay_seconds"].Float64Value())
}

func TestSlowQueryRejectsGarbage(t *testing.T) {
	e, _, _ := newTestHandler(t)

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/slow-query?delay=abc", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestErrorEndpointFailsTransaction(t *testing.T) {
	e, tracer, recorder := newTestHandler(t)

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/error", nil))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "intentional_error")
	apmtest.Flush(t, tracer)

	tx := recorder.TransactionByName("GET /api/error")
	require.NotNil(t, tx)
	assert.Equal(t, "failure", tx.Outcome)
	assert.Equal(t, true, tx.Labels["intentional"].BoolValue())
	require.Len(t, tx.Errors, 1)
}

func TestStreamingNestsBatchesUnderParent(t *testing.T) {
	e, tracer, recorder := newTestHandler(t)

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/streaming?count=3", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	apmtest.Flush(t, tracer)

	tx := recorder.TransactionByName("GET /api/streaming")
	require.NotNil(t, tx)
	require.Len(t, tx.Spans, 1)
	parent := tx.Spans[0]
	assert.Equal(t, "streaming_operation", parent.Name)
	require.Len(t, parent.Children, 3)
	for i, child := range parent.Children {
		assert.Equal(t, "process_batch_"+strconv.Itoa(i+1), child.Name)
		assert.Equal(t, "app.batch", child.Category)
	}
	assert.Equal(t, int64(3), parent.Labels["total_batches"].IntValue())

	// The parent's totals label matches the sum of the children.
	var sum int64
	for _, child := range parent.Children {
		sum += child.Labels["records"].IntValue()
	}
	assert.Equal(t, sum, parent.Labels["total_records"].IntValue())
}

func TestStreamingClampsCount(t *testing.T) {
	e, tracer, recorder := newTestHandler(t)

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/streaming?count=500", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	apmtest.Flush(t, tracer)

	tx := recorder.TransactionByName("GET /api/streaming")
	require.NotNil(t, tx)
	require.Len(t, tx.Spans, 1)
	assert.Len(t, tx.Spans[0].Children, maxBatchCount)
}
