package analytics

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pulsemetric/pulse/pkg/apm/apmecho"
	"github.com/pulsemetric/pulse/pkg/apm/apmtest"
)

func TestAnalyticsComputesEveryMetricConcurrently(t *testing.T) {
	tracer, recorder := apmtest.NewRecorderTracer(t)

	h := NewHandler()
	h.sleep = func(time.Duration) {}

	e := echo.New()
	e.Use(apmecho.Middleware(tracer))
	RegisterRoutes(e, h)

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/analytics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	apmtest.Flush(t, tracer)

	var results []Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &results))
	require.Len(t, results, len(pipelineMetrics))
	for i, m := range pipelineMetrics {
		assert.Equal(t, m.name, results[i].Metric, "results keep pipeline order")
		assert.GreaterOrEqual(t, results[i].Value, 0.0)
		assert.LessOrEqual(t, results[i].Value, 100.0)
	}

	tx := recorder.TransactionByName("GET /api/analytics")
	require.NotNil(t, tx)
	require.Len(t, tx.Spans, 1)
	parent := tx.Spans[0]
	assert.Equal(t, "analytics_pipeline", parent.Name)
	assert.Equal(t, "app", parent.Category)
	assert.Equal(t, int64(len(pipelineMetrics)), parent.Labels["metrics_calculated"].IntValue())

	// Concurrent metric spans land in open order, so collect by name.
	require.Len(t, parent.Children, len(pipelineMetrics))
	seen := map[string]bool{}
	for _, child := range parent.Children {
		assert.Equal(t, "analytics", child.Category)
		assert.NotEmpty(t, child.Labels["metric"].StringValue())
		seen[child.Name] = true
	}
	for _, m := range pipelineMetrics {
		assert.True(t, seen["calculate_"+m.name], "missing span for %s", m.name)
	}
}
