// Package analytics computes a batch of fake metrics concurrently, giving
// traces a fan-out of sibling spans with per-metric labels.
package analytics

import (
	"context"
	"math"
	"math/rand/v2"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"golang.org/x/sync/errgroup"

	"github.com/pulsemetric/pulse/pkg/apm"
)

// Result is one computed metric.
type Result struct {
	Metric    string    `json:"metric"`
	Value     float64   `json:"value"`
	Timestamp time.Time `json:"timestamp"`
}

type metricSpec struct {
	name  string
	delay time.Duration
}

// pipelineMetrics is the fixed set of metrics the pipeline computes, with
// the simulated cost of each.
var pipelineMetrics = []metricSpec{
	{"user_engagement", 300 * time.Millisecond},
	{"conversion_rate", 250 * time.Millisecond},
	{"avg_session_duration", 200 * time.Millisecond},
	{"bounce_rate", 150 * time.Millisecond},
}

// Handler handles the analytics demo endpoint.
type Handler struct {
	// sleep stands in for the simulated work; tests replace it.
	sleep func(time.Duration)
}

// NewHandler creates a new analytics handler
func NewHandler() *Handler {
	return &Handler{sleep: time.Sleep}
}

// Analytics computes every pipeline metric concurrently, one span per
// metric under a shared parent.
// GET /api/analytics
func (h *Handler) Analytics(c echo.Context) error {
	ctx, parent := apm.StartSpan(c.Request().Context(), "analytics_pipeline", "app")
	defer parent.End()

	results := make([]Result, len(pipelineMetrics))
	g, gctx := errgroup.WithContext(ctx)
	for i, m := range pipelineMetrics {
		g.Go(func() error {
			results[i] = h.calculateMetric(gctx, m)
			return nil
		})
	}
	_ = g.Wait()

	apm.AddLabels(ctx, apm.Int("metrics_calculated", len(results)))

	return c.JSON(http.StatusOK, results)
}

func (h *Handler) calculateMetric(ctx context.Context, m metricSpec) Result {
	ctx, span := apm.StartSpan(ctx, "calculate_"+m.name, "analytics")
	defer span.End()

	h.sleep(m.delay)
	value := math.Round(rand.Float64()*100*100) / 100

	apm.AddLabels(ctx,
		apm.String("metric", m.name),
		apm.Float64("value", value),
	)

	return Result{Metric: m.name, Value: value, Timestamp: time.Now().UTC()}
}
