// Package processing implements the simulated data-pipeline endpoints. The
// work behind each endpoint is a sleep of realistic length; its only purpose
// is to produce span trees with recognizable shapes.
package processing

import (
	"context"
	"math/rand/v2"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/pulsemetric/pulse/pkg/apm"
	"github.com/pulsemetric/pulse/pkg/apperror"
)

const (
	minQueryDelay = 100 * time.Millisecond
	maxQueryDelay = 10 * time.Second

	defaultBatchCount = 5
	maxBatchCount     = 20
)

// errIntentional is what GET /api/error returns, on purpose.
var errIntentional = apperror.New(http.StatusInternalServerError,
	"intentional_error", "This is an intentional error for APM testing")

// Handler handles the processing demo endpoints.
type Handler struct {
	// sleep stands in for the simulated work; tests replace it.
	sleep func(time.Duration)
}

// NewHandler creates a new processing handler
func NewHandler() *Handler {
	return &Handler{sleep: time.Sleep}
}

// Process runs three sequential pipeline steps, each in its own span.
// GET /api/processing
func (h *Handler) Process(c echo.Context) error {
	ctx := c.Request().Context()

	err := apm.WithSpan(ctx, "validation", "app", func(ctx context.Context) error {
		h.sleep(100 * time.Millisecond)
		apm.AddLabels(ctx, apm.String("step", "validation"), apm.String("status", "passed"))
		return nil
	})
	if err != nil {
		return err
	}

	var records int
	err = apm.WithSpan(ctx, "processing", "app", func(ctx context.Context) error {
		h.sleep(200 * time.Millisecond)
		records = 100
		apm.AddLabels(ctx, apm.String("step", "processing"), apm.Int("records", records))
		return nil
	})
	if err != nil {
		return err
	}

	err = apm.WithSpan(ctx, "storage", "app", func(ctx context.Context) error {
		h.sleep(150 * time.Millisecond)
		apm.AddLabels(ctx, apm.String("step", "storage"), apm.String("status", "completed"))
		return nil
	})
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, map[string]any{
		"message": "processing completed",
		"result": map[string]any{
			"processed": true,
			"records":   records,
		},
		"timestamp": time.Now().UTC(),
	})
}

// SlowQuery simulates a slow database query. The delay query parameter is
// clamped to [0.1s, 10s].
// GET /api/slow-query?delay=2.0
func (h *Handler) SlowQuery(c echo.Context) error {
	delay := 2 * time.Second
	if raw := c.QueryParam("delay"); raw != "" {
		seconds, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return apperror.NewBadRequest("delay must be a number of seconds")
		}
		delay = time.Duration(seconds * float64(time.Second))
	}
	if delay < minQueryDelay {
		delay = minQueryDelay
	}
	if delay > maxQueryDelay {
		delay = maxQueryDelay
	}

	ctx, span := apm.StartSpan(c.Request().Context(), "slow_query", "db.query")
	defer span.End()

	apm.AddLabels(ctx,
		apm.Float64("delay_seconds", delay.Seconds()),
		apm.String("query_type", "slow"),
	)
	h.sleep(delay)

	return c.JSON(http.StatusOK, map[string]any{
		"query":          "SELECT * FROM large_table WHERE condition = true",
		"rows_returned":  1000 + rand.IntN(9001),
		"execution_time": delay.Seconds(),
	})
}

// Error fails on purpose so the dashboard has failures to show.
// GET /api/error
func (h *Handler) Error(c echo.Context) error {
	ctx := c.Request().Context()
	apm.AddLabels(ctx,
		apm.String("endpoint", "error"),
		apm.Bool("intentional", true),
	)

	h.sleep(100 * time.Millisecond)

	return errIntentional
}

// Streaming processes count batches sequentially, one span per batch under
// a shared parent span. The count query parameter is clamped to [1, 20].
// GET /api/streaming?count=5
func (h *Handler) Streaming(c echo.Context) error {
	count := defaultBatchCount
	if raw := c.QueryParam("count"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return apperror.NewBadRequest("count must be an integer")
		}
		count = n
	}
	if count < 1 {
		count = 1
	}
	if count > maxBatchCount {
		count = maxBatchCount
	}

	type batchResult struct {
		Batch            int    `json:"batch"`
		RecordsProcessed int    `json:"records_processed"`
		Status           string `json:"status"`
	}

	ctx, parent := apm.StartSpan(c.Request().Context(), "streaming_operation", "app")
	defer parent.End()

	batches := make([]batchResult, 0, count)
	totalRecords := 0
	for i := 1; i <= count; i++ {
		bctx, span := apm.StartSpan(ctx, "process_batch_"+strconv.Itoa(i), "app.batch")
		h.sleep(time.Duration(100+rand.IntN(200)) * time.Millisecond)
		records := 10 + rand.IntN(91)
		apm.AddLabels(bctx,
			apm.Int("batch_num", i),
			apm.Int("records", records),
		)
		span.End()

		totalRecords += records
		batches = append(batches, batchResult{
			Batch:            i,
			RecordsProcessed: records,
			Status:           "completed",
		})
	}

	parent.AddLabels(
		apm.Int("total_batches", count),
		apm.Int("total_records", totalRecords),
	)

	return c.JSON(http.StatusOK, map[string]any{
		"batches":       batches,
		"total_records": totalRecords,
		"timestamp":     time.Now().UTC(),
	})
}
