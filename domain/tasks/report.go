package tasks

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"github.com/pulsemetric/pulse/internal/queue"
	"github.com/pulsemetric/pulse/pkg/apm"
)

// GenerateReportArgs are the arguments of the report.generate task.
type GenerateReportArgs struct {
	ReportType string            `json:"report_type"`
	DateRange  map[string]string `json:"date_range,omitempty"`
}

// GenerateReport fetches report data, computes summary metrics, and
// renders a PDF. Each phase is simulated with a realistic delay.
func (t *Tasks) GenerateReport(ctx context.Context, task *queue.Task) (any, error) {
	var args GenerateReportArgs
	if err := task.UnmarshalArgs(&args); err != nil {
		return nil, fmt.Errorf("decode report args: %w", err)
	}

	var records int
	err := apm.WithSpan(ctx, "fetch_data", "db.query", func(ctx context.Context) error {
		t.sleep(800 * time.Millisecond)
		records = 100 + rand.IntN(9901)
		apm.AddLabels(ctx,
			apm.String("report_type", args.ReportType),
			apm.Int("records", records),
		)
		return nil
	})
	if err != nil {
		return nil, err
	}

	var metrics map[string]any
	err = apm.WithSpan(ctx, "calculate_metrics", "processing", func(ctx context.Context) error {
		t.sleep(1 * time.Second)
		metrics = map[string]any{
			"total":   records,
			"average": math.Round((50+rand.Float64()*450)*100) / 100,
			"max":     500 + rand.IntN(501),
			"min":     10 + rand.IntN(41),
		}
		apm.AddLabels(ctx, apm.Int("metrics_calculated", len(metrics)))
		return nil
	})
	if err != nil {
		return nil, err
	}

	var filename string
	err = apm.WithSpan(ctx, "generate_pdf", "file.generation", func(ctx context.Context) error {
		t.sleep(1200 * time.Millisecond)
		filename = fmt.Sprintf("report_%s_%d.pdf", args.ReportType, time.Now().Unix())
		apm.AddLabels(ctx,
			apm.String("filename", filename),
			apm.Int("pages", 5+rand.IntN(46)),
		)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return map[string]any{
		"status":   "completed",
		"filename": filename,
		"metrics":  metrics,
	}, nil
}
