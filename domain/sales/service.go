package sales

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/pulsemetric/pulse/internal/config"
	"github.com/pulsemetric/pulse/pkg/apm"
	"github.com/pulsemetric/pulse/pkg/logger"
)

// errSimulated is the expected failure of the error handling demo.
var errSimulated = errors.New("simulated processing error")

// BatchItem is one processed unit of the batch step.
type BatchItem struct {
	Item   int    `json:"item"`
	Status string `json:"status"`
	Value  int    `json:"value"`
}

// Service runs the batch job steps.
type Service struct {
	repo *Repository
	cfg  *config.Config
	log  *slog.Logger

	// sleep stands in for the simulated work; tests replace it.
	sleep func(time.Duration)
	// chance feeds the error demo; tests pin it.
	chance func() float64
}

// NewService creates a new sales service
func NewService(repo *Repository, cfg *config.Config, log *slog.Logger) *Service {
	return &Service{
		repo:   repo,
		cfg:    cfg,
		log:    log.With(logger.Scope("sales.svc")),
		sleep:  time.Sleep,
		chance: rand.Float64,
	}
}

// ProcessBatch processes size items sequentially, one span per item.
func (s *Service) ProcessBatch(ctx context.Context, size int) ([]BatchItem, error) {
	var items []BatchItem
	err := apm.WithSpan(ctx, "process_batch", "processing", func(ctx context.Context) error {
		items = make([]BatchItem, 0, size)
		for i := 0; i < size; i++ {
			err := apm.WithSpan(ctx, fmt.Sprintf("process_item_%d", i), "processing.item", func(ctx context.Context) error {
				s.sleep(time.Duration(50+rand.IntN(100)) * time.Millisecond)
				items = append(items, BatchItem{
					Item:   i,
					Status: "processed",
					Value:  1 + rand.IntN(100),
				})
				return nil
			})
			if err != nil {
				return err
			}
		}

		apm.AddLabels(ctx,
			apm.Int("batch_size", size),
			apm.Int("items_processed", len(items)),
		)
		return nil
	})
	return items, err
}

// GenerateReport assembles the full report: catalog, totals, and derived
// analytics. The data fetches nest under the report span.
func (s *Service) GenerateReport(ctx context.Context) (*Report, error) {
	var report *Report
	err := apm.WithSpan(ctx, "generate_report", "reporting", func(ctx context.Context) error {
		products, err := s.repo.FetchProducts(ctx)
		if err != nil {
			return err
		}
		totals, err := s.repo.TotalSales(ctx)
		if err != nil {
			return err
		}

		var analytics Analytics
		err = apm.WithSpan(ctx, "analytics_processing", "app", func(ctx context.Context) error {
			s.sleep(500 * time.Millisecond)
			analytics = Analytics{
				ProductCount: len(products),
				Timestamp:    time.Now().UTC(),
			}
			if totals.Count > 0 {
				analytics.AvgSaleAmount = totals.Amount / float64(totals.Count)
			}
			return nil
		})
		if err != nil {
			return err
		}

		report = &Report{
			TotalProducts: len(products),
			TotalSales:    totals.Count,
			TotalRevenue:  totals.Amount,
			Analytics:     analytics,
			GeneratedAt:   time.Now().UTC(),
		}

		apm.AddLabels(ctx,
			apm.Bool("report_generated", true),
			apm.Int("products", len(products)),
		)
		return nil
	})
	return report, err
}

// ErrorHandlingDemo runs an operation that usually fails, captures the
// failure, and handles it. Only the risky span ends up failed; the demo
// itself always succeeds.
func (s *Service) ErrorHandlingDemo(ctx context.Context) error {
	return apm.WithSpan(ctx, "error_handling_demo", "app", func(ctx context.Context) error {
		err := s.riskyOperation(ctx)
		if err != nil {
			apm.AddLabels(ctx,
				apm.Bool("error_handled", true),
				apm.String("error_type", "processing_error"),
			)
			s.log.Info("handled expected error", logger.Error(err))
			return nil
		}
		s.log.Info("operation succeeded without error")
		return nil
	})
}

func (s *Service) riskyOperation(ctx context.Context) error {
	return apm.WithSpan(ctx, "risky_operation", "app", func(ctx context.Context) error {
		apm.AddLabels(ctx,
			apm.String("operation", "risky"),
			apm.Bool("expected_error", true),
		)
		if s.chance() < 0.7 {
			return errSimulated
		}
		return nil
	})
}

// RunComplexJob runs the whole batch pipeline as five sequential steps under
// the ambient transaction, which it names and tags.
func (s *Service) RunComplexJob(ctx context.Context, batchSize int) (*Report, error) {
	tx := apm.TransactionFromContext(ctx)
	tx.SetName("complex_batch_job")
	apm.SetCustomContext(ctx,
		apm.String("job_type", "batch_processing"),
		apm.String("environment", s.cfg.Environment),
		apm.String("batch_id", fmt.Sprintf("batch_%d", time.Now().Unix())),
	)

	err := apm.WithSpan(ctx, "step_1_initialization", "setup", func(ctx context.Context) error {
		if err := s.repo.InitializeData(ctx); err != nil {
			return err
		}
		apm.AddLabels(ctx, apm.Int("step", 1), apm.String("description", "initialization"))
		return nil
	})
	if err != nil {
		return nil, err
	}

	err = apm.WithSpan(ctx, "step_2_data_processing", "processing", func(ctx context.Context) error {
		if _, err := s.repo.FetchProducts(ctx); err != nil {
			return err
		}
		items, err := s.ProcessBatch(ctx, batchSize)
		if err != nil {
			return err
		}
		apm.AddLabels(ctx,
			apm.Int("step", 2),
			apm.String("description", "data_processing"),
			apm.Int("items", len(items)),
		)
		return nil
	})
	if err != nil {
		return nil, err
	}

	err = apm.WithSpan(ctx, "step_3_metrics", "analytics", func(ctx context.Context) error {
		if _, err := s.repo.TotalSales(ctx); err != nil {
			return err
		}
		apm.AddLabels(ctx, apm.Int("step", 3), apm.String("description", "metrics"))
		return nil
	})
	if err != nil {
		return nil, err
	}

	var report *Report
	err = apm.WithSpan(ctx, "step_4_reporting", "reporting", func(ctx context.Context) error {
		r, err := s.GenerateReport(ctx)
		if err != nil {
			return err
		}
		report = r
		apm.AddLabels(ctx, apm.Int("step", 4), apm.String("description", "reporting"))
		return nil
	})
	if err != nil {
		return nil, err
	}

	err = apm.WithSpan(ctx, "step_5_error_handling", "app", func(ctx context.Context) error {
		if err := s.ErrorHandlingDemo(ctx); err != nil {
			return err
		}
		apm.AddLabels(ctx, apm.Int("step", 5), apm.String("description", "error_handling"))
		return nil
	})
	if err != nil {
		return nil, err
	}

	return report, nil
}
