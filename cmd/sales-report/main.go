// Package main runs the batch demo: a five step sales reporting job over
// a local SQLite database, traced end to end as a single transaction.
// It seeds its own data, so a fresh checkout produces a full trace.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/pulsemetric/pulse/domain/sales"
	"github.com/pulsemetric/pulse/domain/tracing"
	"github.com/pulsemetric/pulse/internal/config"
	"github.com/pulsemetric/pulse/internal/database"
	"github.com/pulsemetric/pulse/pkg/apm"
	"github.com/pulsemetric/pulse/pkg/logger"
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		dbPath    string
		batchSize int
	)
	flag.StringVar(&dbPath, "db", "", "SQLite database path (default from BATCH_DB_PATH)")
	flag.IntVar(&batchSize, "batch-size", 0, "items per processing batch (default from BATCH_SIZE)")
	flag.Parse()

	// Load .env if present (for local development)
	_ = godotenv.Load(".env")

	log := logger.NewLogger()

	cfg, err := config.NewConfig(log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		return 1
	}
	if dbPath != "" {
		cfg.Batch.DBPath = dbPath
	}
	if batchSize > 0 {
		cfg.Batch.Size = batchSize
	}

	tracer, err := tracing.NewTracer("pulse-demo-batch", cfg, log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating tracer: %v\n", err)
		return 1
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tracer.Close(ctx); err != nil {
			log.Warn("tracer close failed", logger.Error(err))
		}
	}()

	db, err := database.Open(cfg.Batch.DBPath, cfg.Debug, log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening database: %v\n", err)
		return 1
	}
	defer db.Close()

	repo := sales.NewRepository(db, log)
	svc := sales.NewService(repo, cfg, log)

	log.Info("starting batch job",
		slog.String("db", cfg.Batch.DBPath),
		slog.Int("batch_size", cfg.Batch.Size),
	)

	// One transaction for the whole job; RunComplexJob names it once the
	// shape is known.
	tx := tracer.StartTransaction("batch_job", "batch")
	ctx := apm.ContextWithTransaction(context.Background(), tx)

	report, err := svc.RunComplexJob(ctx, cfg.Batch.Size)
	if err != nil {
		apm.CaptureError(ctx, err)
		tx.SetResult("failure")
		tx.End()
		log.Error("batch job failed", logger.Error(err))
		return 1
	}
	tx.SetResult("success")
	// The error handling step captures a handled error; the job itself
	// still succeeded.
	tx.SetOutcome(apm.OutcomeSuccess)
	tx.End()

	log.Info("batch job completed",
		slog.Int("products", report.TotalProducts),
		slog.Int("sales", report.TotalSales),
		slog.Float64("revenue", report.TotalRevenue),
		slog.Float64("avg_sale", report.Analytics.AvgSaleAmount),
	)
	return 0
}
