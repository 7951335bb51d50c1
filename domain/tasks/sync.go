package tasks

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/pulsemetric/pulse/internal/queue"
	"github.com/pulsemetric/pulse/pkg/apm"
)

// DataSyncArgs are the arguments of the data.sync task.
type DataSyncArgs struct {
	Source      string `json:"source"`
	Destination string `json:"destination"`
	BatchSize   int    `json:"batch_size,omitempty"`
}

// DataSync copies a simulated dataset between two stores in batches. Each
// batch runs an extract, transform, load sequence under its own span so
// the trace shows the full ELT cadence.
func (t *Tasks) DataSync(ctx context.Context, task *queue.Task) (any, error) {
	var args DataSyncArgs
	if err := task.UnmarshalArgs(&args); err != nil {
		return nil, fmt.Errorf("decode sync args: %w", err)
	}
	if args.BatchSize <= 0 {
		args.BatchSize = 100
	}

	totalRecords := 500 + rand.IntN(1501)
	batches := totalRecords/args.BatchSize + 1

	apm.AddLabels(ctx,
		apm.String("source", args.Source),
		apm.String("destination", args.Destination),
		apm.Int("total_records", totalRecords),
		apm.Int("batch_size", args.BatchSize),
	)

	recordsSynced := 0
	for batchNum := 1; batchNum <= batches; batchNum++ {
		bctx, batch := apm.StartSpan(ctx, fmt.Sprintf("sync_batch_%d", batchNum), "db.sync")

		_, extract := apm.StartSpan(bctx, "extract", "db.read")
		t.sleep(time.Duration(100+rand.IntN(200)) * time.Millisecond)
		extract.End()

		_, transform := apm.StartSpan(bctx, "transform", "processing")
		t.sleep(time.Duration(50+rand.IntN(100)) * time.Millisecond)
		transform.End()

		_, load := apm.StartSpan(bctx, "load", "db.write")
		t.sleep(time.Duration(100+rand.IntN(200)) * time.Millisecond)
		load.End()

		synced := min(args.BatchSize, totalRecords-recordsSynced)
		recordsSynced += synced
		batch.AddLabels(
			apm.Int("batch", batchNum),
			apm.Int("records_synced", recordsSynced),
		)
		batch.End()
	}

	return map[string]any{
		"status":        "completed",
		"total_records": totalRecords,
		"batches":       batches,
	}, nil
}
