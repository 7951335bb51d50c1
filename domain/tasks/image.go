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

// ProcessImageArgs are the arguments of the image.process task.
type ProcessImageArgs struct {
	ImageURL        string   `json:"image_url"`
	Transformations []string `json:"transformations"`
}

// ProcessImage downloads an image, applies each requested transformation
// in order, and uploads the result. All three phases are simulated.
func (t *Tasks) ProcessImage(ctx context.Context, task *queue.Task) (any, error) {
	var args ProcessImageArgs
	if err := task.UnmarshalArgs(&args); err != nil {
		return nil, fmt.Errorf("decode image args: %w", err)
	}

	err := apm.WithSpan(ctx, "download_image", "http", func(ctx context.Context) error {
		t.sleep(500 * time.Millisecond)
		apm.AddLabels(ctx,
			apm.String("url", args.ImageURL),
			apm.Float64("size_mb", math.Round((1+rand.Float64()*9)*100)/100),
		)
		return nil
	})
	if err != nil {
		return nil, err
	}

	for _, transform := range args.Transformations {
		err := apm.WithSpan(ctx, "transform_"+transform, "processing.image", func(ctx context.Context) error {
			t.sleep(time.Duration(300+rand.IntN(500)) * time.Millisecond)
			apm.AddLabels(ctx,
				apm.String("transformation", transform),
				apm.Bool("applied", true),
			)
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	err = apm.WithSpan(ctx, "upload_result", "http", func(ctx context.Context) error {
		t.sleep(300 * time.Millisecond)
		resultURL := fmt.Sprintf("https://cdn.example.com/processed/%d.jpg", 1000+rand.IntN(9000))
		apm.AddLabels(ctx, apm.String("result_url", resultURL))
		return nil
	})
	if err != nil {
		return nil, err
	}

	return map[string]any{
		"status":          "processed",
		"transformations": len(args.Transformations),
	}, nil
}
