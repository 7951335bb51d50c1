package tasks

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/pulsemetric/pulse/internal/queue"
	"github.com/pulsemetric/pulse/pkg/apm"
)

// ComplexWorkflowArgs are the arguments of the workflow.complex task.
type ComplexWorkflowArgs struct {
	WorkflowID string `json:"workflow_id"`
}

// ComplexWorkflow runs a five step workflow with one nested fan-out, the
// richest trace shape the demo produces.
func (t *Tasks) ComplexWorkflow(ctx context.Context, task *queue.Task) (any, error) {
	var args ComplexWorkflowArgs
	if err := task.UnmarshalArgs(&args); err != nil {
		return nil, fmt.Errorf("decode workflow args: %w", err)
	}

	apm.SetCustomContext(ctx,
		apm.String("workflow_id", args.WorkflowID),
		apm.String("workflow_type", "complex_multi_step"),
	)

	_, step1 := apm.StartSpan(ctx, "step_1_validation", "validation")
	t.sleep(500 * time.Millisecond)
	step1.AddLabels(apm.Int("step", 1), apm.Bool("validation_passed", true))
	step1.End()

	_, step2 := apm.StartSpan(ctx, "step_2_enrichment", "processing")
	t.sleep(800 * time.Millisecond)
	step2.AddLabels(apm.Int("enriched_fields", 5+rand.IntN(11)))
	step2.End()

	sctx, step3 := apm.StartSpan(ctx, "step_3_api_calls", "external")
	for i := 1; i <= 3; i++ {
		_, call := apm.StartSpan(sctx, fmt.Sprintf("api_call_%d", i), "external.http")
		t.sleep(time.Duration(200+rand.IntN(300)) * time.Millisecond)
		call.AddLabels(
			apm.String("api_endpoint", fmt.Sprintf("endpoint_%d", i)),
			apm.Int("status", 200),
		)
		call.End()
	}
	step3.End()

	_, step4 := apm.StartSpan(ctx, "step_4_persistence", "db.write")
	t.sleep(600 * time.Millisecond)
	step4.AddLabels(apm.Int("records_saved", 10+rand.IntN(91)))
	step4.End()

	_, step5 := apm.StartSpan(ctx, "step_5_notification", "notification")
	t.sleep(300 * time.Millisecond)
	step5.AddLabels(apm.Bool("notification_sent", true))
	step5.End()

	return map[string]any{
		"workflow_id":     args.WorkflowID,
		"status":          "completed",
		"steps_completed": 5,
	}, nil
}

// FailingArgs are the arguments of the task.failing task.
type FailingArgs struct {
	// FailProbability defaults to 0.5 when absent.
	FailProbability *float64 `json:"fail_probability,omitempty"`
}

// errSimulatedFailure is raised on purpose by the failing task.
var errSimulatedFailure = errors.New("simulated task failure for APM error tracking")

// Failing fails with the configured probability so error tracking always
// has fresh data. The worker captures the returned error against the
// transaction; capturing it here too would double-count.
func (t *Tasks) Failing(ctx context.Context, task *queue.Task) (any, error) {
	var args FailingArgs
	if err := task.UnmarshalArgs(&args); err != nil {
		return nil, fmt.Errorf("decode failing args: %w", err)
	}
	probability := 0.5
	if args.FailProbability != nil {
		probability = *args.FailProbability
	}

	_, span := apm.StartSpan(ctx, "risky_operation", "app")
	t.sleep(500 * time.Millisecond)

	if t.chance() < probability {
		span.AddLabels(apm.Bool("expected_failure", true))
		span.SetOutcome(apm.OutcomeFailure)
		span.End()
		return nil, errSimulatedFailure
	}

	span.AddLabels(apm.Bool("success", true))
	span.End()
	return map[string]any{"status": "success"}, nil
}
