package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/pulsemetric/pulse/domain/tasks"
	"github.com/pulsemetric/pulse/internal/queue"
	"github.com/pulsemetric/pulse/pkg/apm"
)

const rule = "============================================================"

// demoTask pairs a queue task with the arguments the demo uses for it.
type demoTask struct {
	title string
	name  string
	args  any
}

func demoSet() []demoTask {
	half := 0.5
	return []demoTask{
		{"Send Email", tasks.TaskSendEmail, tasks.SendEmailArgs{
			Recipient: "user@example.com",
			Subject:   "APM Test Email",
			Body:      "This is a test email for APM monitoring",
		}},
		{"Process Image", tasks.TaskProcessImage, tasks.ProcessImageArgs{
			ImageURL:        "https://example.com/image.jpg",
			Transformations: []string{"resize", "crop", "filter", "compress"},
		}},
		{"Generate Report", tasks.TaskGenerateReport, tasks.GenerateReportArgs{
			ReportType: "monthly_sales",
			DateRange:  map[string]string{"start": "2024-01-01", "end": "2024-01-31"},
		}},
		{"Data Sync", tasks.TaskDataSync, tasks.DataSyncArgs{
			Source:      "postgres://source_db",
			Destination: "postgres://dest_db",
			BatchSize:   100,
		}},
		{"Complex Workflow", tasks.TaskComplexWorkflow, tasks.ComplexWorkflowArgs{
			WorkflowID: fmt.Sprintf("workflow_%d", time.Now().Unix()),
		}},
		{"Failing Task", tasks.TaskFailing, tasks.FailingArgs{
			FailProbability: &half,
		}},
	}
}

// specificTask returns the smaller argument set used when running a
// single task by name.
func specificTask(name string) (demoTask, bool) {
	half := 0.5
	switch name {
	case "email":
		return demoTask{"Send Email", tasks.TaskSendEmail, tasks.SendEmailArgs{
			Recipient: "test@example.com", Subject: "Test", Body: "Body",
		}}, true
	case "image":
		return demoTask{"Process Image", tasks.TaskProcessImage, tasks.ProcessImageArgs{
			ImageURL: "https://example.com/img.jpg", Transformations: []string{"resize"},
		}}, true
	case "report":
		return demoTask{"Generate Report", tasks.TaskGenerateReport, tasks.GenerateReportArgs{
			ReportType: "sales", DateRange: map[string]string{"start": "2024-01-01", "end": "2024-01-31"},
		}}, true
	case "sync":
		return demoTask{"Data Sync", tasks.TaskDataSync, tasks.DataSyncArgs{
			Source: "source", Destination: "dest", BatchSize: 50,
		}}, true
	case "workflow":
		return demoTask{"Complex Workflow", tasks.TaskComplexWorkflow, tasks.ComplexWorkflowArgs{
			WorkflowID: fmt.Sprintf("wf_%d", time.Now().Unix()),
		}}, true
	case "fail":
		return demoTask{"Failing Task", tasks.TaskFailing, tasks.FailingArgs{
			FailProbability: &half,
		}}, true
	}
	return demoTask{}, false
}

type queuedTask struct {
	title string
	id    string
}

// runAll queues the full demo set inside one client transaction, then
// waits for every result so the run reads like a checklist.
func (r *runner) runAll(ctx context.Context) error {
	fmt.Println("\n" + rule)
	fmt.Println("Pulse Demo - Task Runner")
	fmt.Println(rule)
	fmt.Println()

	tx := r.tracer.StartTransaction("run_all_tasks", "cli")
	txCtx := apm.ContextWithTransaction(ctx, tx)

	set := demoSet()
	queued := make([]queuedTask, 0, len(set))
	for i, dt := range set {
		fmt.Printf("%d. Queuing %s task...\n", i+1, dt.title)
		t, err := r.queue.Enqueue(txCtx, dt.name, dt.args)
		if err != nil {
			tx.SetOutcome(apm.OutcomeFailure)
			tx.End()
			return fmt.Errorf("enqueue %s: %w", dt.name, err)
		}
		fmt.Printf("   Task ID: %s\n\n", t.ID)
		queued = append(queued, queuedTask{title: dt.title, id: t.ID})
	}
	tx.End()

	fmt.Println(rule)
	fmt.Println("All tasks queued!")
	fmt.Println(rule)
	fmt.Println()

	if noWait {
		return nil
	}

	fmt.Println("Waiting for tasks to complete...")
	fmt.Println()
	for _, qt := range queued {
		fmt.Printf("Waiting for %q...\n", qt.title)
		r.printResult(ctx, qt)
	}

	fmt.Println("\n" + rule)
	fmt.Println("Task execution completed!")
	fmt.Println("Check your Pulse dashboard for the traces")
	fmt.Println(rule)
	return nil
}

// runOne queues a single task by short name and waits for its result.
func (r *runner) runOne(ctx context.Context, name string) error {
	dt, ok := specificTask(name)
	if !ok {
		return fmt.Errorf("unknown task %q (available: email, image, report, sync, workflow, fail)", name)
	}

	fmt.Printf("Queuing %s task...\n", name)

	tx := r.tracer.StartTransaction("run_task", "cli")
	txCtx := apm.ContextWithTransaction(ctx, tx)
	t, err := r.queue.Enqueue(txCtx, dt.name, dt.args)
	if err != nil {
		tx.SetOutcome(apm.OutcomeFailure)
		tx.End()
		return fmt.Errorf("enqueue %s: %w", dt.name, err)
	}
	tx.End()

	fmt.Printf("Task ID: %s\n", t.ID)
	if noWait {
		return nil
	}

	fmt.Println("Waiting for result...")
	r.printResult(ctx, queuedTask{title: dt.title, id: t.ID})
	return nil
}

func (r *runner) printResult(ctx context.Context, qt queuedTask) {
	res, err := r.queue.WaitResult(ctx, qt.id, waitTimeout)
	if err != nil {
		fmt.Printf("  ✗ %s failed: %v\n", qt.title, err)
		return
	}
	if res.Status == queue.StatusCompleted {
		fmt.Printf("  ✓ %s completed: %s\n", qt.title, compactJSON(res.Output))
		return
	}
	fmt.Printf("  ✗ %s failed: %s\n", qt.title, res.Error)
}

func compactJSON(raw []byte) string {
	s := strings.TrimSpace(string(raw))
	if s == "" {
		return "(no output)"
	}
	return s
}
