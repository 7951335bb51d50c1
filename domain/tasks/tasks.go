// Package tasks implements the demo task handlers the worker executes.
//
// Each handler simulates a realistic background job shape: timed steps,
// nested spans, labels, and the occasional expected failure. Handlers run
// inside the transaction the worker pool opens for the task, so they only
// add spans and never end the transaction themselves.
package tasks

import (
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/pulsemetric/pulse/internal/worker"
	"github.com/pulsemetric/pulse/pkg/logger"
)

// Task names as they travel through the queue.
const (
	TaskSendEmail       = "email.send"
	TaskProcessImage    = "image.process"
	TaskGenerateReport  = "report.generate"
	TaskDataSync        = "data.sync"
	TaskComplexWorkflow = "workflow.complex"
	TaskFailing         = "task.failing"
)

// Tasks bundles the demo handlers and their shared dependencies.
type Tasks struct {
	sender Sender
	log    *slog.Logger

	// sleep and chance stand in for simulated work and simulated luck;
	// tests replace them.
	sleep  func(time.Duration)
	chance func() float64
}

// NewTasks creates the demo task set
func NewTasks(sender Sender, log *slog.Logger) *Tasks {
	return &Tasks{
		sender: sender,
		log:    log.With(logger.Scope("tasks")),
		sleep:  time.Sleep,
		chance: rand.Float64,
	}
}

// Register binds every demo task to the registry.
func (t *Tasks) Register(r *worker.Registry) {
	r.Register(TaskSendEmail, t.SendEmail)
	r.Register(TaskProcessImage, t.ProcessImage)
	r.Register(TaskGenerateReport, t.GenerateReport)
	r.Register(TaskDataSync, t.DataSync)
	r.Register(TaskComplexWorkflow, t.ComplexWorkflow)
	r.Register(TaskFailing, t.Failing)
}
