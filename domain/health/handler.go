package health

import (
	"context"
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/fx"

	"github.com/pulsemetric/pulse/internal/config"
	"github.com/pulsemetric/pulse/internal/queue"
	"github.com/pulsemetric/pulse/internal/version"
	"github.com/pulsemetric/pulse/pkg/apm"
)

// Handler handles health check requests
type Handler struct {
	tracer  *apm.Tracer
	queue   *queue.Queue
	cfg     *config.Config
	startAt time.Time
}

// HandlerParams collects the handler dependencies. The queue is optional:
// the API server runs without one, the worker provides it.
type HandlerParams struct {
	fx.In

	Tracer *apm.Tracer
	Queue  *queue.Queue `optional:"true"`
	Cfg    *config.Config
}

// NewHandler creates a new health handler
func NewHandler(p HandlerParams) *Handler {
	return &Handler{
		tracer:  p.Tracer,
		queue:   p.Queue,
		cfg:     p.Cfg,
		startAt: time.Now(),
	}
}

// Root describes the service and lists the demo endpoints.
func (h *Handler) Root(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"service": "Pulse APM Demo API",
		"version": version.Version,
		"endpoints": []string{
			"/api/users",
			"/api/processing",
			"/api/slow-query",
			"/api/error",
			"/api/streaming",
			"/api/parallel-requests",
			"/api/analytics",
		},
	})
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string           `json:"status"`
	Timestamp string           `json:"timestamp"`
	Uptime    string           `json:"uptime"`
	Version   string           `json:"version"`
	Checks    map[string]Check `json:"checks"`
}

// Check represents an individual health check result
type Check struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// Health returns the overall service health. The agent check reports
// reporting counters; only a dead dependency makes the service unhealthy,
// a struggling exporter does not.
func (h *Handler) Health(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	checks := map[string]Check{
		"agent": h.agentCheck(),
	}

	overallStatus := "healthy"
	if h.queue != nil {
		queueCheck := Check{Status: "healthy"}
		if err := h.queue.Ping(ctx); err != nil {
			queueCheck = Check{Status: "unhealthy", Message: err.Error()}
			overallStatus = "unhealthy"
		}
		checks["queue"] = queueCheck
	}

	response := HealthResponse{
		Status:    overallStatus,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Uptime:    time.Since(h.startAt).String(),
		Version:   version.Version,
		Checks:    checks,
	}

	statusCode := http.StatusOK
	if overallStatus == "unhealthy" {
		statusCode = http.StatusServiceUnavailable
	}

	return c.JSON(statusCode, response)
}

func (h *Handler) agentCheck() Check {
	stats := h.tracer.Stats()
	status := "healthy"
	if stats.SendFailures > 0 {
		status = "degraded"
	}
	return Check{
		Status: status,
		Message: fmt.Sprintf("sent=%d dropped=%d send_failures=%d",
			stats.TransactionsSent, stats.RecordsDropped, stats.SendFailures),
	}
}

// Healthz returns a simple health check (for k8s liveness probe)
func (h *Handler) Healthz(c echo.Context) error {
	return c.String(http.StatusOK, "OK")
}

// Ready returns readiness status (for k8s readiness probe)
func (h *Handler) Ready(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	if h.queue != nil {
		if err := h.queue.Ping(ctx); err != nil {
			return c.JSON(http.StatusServiceUnavailable, map[string]any{
				"status":  "not_ready",
				"message": "Task queue connection failed",
			})
		}
	}

	return c.JSON(http.StatusOK, map[string]any{
		"status": "ready",
	})
}

// Debug returns debug information (only in development)
func (h *Handler) Debug(c echo.Context) error {
	if h.cfg.IsProduction() {
		return echo.NewHTTPError(http.StatusNotFound, "Not found")
	}

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	stats := h.tracer.Stats()

	return c.JSON(http.StatusOK, map[string]any{
		"environment": h.cfg.Environment,
		"debug":       h.cfg.Debug,
		"go_version":  runtime.Version(),
		"goroutines":  runtime.NumGoroutine(),
		"memory": map[string]any{
			"alloc_mb":       mem.Alloc / 1024 / 1024,
			"total_alloc_mb": mem.TotalAlloc / 1024 / 1024,
			"sys_mb":         mem.Sys / 1024 / 1024,
			"num_gc":         mem.NumGC,
		},
		"agent": map[string]any{
			"transactions_started": stats.TransactionsStarted,
			"transactions_ended":   stats.TransactionsEnded,
			"transactions_sent":    stats.TransactionsSent,
			"spans_started":        stats.SpansStarted,
			"spans_dropped":        stats.SpansDropped,
			"errors_captured":      stats.ErrorsCaptured,
			"records_dropped":      stats.RecordsDropped,
			"send_failures":        stats.SendFailures,
		},
	})
}
