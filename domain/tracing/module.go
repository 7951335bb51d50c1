package tracing

import (
	"context"
	"log/slog"

	"github.com/labstack/echo/v4"
	"go.uber.org/fx"

	"github.com/pulsemetric/pulse/internal/config"
	"github.com/pulsemetric/pulse/internal/version"
	"github.com/pulsemetric/pulse/pkg/apm"
	"github.com/pulsemetric/pulse/pkg/apm/apmecho"
)

// ServiceName identifies the binary in exported trace metadata.
// Each cmd supplies its own via fx.Supply.
type ServiceName string

// Module wires the Pulse agent into the fx app.
// APMConfig is read from config.Config.APM.
// It provides a *apm.Tracer and registers the Echo request middleware.
var Module = fx.Module("tracing",
	fx.Provide(NewTracer),
	fx.Invoke(RegisterTracerLifecycle),
	fx.Invoke(RegisterEchoMiddleware),
)

// WorkerModule is Module without the Echo middleware, for binaries
// that have no HTTP surface.
var WorkerModule = fx.Module("tracing",
	fx.Provide(NewTracer),
	fx.Invoke(RegisterTracerLifecycle),
)

// NewTracer creates the tracer for this process.
// Without a collector URL it still traces, exporting to the log.
func NewTracer(name ServiceName, cfg *config.Config, log *slog.Logger) (*apm.Tracer, error) {
	ac := cfg.APM

	if ac.Enabled() {
		log.Info("trace export enabled",
			slog.String("server_url", ac.ServerURL),
			slog.String("service", string(name)),
			slog.Float64("sample_rate", ac.SampleRate),
		)
	} else {
		log.Info("trace export disabled (PULSE_SERVER_URL not set), tracing to log")
	}

	rate := ac.SampleRate
	return apm.NewTracer(apm.TracerOptions{
		ServiceName:    string(name),
		ServiceVersion: version.Version,
		Environment:    cfg.Environment,
		ServerURL:      ac.ServerURL,
		SecretToken:    ac.SecretToken,
		SampleRate:     &rate,
		FlushInterval:  ac.FlushInterval,
		MaxQueueSize:   ac.MaxQueueSize,
		MaxBatchSize:   ac.MaxBatchSize,
		Logger:         log,
	})
}

// RegisterTracerLifecycle flushes and closes the tracer on app stop.
func RegisterTracerLifecycle(lc fx.Lifecycle, tracer *apm.Tracer, log *slog.Logger) {
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			log.Info("closing tracer")
			return tracer.Close(ctx)
		},
	})
}

// RegisterEchoMiddleware adds request tracing to the Echo instance.
// Skips health-check routes to avoid trace noise.
func RegisterEchoMiddleware(e *echo.Echo, tracer *apm.Tracer) {
	e.Use(apmecho.Middleware(tracer,
		apmecho.WithSkipper(func(c echo.Context) bool {
			p := c.Request().URL.Path
			return p == "/health" || p == "/healthz" || p == "/ready"
		}),
	))
}
