// Package apmecho traces Echo requests with the Pulse agent.
//
// Each non-skipped request runs inside a transaction named after the method
// and route. Handler errors and panics are captured, flip the outcome to
// failure, and still travel on to Echo's own error handling.
package apmecho

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/pulsemetric/pulse/pkg/apm"
)

// Skipper decides whether a request bypasses tracing entirely.
type Skipper func(echo.Context) bool

// Option configures the middleware.
type Option func(*options)

type options struct {
	skipper Skipper
}

// WithSkipper installs a predicate for requests that should not be traced,
// typically health and readiness probes.
func WithSkipper(skipper Skipper) Option {
	return func(o *options) {
		o.skipper = skipper
	}
}

// Middleware returns an Echo middleware that traces every request through
// the given tracer. Inbound traceparent headers are honored, so callers that
// are themselves traced keep one distributed trace.
func Middleware(tracer *apm.Tracer, opts ...Option) echo.MiddlewareFunc {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if o.skipper != nil && o.skipper(c) {
				return next(c)
			}

			req := c.Request()

			var txOpts apm.TransactionOptions
			if tc, err := apm.ParseTraceparent(req.Header.Get("Traceparent")); err == nil {
				txOpts.TraceContext = tc
			}

			tx := tracer.StartTransactionOptions(requestName(req.Method, req.URL.Path), "request", txOpts)
			ctx := apm.ContextWithTransaction(req.Context(), tx)
			c.SetRequest(req.WithContext(ctx))

			defer func() {
				if r := recover(); r != nil {
					apm.CapturePanic(ctx, r)
					finish(c, tx, http.StatusInternalServerError)
					panic(r)
				}
			}()

			err := next(c)

			status := c.Response().Status
			if err != nil {
				apm.CaptureError(ctx, err)
				status = http.StatusInternalServerError
				var he *echo.HTTPError
				if errors.As(err, &he) {
					status = he.Code
				}
			}
			finish(c, tx, status)
			return err
		}
	}
}

func finish(c echo.Context, tx *apm.Transaction, status int) {
	// The route is resolved by now; prefer it over the raw path so all
	// requests to one endpoint share a transaction name.
	if route := c.Path(); route != "" && route != "/*" {
		tx.SetName(requestName(c.Request().Method, route))
	}
	tx.AddLabels(
		apm.String("http.method", c.Request().Method),
		apm.String("http.route", c.Path()),
		apm.Int("http.status_code", status),
		apm.String("client.ip", c.RealIP()),
	)
	tx.SetResult(fmt.Sprintf("HTTP %dxx", status/100))
	if status >= http.StatusInternalServerError {
		tx.SetOutcome(apm.OutcomeFailure)
	} else {
		tx.SetOutcome(apm.OutcomeSuccess)
	}
	tx.End()
}

func requestName(method, path string) string {
	return method + " " + path
}
