package apmecho_test

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pulsemetric/pulse/pkg/apm"
	"github.com/pulsemetric/pulse/pkg/apm/apmecho"
	"github.com/pulsemetric/pulse/pkg/apm/apmtest"
)

func newTestServer(t *testing.T) (*echo.Echo, *apm.Tracer, *apmtest.RecorderExporter) {
	t.Helper()
	tracer, recorder := apmtest.NewRecorderTracer(t)

	e := echo.New()
	e.Use(middleware.Recover())
	e.Use(apmecho.Middleware(tracer, apmecho.WithSkipper(func(c echo.Context) bool {
		return c.Request().URL.Path == "/health"
	})))

	e.GET("/ok", func(c echo.Context) error {
		_, span := apm.StartSpan(c.Request().Context(), "handler_work", "app")
		span.End()
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	e.GET("/users/:id", func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})
	e.GET("/fail", func(c echo.Context) error {
		return errors.New("handler blew up")
	})
	e.GET("/teapot", func(c echo.Context) error {
		return echo.NewHTTPError(http.StatusTeapot, "short and stout")
	})
	e.GET("/panic", func(c echo.Context) error {
		panic("handler panicked")
	})
	e.GET("/health", func(c echo.Context) error {
		return c.String(http.StatusOK, "OK")
	})

	return e, tracer, recorder
}

func TestMiddlewareTracesRequest(t *testing.T) {
	e, tracer, recorder := newTestServer(t)

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ok", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	apmtest.Flush(t, tracer)

	tx := recorder.TransactionByName("GET /ok")
	require.NotNil(t, tx)
	assert.Equal(t, "request", tx.Type)
	assert.Equal(t, "success", tx.Outcome)
	assert.Equal(t, "HTTP 2xx", tx.Result)
	assert.Equal(t, int64(http.StatusOK), tx.Labels["http.status_code"].IntValue())
	require.Len(t, tx.Spans, 1)
	assert.Equal(t, "handler_work", tx.Spans[0].Name)
}

func TestMiddlewareUsesRouteForName(t *testing.T) {
	e, tracer, recorder := newTestServer(t)

	e.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/users/17", nil))
	e.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/users/42", nil))
	apmtest.Flush(t, tracer)

	var matched int
	for _, tx := range recorder.Transactions() {
		if tx.Name == "GET /users/:id" {
			matched++
		}
	}
	assert.Equal(t, 2, matched, "requests to one route share a transaction name")
}

func TestMiddlewareCapturesHandlerError(t *testing.T) {
	e, tracer, recorder := newTestServer(t)

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/fail", nil))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	apmtest.Flush(t, tracer)

	tx := recorder.TransactionByName("GET /fail")
	require.NotNil(t, tx)
	assert.Equal(t, "failure", tx.Outcome)
	assert.Equal(t, "HTTP 5xx", tx.Result)
	require.Len(t, tx.Errors, 1)
	assert.Equal(t, "handler blew up", tx.Errors[0].Message)
}

func TestMiddlewareClientErrorIsNotFailure(t *testing.T) {
	e, tracer, recorder := newTestServer(t)

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/teapot", nil))
	require.Equal(t, http.StatusTeapot, rec.Code)
	apmtest.Flush(t, tracer)

	tx := recorder.TransactionByName("GET /teapot")
	require.NotNil(t, tx)
	assert.Equal(t, "success", tx.Outcome, "4xx is the client's fault, not ours")
	assert.Equal(t, "HTTP 4xx", tx.Result)
}

func TestMiddlewareEndsTransactionOnceOnPanic(t *testing.T) {
	e, tracer, recorder := newTestServer(t)

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/panic", nil))
	require.Equal(t, http.StatusInternalServerError, rec.Code, "echo's recover turns the re-panic into a 500")
	apmtest.Flush(t, tracer)

	var matches []string
	for _, tx := range recorder.Transactions() {
		matches = append(matches, tx.Name)
	}
	require.Len(t, matches, 1, "exactly one record despite the panic")

	tx := recorder.Transactions()[0]
	assert.Equal(t, "failure", tx.Outcome)
	require.Len(t, tx.Errors, 1)
	assert.Contains(t, tx.Errors[0].Message, "handler panicked")
}

func TestMiddlewareSkipsHealthRoutes(t *testing.T) {
	e, tracer, recorder := newTestServer(t)

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	apmtest.Flush(t, tracer)

	assert.Empty(t, recorder.Transactions())
}

func TestMiddlewareContinuesInboundTrace(t *testing.T) {
	e, tracer, recorder := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/ok", nil)
	req.Header.Set("Traceparent", "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01")
	e.ServeHTTP(httptest.NewRecorder(), req)
	apmtest.Flush(t, tracer)

	tx := recorder.TransactionByName("GET /ok")
	require.NotNil(t, tx)
	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", tx.TraceID)
	assert.Equal(t, "00f067aa0ba902b7", tx.ParentID)
}
