package upstream

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pulsemetric/pulse/internal/config"
	"github.com/pulsemetric/pulse/pkg/apm"
	"github.com/pulsemetric/pulse/pkg/apm/apmecho"
	"github.com/pulsemetric/pulse/pkg/apm/apmtest"
)

func newUpstreamServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/golang/go", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"stargazers_count": 120000, "forks_count": 17000}`)
	})
	mux.HandleFunc("/repos/broken/repo", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestHandler(t *testing.T, baseURL string, repos []string) (*echo.Echo, *apm.Tracer, *apmtest.RecorderExporter) {
	t.Helper()

	tracer, recorder := apmtest.NewRecorderTracer(t)
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	cfg := &config.Config{
		Upstream: config.UpstreamConfig{
			BaseURL: baseURL,
			Repos:   repos,
			Timeout: 5 * time.Second,
		},
	}
	h := NewHandler(cfg, log)

	e := echo.New()
	e.Use(apmecho.Middleware(tracer))
	RegisterRoutes(e, h)

	return e, tracer, recorder
}

func TestParallelRequestsReturnsPartialResults(t *testing.T) {
	srv := newUpstreamServer(t)
	e, tracer, recorder := newTestHandler(t, srv.URL, []string{"golang/go", "broken/repo"})

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/parallel-requests", nil))
	require.Equal(t, http.StatusOK, rec.Code, "one bad repo must not fail the request")
	apmtest.Flush(t, tracer)

	var body struct {
		Results    []RepoStats `json:"results"`
		TotalRepos int         `json:"total_repos"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, 2, body.TotalRepos)
	assert.Equal(t, RepoStats{Repo: "golang/go", Stars: 120000, Forks: 17000}, body.Results[0])
	assert.Equal(t, "broken/repo", body.Results[1].Repo)
	assert.NotEmpty(t, body.Results[1].Error)

	tx := recorder.TransactionByName("GET /api/parallel-requests")
	require.NotNil(t, tx)
	assert.Equal(t, "success", tx.Outcome)
	require.Len(t, tx.Errors, 1, "the failed fetch is captured, not swallowed")

	require.Len(t, tx.Spans, 1)
	parent := tx.Spans[0]
	assert.Equal(t, "parallel_fetch", parent.Name)
	assert.Equal(t, "external.http", parent.Category)
	assert.Equal(t, int64(2), parent.Labels["repos_fetched"].IntValue())

	// Concurrent fetches land in open order, so match children by name.
	require.Len(t, parent.Children, 2)
	byName := map[string]*apm.SpanRecord{}
	for _, child := range parent.Children {
		byName[child.Name] = child
	}

	good := byName["fetch_golang/go"]
	require.NotNil(t, good)
	assert.Equal(t, "success", good.Outcome)
	assert.Equal(t, int64(http.StatusOK), good.Labels["status_code"].IntValue())
	require.Len(t, good.Children, 1, "the traced client adds the wire span")

	bad := byName["fetch_broken/repo"]
	require.NotNil(t, bad)
	assert.Equal(t, "failure", bad.Outcome)
	assert.Equal(t, int64(http.StatusInternalServerError), bad.Labels["status_code"].IntValue())
}

func TestParallelRequestsPropagatesTraceparent(t *testing.T) {
	var header string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header = r.Header.Get("Traceparent")
		io.WriteString(w, `{"stargazers_count": 1, "forks_count": 1}`)
	}))
	t.Cleanup(srv.Close)

	e, tracer, recorder := newTestHandler(t, srv.URL, []string{"golang/go"})

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/parallel-requests", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	apmtest.Flush(t, tracer)

	tx := recorder.TransactionByName("GET /api/parallel-requests")
	require.NotNil(t, tx)

	tc, err := apm.ParseTraceparent(header)
	require.NoError(t, err, "outbound request must carry a valid traceparent")
	assert.Equal(t, tx.TraceID, tc.TraceID)
}
