// Package upstream fans requests out to an external API so traces carry
// concurrent external.http span trees with traceparent propagation on the
// outbound legs.
package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
	"golang.org/x/sync/errgroup"

	"github.com/pulsemetric/pulse/internal/config"
	"github.com/pulsemetric/pulse/pkg/apm"
	"github.com/pulsemetric/pulse/pkg/apm/apmhttp"
	"github.com/pulsemetric/pulse/pkg/logger"
)

// RepoStats is one repository's fetch outcome. A failed fetch carries Error
// instead of counts; it does not fail the request.
type RepoStats struct {
	Repo  string `json:"repo"`
	Stars int    `json:"stars,omitempty"`
	Forks int    `json:"forks,omitempty"`
	Error string `json:"error,omitempty"`
}

// Handler handles the parallel outbound request demo.
type Handler struct {
	client  *http.Client
	baseURL string
	repos   []string
	log     *slog.Logger
}

// NewHandler creates an upstream handler with a traced HTTP client
func NewHandler(cfg *config.Config, log *slog.Logger) *Handler {
	return &Handler{
		client:  apmhttp.WrapClient(&http.Client{Timeout: cfg.Upstream.Timeout}),
		baseURL: cfg.Upstream.BaseURL,
		repos:   cfg.Upstream.Repos,
		log:     log.With(logger.Scope("upstream")),
	}
}

// ParallelRequests fetches stats for every configured repository at once.
// Each fetch gets its own span under a shared parent; failures are captured
// per repository and reported in the body rather than failing the request.
// GET /api/parallel-requests
func (h *Handler) ParallelRequests(c echo.Context) error {
	ctx, parent := apm.StartSpan(c.Request().Context(), "parallel_fetch", "external.http")
	defer parent.End()

	results := make([]RepoStats, len(h.repos))
	g, gctx := errgroup.WithContext(ctx)
	for i, repo := range h.repos {
		g.Go(func() error {
			results[i] = h.fetchRepo(gctx, repo)
			return nil
		})
	}
	// Fetch failures land in the per-repo result, so Wait only joins.
	_ = g.Wait()

	apm.AddLabels(ctx, apm.Int("repos_fetched", len(results)))

	return c.JSON(http.StatusOK, map[string]any{
		"results":     results,
		"total_repos": len(results),
	})
}

func (h *Handler) fetchRepo(ctx context.Context, repo string) RepoStats {
	ctx, span := apm.StartSpan(ctx, "fetch_"+repo, "external.http")
	defer span.End()

	stats, err := h.getStats(ctx, repo)
	if err != nil {
		span.SetOutcome(apm.OutcomeFailure)
		apm.CaptureError(ctx, err)
		h.log.Warn("repo fetch failed", slog.String("repo", repo), logger.Error(err))
		return RepoStats{Repo: repo, Error: err.Error()}
	}
	return stats
}

func (h *Handler) getStats(ctx context.Context, repo string) (RepoStats, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.baseURL+"/repos/"+repo, nil)
	if err != nil {
		return RepoStats{}, fmt.Errorf("build request: %w", err)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return RepoStats{}, fmt.Errorf("fetch %s: %w", repo, err)
	}
	defer resp.Body.Close()

	apm.AddLabels(ctx,
		apm.String("repo", repo),
		apm.Int("status_code", resp.StatusCode),
	)

	if resp.StatusCode != http.StatusOK {
		return RepoStats{}, fmt.Errorf("fetch %s: unexpected status %d", repo, resp.StatusCode)
	}

	var payload struct {
		Stars int `json:"stargazers_count"`
		Forks int `json:"forks_count"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return RepoStats{}, fmt.Errorf("decode %s: %w", repo, err)
	}

	return RepoStats{Repo: repo, Stars: payload.Stars, Forks: payload.Forks}, nil
}
