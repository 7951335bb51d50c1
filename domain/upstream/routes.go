package upstream

import (
	"github.com/labstack/echo/v4"
)

// RegisterRoutes registers the parallel request demo route
func RegisterRoutes(e *echo.Echo, h *Handler) {
	e.GET("/api/parallel-requests", h.ParallelRequests)
}
