package processing

import (
	"github.com/labstack/echo/v4"
)

// RegisterRoutes registers the processing demo routes
func RegisterRoutes(e *echo.Echo, h *Handler) {
	e.GET("/api/processing", h.Process)
	e.GET("/api/slow-query", h.SlowQuery)
	e.GET("/api/error", h.Error)
	e.GET("/api/streaming", h.Streaming)
}
