package analytics

import (
	"github.com/labstack/echo/v4"
)

// RegisterRoutes registers the analytics demo route
func RegisterRoutes(e *echo.Echo, h *Handler) {
	e.GET("/api/analytics", h.Analytics)
}
