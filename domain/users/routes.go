package users

import (
	"github.com/labstack/echo/v4"
)

// RegisterRoutes registers the users routes
func RegisterRoutes(e *echo.Echo, h *Handler) {
	g := e.Group("/api/users")
	g.GET("", h.List)
	g.POST("", h.Create)
}
