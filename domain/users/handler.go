package users

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/pulsemetric/pulse/pkg/apm"
	"github.com/pulsemetric/pulse/pkg/apperror"
)

// Handler handles HTTP requests for the demo user store.
type Handler struct {
	store *Store
}

// NewHandler creates a new users handler
func NewHandler(store *Store) *Handler {
	return &Handler{store: store}
}

// List returns all users.
// GET /api/users
func (h *Handler) List(c echo.Context) error {
	ctx := c.Request().Context()

	ctx, span := apm.StartSpan(ctx, "fetch_users", "db.memory")
	defer span.End()

	list := h.store.List()
	apm.AddLabels(ctx, apm.Int("user_count", len(list)))

	return c.JSON(http.StatusOK, list)
}

// Create adds a new user.
// POST /api/users
func (h *Handler) Create(c echo.Context) error {
	var req CreateUserRequest
	if err := c.Bind(&req); err != nil {
		return apperror.ErrBadRequest.WithInternal(err)
	}
	if err := req.Validate(); err != nil {
		return err
	}

	ctx := c.Request().Context()

	ctx, span := apm.StartSpan(ctx, "create_user", "db.memory")
	defer span.End()

	user := h.store.Create(req.Name, req.Email)
	apm.AddLabels(ctx,
		apm.Int("user_id", user.ID),
		apm.String("operation", "create"),
	)

	return c.JSON(http.StatusCreated, user)
}
