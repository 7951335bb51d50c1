package users

import (
	"net/mail"
	"strings"
	"time"

	"github.com/pulsemetric/pulse/pkg/apperror"
)

// User is a demo user kept in the in-memory store.
type User struct {
	ID        int       `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

// CreateUserRequest is the POST /api/users payload.
type CreateUserRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Validate checks the request fields, returning a validation error that the
// HTTP error handler renders as a 422.
func (r *CreateUserRequest) Validate() error {
	if strings.TrimSpace(r.Name) == "" {
		return apperror.NewValidation("name is required")
	}
	if _, err := mail.ParseAddress(r.Email); err != nil {
		return apperror.NewValidation("email is not a valid address")
	}
	return nil
}
