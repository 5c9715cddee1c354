package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/render"

	apierrors "licensehub/internal/errors"
	"licensehub/internal/middleware"
	"licensehub/internal/services"
)

// Authenticator exchanges the admin password for a token.
type Authenticator interface {
	Login(ctx context.Context, password string) (services.TokenResponse, error)
}

// AuthHandler serves POST /api/admin/token
type AuthHandler struct {
	auth      Authenticator
	validator *middleware.Validator
	errors    *apierrors.ErrorHandler
	logger    *slog.Logger
}

func NewAuthHandler(auth Authenticator, validator *middleware.Validator, errorHandler *apierrors.ErrorHandler, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		auth:      auth,
		validator: validator,
		errors:    errorHandler,
		logger:    logger.With(slog.String("handler", "auth")),
	}
}

// IssueToken handles POST /api/admin/token
func (h *AuthHandler) IssueToken(w http.ResponseWriter, r *http.Request) {
	var req services.TokenRequest
	if err := h.validator.DecodeJSON(w, r, &req); err != nil {
		h.errors.HandleError(w, r, err)
		return
	}

	resp, err := h.auth.Login(r.Context(), req.Password)
	switch {
	case errors.Is(err, services.ErrInvalidCredentials):
		h.errors.HandleError(w, r, apierrors.Unauthorized("Invalid credentials"))
		return
	case errors.Is(err, services.ErrAuthDisabled):
		h.errors.HandleError(w, r, apierrors.New(http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE",
			"Admin login is not configured"))
		return
	case err != nil:
		h.errors.HandleError(w, r, err)
		return
	}

	w.Header().Set("Cache-Control", "no-store")
	render.JSON(w, r, resp)
}
