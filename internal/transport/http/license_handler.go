package http

import (
	"bytes"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	apierrors "licensehub/internal/errors"
	"licensehub/internal/exporter"
	"licensehub/internal/middleware"
	"licensehub/internal/services"
)

// LicenseHandler handles the license administration and key check routes
type LicenseHandler struct {
	service   services.LicenseService
	validator *middleware.Validator
	errors    *apierrors.ErrorHandler
	logger    *slog.Logger
}

// NewLicenseHandler creates a new license handler
func NewLicenseHandler(service services.LicenseService, validator *middleware.Validator, errorHandler *apierrors.ErrorHandler, logger *slog.Logger) *LicenseHandler {
	return &LicenseHandler{
		service:   service,
		validator: validator,
		errors:    errorHandler,
		logger:    logger.With(slog.String("handler", "license")),
	}
}

// AdminRoutes mounts the token protected routes on r.
func (h *LicenseHandler) AdminRoutes(r chi.Router) {
	r.Get("/licenses", h.ListLicenses)
	r.Get("/licenses/export", h.Export)
	r.Post("/add_license", h.AddLicense)
	r.Post("/toggle_active/{id}", h.ToggleActive)
	r.Delete("/delete_license/{id}", h.DeleteLicense)
	r.Post("/reset_key", h.ResetKey)
}

// Home handles GET /
func (h *LicenseHandler) Home(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, services.MessageResponse{Message: "License Manager API"})
}

// ListLicenses handles GET /api/licenses
func (h *LicenseHandler) ListLicenses(w http.ResponseWriter, r *http.Request) {
	licenses, err := h.service.ListLicenses(r.Context())
	if err != nil {
		h.errors.HandleError(w, r, err)
		return
	}
	render.JSON(w, r, licenses)
}

// AddLicense handles POST /api/add_license
func (h *LicenseHandler) AddLicense(w http.ResponseWriter, r *http.Request) {
	var req services.AddLicenseRequest
	if err := h.validator.DecodeJSON(w, r, &req); err != nil {
		h.errors.HandleError(w, r, err)
		return
	}

	created, err := h.service.AddLicense(r.Context(), req)
	if err != nil {
		h.errors.HandleError(w, r, err)
		return
	}
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, created)
}

// ToggleActive handles POST /api/toggle_active/{id}
func (h *LicenseHandler) ToggleActive(w http.ResponseWriter, r *http.Request) {
	id, err := licenseID(r)
	if err != nil {
		h.errors.HandleError(w, r, err)
		return
	}
	toggled, err := h.service.ToggleActive(r.Context(), id)
	if err != nil {
		h.errors.HandleError(w, r, err)
		return
	}
	render.JSON(w, r, toggled)
}

// DeleteLicense handles DELETE /api/delete_license/{id}
func (h *LicenseHandler) DeleteLicense(w http.ResponseWriter, r *http.Request) {
	id, err := licenseID(r)
	if err != nil {
		h.errors.HandleError(w, r, err)
		return
	}
	if err := h.service.DeleteLicense(r.Context(), id); err != nil {
		h.errors.HandleError(w, r, err)
		return
	}
	render.JSON(w, r, services.MessageResponse{Message: "License deleted successfully"})
}

// ResetKey handles POST /api/reset_key
func (h *LicenseHandler) ResetKey(w http.ResponseWriter, r *http.Request) {
	var req services.ResetKeyRequest
	if err := h.validator.DecodeJSON(w, r, &req); err != nil {
		h.errors.HandleError(w, r, err)
		return
	}
	reset, err := h.service.ResetKey(r.Context(), req.Key)
	if err != nil {
		h.errors.HandleError(w, r, err)
		return
	}
	render.JSON(w, r, reset)
}

// CheckKeyDetails handles POST /api/check_key_details
func (h *LicenseHandler) CheckKeyDetails(w http.ResponseWriter, r *http.Request) {
	var req services.CheckKeyRequest
	if err := h.validator.DecodeJSON(w, r, &req); err != nil {
		h.errors.HandleError(w, r, err)
		return
	}
	resp, err := h.service.CheckKey(r.Context(), req)
	if err != nil {
		h.errors.HandleError(w, r, err)
		return
	}
	render.JSON(w, r, resp)
}

// Export handles GET /api/licenses/export?format=csv|xlsx. The file is
// built in memory so a failure can still be answered with a problem.
func (h *LicenseHandler) Export(w http.ResponseWriter, r *http.Request) {
	format, err := exporter.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		h.errors.HandleError(w, r, apierrors.NewWithDetails(http.StatusBadRequest, "INVALID_REQUEST",
			"Unsupported export format", map[string][]string{"supported": {"csv", "xlsx"}}))
		return
	}

	var buf bytes.Buffer
	if err := h.service.Export(r.Context(), &buf, format); err != nil {
		h.errors.HandleError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, format.Filename(timeNow())))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	if _, err := buf.WriteTo(w); err != nil {
		h.logger.WarnContext(r.Context(), "export download interrupted", slog.String("error", err.Error()))
	}
}

func licenseID(r *http.Request) (int64, error) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, apierrors.ErrValidation(apierrors.ValidationError{
			Field:   "id",
			Message: "id must be a positive integer",
		})
	}
	return id, nil
}
