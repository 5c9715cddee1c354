package middleware

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"

	apierrors "licensehub/internal/errors"
	"licensehub/internal/license"
)

const defaultMaxBodySize = 1 << 20

// Validator decodes JSON request bodies and validates them with struct tags
type Validator struct {
	validate    *validator.Validate
	maxBodySize int64
}

// NewValidator registers the license tags: keytype and subscription
func NewValidator() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())

	_ = v.RegisterValidation("keytype", func(fl validator.FieldLevel) bool {
		_, err := license.ParseKeyType(fl.Field().String())
		return err == nil
	})
	_ = v.RegisterValidation("subscription", func(fl validator.FieldLevel) bool {
		_, err := license.ParseSubscriptionType(fl.Field().String())
		return err == nil
	})

	// Use JSON tag names in error messages
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	return &Validator{validate: v, maxBodySize: defaultMaxBodySize}
}

// DecodeJSON reads r's body into dst and validates it. Failures are returned
// as *apierrors.APIError ready for the error handler.
func (v *Validator) DecodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	body := http.MaxBytesReader(w, r.Body, v.maxBodySize)
	if err := render.DecodeJSON(body, dst); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			return apierrors.NewWithDetails(http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE",
				"Request body exceeds maximum allowed size", map[string]int64{"max_size": v.maxBodySize})
		case errors.Is(err, io.EOF):
			return apierrors.New(http.StatusBadRequest, "INVALID_REQUEST", "Request body is required")
		default:
			return apierrors.InvalidRequestWithError(err)
		}
	}
	return v.Struct(dst)
}

// Struct validates s and converts failures to a validation APIError
func (v *Validator) Struct(s interface{}) error {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return apierrors.InvalidRequestWithError(err)
	}
	out := make([]apierrors.ValidationError, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		out = append(out, apierrors.ValidationError{
			Field:   fe.Field(),
			Message: formatValidationError(fe),
		})
	}
	return apierrors.ErrValidation(out...)
}

// formatValidationError formats validation error messages
func formatValidationError(err validator.FieldError) string {
	field := err.Field()
	param := err.Param()

	switch err.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "min":
		return fmt.Sprintf("%s must be at least %s", field, param)
	case "max":
		return fmt.Sprintf("%s must be at most %s", field, param)
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, strings.ReplaceAll(param, " ", ", "))
	case "gte":
		return fmt.Sprintf("%s must be greater than or equal to %s", field, param)
	case "lte":
		return fmt.Sprintf("%s must be less than or equal to %s", field, param)
	case "keytype":
		return fmt.Sprintf("%s must be restricted or unrestricted", field)
	case "subscription":
		return fmt.Sprintf("%s must be a known subscription type", field)
	default:
		return fmt.Sprintf("%s failed %s validation", field, err.Tag())
	}
}
