package errors

import (
	"context"
	"errors"
	"net/http"

	"licensehub/internal/license"
)

// MapLicenseError maps engine and store errors to problem details. The
// second return is false when err is not a recognized domain error.
func MapLicenseError(err error, instance string) (*ProblemDetails, bool) {
	switch {
	case errors.Is(err, license.ErrNotFound):
		return NewProblemDetails(
			http.StatusNotFound,
			TypeLicenseNotFound,
			"License Not Found",
			"No license exists with the given identifier.",
			instance,
		).WithExtension("error_code", "LICENSE_NOT_FOUND"), true

	case errors.Is(err, license.ErrDuplicateKey):
		return NewProblemDetails(
			http.StatusConflict,
			TypeLicenseDuplicate,
			"Duplicate License Key",
			"A license with this key already exists.",
			instance,
		).WithExtension("error_code", "DUPLICATE_KEY"), true

	case errors.Is(err, license.ErrConflict):
		return NewProblemDetails(
			http.StatusConflict,
			TypeLicenseConflict,
			"Concurrent Update",
			"The license was modified concurrently. Retry the request.",
			instance,
		).WithExtension("error_code", "UPDATE_CONFLICT").
			WithExtension("retryable", license.IsRetryable(err)), true

	case license.IsValidationError(err):
		return NewProblemDetails(
			http.StatusBadRequest,
			TypeLicenseInvalid,
			"Invalid License Request",
			validationDetail(err),
			instance,
		).WithExtension("error_code", "INVALID_LICENSE_REQUEST"), true

	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return NewProblemDetails(
			http.StatusGatewayTimeout,
			TypeTimeout,
			"Request Timeout",
			"The request took too long to process and was cancelled.",
			instance,
		), true
	}
	return nil, false
}

// validationDetail reports the sentinel text without the wrapping context
func validationDetail(err error) string {
	for _, sentinel := range []error{
		license.ErrInvalidDuration,
		license.ErrInvalidKey,
		license.ErrInvalidKeyType,
		license.ErrInvalidSubscription,
		license.ErrInvalidDevice,
	} {
		if errors.Is(err, sentinel) {
			return sentinel.Error()
		}
	}
	return err.Error()
}
