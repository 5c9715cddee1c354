package license

import "errors"

// Administrative failures. Activation denials are reported through Result.Reason
// instead, since a denied activation is an expected outcome.
var (
	ErrNotFound            = errors.New("license not found")
	ErrDuplicateKey        = errors.New("license key already exists")
	ErrInvalidDuration     = errors.New("license duration out of range")
	ErrConflict            = errors.New("concurrent update conflict")
	ErrInvalidKey          = errors.New("license key is required")
	ErrInvalidKeyType      = errors.New("invalid key type")
	ErrInvalidSubscription = errors.New("invalid subscription type")
	ErrInvalidDevice       = errors.New("device id is required")
)

// IsValidationError reports whether err was caused by bad caller input.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidDuration) ||
		errors.Is(err, ErrInvalidKey) ||
		errors.Is(err, ErrInvalidKeyType) ||
		errors.Is(err, ErrInvalidSubscription) ||
		errors.Is(err, ErrInvalidDevice)
}

// IsRetryable reports whether the caller may safely retry the operation.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConflict)
}
