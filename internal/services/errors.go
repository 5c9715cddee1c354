package services

import "errors"

var (
	// ErrInvalidCredentials is returned for a wrong admin password.
	ErrInvalidCredentials = errors.New("invalid admin credentials")
	// ErrAuthDisabled is returned when no admin password hash is configured.
	ErrAuthDisabled = errors.New("admin login is not configured")
)
