package errors

import (
	"errors"
	"fmt"
)

// Common error types for the forward-auth service
var (
	// Token errors. Any verification failure (bad signature, malformed
	// token, expiry) collapses into ErrInvalidOrExpiredToken so that
	// callers cannot branch on the cause.
	ErrInvalidOrExpiredToken = errors.New("invalid or expired token")

	// Provider errors
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrProviderUnavailable = errors.New("provider unavailable")
	ErrProviderNotFound    = errors.New("provider not found")

	// Whitelist errors. Verify succeeded but the identity is not permitted.
	ErrDomainNotAllowed = errors.New("unauthorized domain")
	ErrUserNotAllowed   = errors.New("unauthorized user")

	// Cookie sync errors
	ErrTamperedPayload = errors.New("invalid cookie sync token")

	// Session errors
	ErrSessionNotFound = errors.New("session not found")

	// General errors
	ErrNotFound = errors.New("not found")
	ErrInternal = errors.New("internal error")
)

// Wrapf wraps an error with context using fmt.Errorf
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
