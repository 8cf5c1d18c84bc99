package errors

import (
	"errors"
	"fmt"
)

// Common error types for the attribution service
var (
	// Authentication errors. All of them end the session's authorization and
	// require the user to go through the authorize flow again.
	ErrNoRefreshToken = errors.New("no refresh token")
	ErrExchangeFailed = errors.New("authorization code exchange failed")
	ErrRefreshFailed  = errors.New("refresh token exchange failed")

	// CRM errors
	ErrFetch                   = errors.New("crm fetch failed")
	ErrWrite                   = errors.New("crm write failed")
	ErrPropertyExists          = errors.New("crm property already exists")
	ErrClassificationAmbiguity = errors.New("contact timestamps unavailable or malformed")

	// Session errors
	ErrSessionNotFound = errors.New("session not found")
	ErrInvalidState    = errors.New("invalid oauth state")

	// General errors
	ErrMissingConfig = errors.New("missing required configuration")
	ErrNotFound      = errors.New("not found")
)

// IsAuthError reports whether err means the session has to re-authorize.
func IsAuthError(err error) bool {
	return errors.Is(err, ErrNoRefreshToken) ||
		errors.Is(err, ErrExchangeFailed) ||
		errors.Is(err, ErrRefreshFailed)
}

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

// Join returns an error that wraps the given errors
func Join(errs ...error) error {
	return errors.Join(errs...)
}
