// Package errors provides the error taxonomy for the deskauth sign-in flow.
//
// Errors are classified so callers can decide between prompting a retry,
// showing a support message, or falling back to an alternate sign-in method.
package errors

import (
	"errors"
	"fmt"
)

// Error types
const (
	// ErrConfiguration is returned when client credentials or endpoints are
	// missing or malformed. Fatal; the user should use another sign-in
	// method or contact support.
	ErrConfiguration = "configuration"

	// ErrLaunch is returned when the browser could not be opened by any
	// strategy. Fatal for this attempt; the user may retry.
	ErrLaunch = "launch"

	// ErrSecurity is returned on a CSRF state mismatch or an unsafe URI.
	// Always fatal and never retried silently.
	ErrSecurity = "security"

	// ErrAuthorizationDenied is returned when the provider reported an
	// explicit error, e.g. the user cancelled the consent screen.
	ErrAuthorizationDenied = "authorization_denied"

	// ErrMalformedRedirect is returned when the captured redirect carried
	// neither an authorization code nor a provider error.
	ErrMalformedRedirect = "malformed_redirect"

	// ErrNetwork is returned on transport failures during token exchange
	// or backend calls.
	ErrNetwork = "network"

	// ErrTimeout is returned when a bounded network call or the redirect
	// wait exceeded its deadline.
	ErrTimeout = "timeout"

	// ErrTokenExchange is returned when the provider or backend rejected
	// the code exchange (expired code, invalid client, ...).
	ErrTokenExchange = "token_exchange"
)

// Error represents a classified error in the sign-in flow
type Error struct {
	// Type is the error type
	Type string

	// Message is the error message
	Message string

	// Cause is the underlying error
	Cause error
}

// Error returns the error message
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %s", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new error
func NewError(errorType, message string, cause error) *Error {
	return &Error{
		Type:    errorType,
		Message: message,
		Cause:   cause,
	}
}

// NewConfigurationError creates a new configuration error
func NewConfigurationError(message string, cause error) *Error {
	return NewError(ErrConfiguration, message, cause)
}

// NewLaunchError creates a new browser launch error
func NewLaunchError(message string, cause error) *Error {
	return NewError(ErrLaunch, message, cause)
}

// NewSecurityError creates a new security error
func NewSecurityError(message string, cause error) *Error {
	return NewError(ErrSecurity, message, cause)
}

// NewAuthorizationDeniedError creates a new authorization denied error
func NewAuthorizationDeniedError(message string, cause error) *Error {
	return NewError(ErrAuthorizationDenied, message, cause)
}

// NewMalformedRedirectError creates a new malformed redirect error
func NewMalformedRedirectError(message string, cause error) *Error {
	return NewError(ErrMalformedRedirect, message, cause)
}

// NewNetworkError creates a new network error
func NewNetworkError(message string, cause error) *Error {
	return NewError(ErrNetwork, message, cause)
}

// NewTimeoutError creates a new timeout error
func NewTimeoutError(message string, cause error) *Error {
	return NewError(ErrTimeout, message, cause)
}

// NewTokenExchangeError creates a new token exchange error
func NewTokenExchangeError(message string, cause error) *Error {
	return NewError(ErrTokenExchange, message, cause)
}

// is reports whether err is (or wraps) an *Error of the given type.
func is(err error, errorType string) bool {
	var e *Error
	return errors.As(err, &e) && e.Type == errorType
}

// IsConfiguration checks if the error is a configuration error
func IsConfiguration(err error) bool {
	return is(err, ErrConfiguration)
}

// IsLaunch checks if the error is a browser launch error
func IsLaunch(err error) bool {
	return is(err, ErrLaunch)
}

// IsSecurity checks if the error is a security error
func IsSecurity(err error) bool {
	return is(err, ErrSecurity)
}

// IsAuthorizationDenied checks if the error is an authorization denied error
func IsAuthorizationDenied(err error) bool {
	return is(err, ErrAuthorizationDenied)
}

// IsMalformedRedirect checks if the error is a malformed redirect error
func IsMalformedRedirect(err error) bool {
	return is(err, ErrMalformedRedirect)
}

// IsNetwork checks if the error is a network error
func IsNetwork(err error) bool {
	return is(err, ErrNetwork)
}

// IsTimeout checks if the error is a timeout error
func IsTimeout(err error) bool {
	return is(err, ErrTimeout)
}

// IsTokenExchange checks if the error is a token exchange error
func IsTokenExchange(err error) bool {
	return is(err, ErrTokenExchange)
}

// Retryable reports whether the user can reasonably retry the flow after
// this error. Security and configuration failures are never retryable.
func Retryable(err error) bool {
	switch {
	case IsNetwork(err), IsTimeout(err), IsLaunch(err), IsAuthorizationDenied(err):
		return true
	default:
		return false
	}
}
