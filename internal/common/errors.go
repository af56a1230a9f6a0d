// Package common defines shared constants and sentinel errors used across
// the API, services and job layers. Callers should use errors.Is to match
// these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound      = errors.New("not found")
	ErrorAlreadyExists = errors.New("already exists")

	// Service-level errors (generic/internal flow control).
	ErrorInternal     = errors.New("internal error")
	ErrorUnauthorized = errors.New("unauthorized")
	ErrorValidation   = errors.New("validation error")

	// Access token errors. ErrInvalidSignature and ErrMalformedToken wrap
	// ErrInvalidToken; ErrTokenExpired is kept apart because it triggers a refresh.
	ErrInvalidToken     = errors.New("invalid token")
	ErrInvalidSignature = wrapped(ErrInvalidToken, "invalid token signature")
	ErrMalformedToken   = wrapped(ErrInvalidToken, "malformed token")
	ErrTokenExpired     = errors.New("token expired")

	// Authentication outcomes surfaced to clients as 401.
	ErrMissingCredentials = errors.New("missing credentials")
	ErrUserDisabled       = errors.New("user is disabled")
	ErrRefreshFailed      = errors.New("refresh failed")

	// Refresh token lifecycle errors.
	ErrRefreshTokenNotFound = errors.New("refresh token not found")
	ErrRefreshTokenExpired  = errors.New("refresh token expired")
	ErrRotationFailed       = errors.New("refresh token rotation failed")

	// Job execution errors.
	ErrJobTimeout        = errors.New("job timed out")
	ErrJobNonZeroExit    = errors.New("job exited with non-zero status")
	ErrJobPanicked       = errors.New("job panicked")
	ErrJobAlreadyRunning = errors.New("job already running")
	ErrUnknownJob        = errors.New("unknown job")
)

type wrappedError struct {
	msg    string
	parent error
}

func (e *wrappedError) Error() string { return e.msg }
func (e *wrappedError) Unwrap() error { return e.parent }

func wrapped(parent error, msg string) error {
	return &wrappedError{msg: msg, parent: parent}
}
