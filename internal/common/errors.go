// Package common defines shared constants and sentinel errors used across
// tokenkeeper layers. Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")

	// Service-level errors (generic/internal flow control).
	ErrorInternal = errors.New("internal error")

	// ErrMisconfigured reports a configuration fault (missing or reused
	// signing secret). It is never reported as a token fault.
	ErrMisconfigured = errors.New("misconfigured")

	// Auth errors (forged, malformed or mistyped token).
	ErrInvalidToken = errors.New("invalid token")

	// Token lifecycle errors.
	ErrTokenExpired        = errors.New("token expired")
	ErrRefreshTokenRevoked = errors.New("refresh token revoked")
)
