// Package common defines shared constants and sentinel errors used across
// the client engine and the authority server. Callers should use errors.Is
// to match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrNotFound = errors.New("not found")

	// Transport-level errors. ErrNetwork covers timeouts, connection
	// failures and 5xx responses; it is always retryable.
	ErrNetwork = errors.New("network error")

	// Sync errors.
	ErrVersionConflict  = errors.New("version conflict")
	ErrLockDenied       = errors.New("lock denied")
	ErrTenantMismatch   = errors.New("tenant mismatch")
	ErrExhaustedRetries = errors.New("retries exhausted")

	// Validation errors. Never retried.
	ErrMalformedPayload = errors.New("malformed payload")

	// Auth errors.
	ErrUnauthorized        = errors.New("unauthorized")
	ErrInvalidToken        = errors.New("invalid token")
	ErrTokenExpired        = errors.New("token expired")
	ErrRefreshTokenExpired = errors.New("refresh token expired")
)
