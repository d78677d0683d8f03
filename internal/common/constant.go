// Package common contains shared constants and sentinel errors used across
// sync engine components.
package common

// AuthorizationHeader carries the bearer access token on API requests.
const AuthorizationHeader = "Authorization"

// IdempotencyKeyHeader carries the client-generated mutation id so the
// authority can deduplicate retried writes.
const IdempotencyKeyHeader = "Idempotency-Key"
