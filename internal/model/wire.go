package model

import "encoding/json"

// WriteRequest is the body of POST /api/entities/write. TenantID is taken
// from the caller's token on the server side, never from the body.
type WriteRequest struct {
	EntityType      string          `json:"entityType"`
	EntityID        string          `json:"entityId"`
	Op              Op              `json:"op"`
	Payload         json.RawMessage `json:"payload"`
	ExpectedVersion *int64          `json:"expectedVersion,omitempty"`
	IdempotencyKey  string          `json:"idempotencyKey"`
}

// WriteResult is the success body: the accepted record at its new version.
type WriteResult struct {
	Record EntityRecord `json:"record"`
}

// ConflictResult is the 409 body: the authority's current version plus the
// full current record, so the client can refresh its cache and attempt a
// field-level merge without a second round trip.
type ConflictResult struct {
	CurrentVersion int64        `json:"currentVersion"`
	Record         EntityRecord `json:"record"`
}

// LockRequest is the body of POST /api/locks/acquire and /api/locks/release.
type LockRequest struct {
	EntityType string `json:"entityType"`
	EntityID   string `json:"entityId"`
	Holder     string `json:"holder"`
	TTLSeconds int    `json:"ttlSeconds,omitempty"`
}

// LockDeniedResult is the 423 body naming the current lease holder.
type LockDeniedResult struct {
	Holder    string `json:"holder"`
	ExpiresAt string `json:"expiresAt"`
}
