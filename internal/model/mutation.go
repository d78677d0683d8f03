package model

import (
	"encoding/json"
	"time"
)

// Op is the kind of change a mutation carries.
type Op string

const (
	OpCreate Op = "create"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

// MutationStatus is the delivery state of a queued mutation.
type MutationStatus string

const (
	// StatusPending means the mutation is queued and not yet in flight.
	StatusPending MutationStatus = "pending"
	// StatusSending means a push attempt is in flight right now. At most
	// one mutation per (tenant, entity) may be in this state.
	StatusSending MutationStatus = "sending"
	// StatusAcknowledged means the authority accepted the write.
	StatusAcknowledged MutationStatus = "acknowledged"
	// StatusRejected means the authority refused the write (version
	// conflict); the row is kept for inspection, never deleted silently.
	StatusRejected MutationStatus = "rejected"
	// StatusAbandoned means retries were exhausted; the row is surfaced to
	// the user for manual retry or discard.
	StatusAbandoned MutationStatus = "abandoned"
)

// Mutation is one queued local change. ID doubles as the idempotency key
// sent to the authority, so a retried delivery has at most one effect.
// ExpectedVersion is the optimistic-lock token; nil for creates.
type Mutation struct {
	ID              string          `json:"id"`
	TenantID        string          `json:"tenantId"`
	DeviceID        string          `json:"deviceId"`
	EntityType      string          `json:"entityType"`
	EntityID        string          `json:"entityId"`
	Op              Op              `json:"op"`
	Payload         json.RawMessage `json:"payload"`
	ExpectedVersion *int64          `json:"expectedVersion,omitempty"`
	Status          MutationStatus  `json:"status"`
	RetryCount      int             `json:"retryCount"`
	LastError       string          `json:"lastError,omitempty"`
	EnqueuedAt      time.Time       `json:"enqueuedAt"`
	UpdatedAt       time.Time       `json:"updatedAt"`
}

// ConflictResolution names the outcome recorded in a conflict log entry.
type ConflictResolution string

const (
	ResolutionRejected    ConflictResolution = "rejected"
	ResolutionOverwritten ConflictResolution = "overwritten"
	ResolutionMerged      ConflictResolution = "merged"
)

// ConflictLogEntry is an append-only audit record of a detected conflict.
type ConflictLogEntry struct {
	ID            string             `json:"id"`
	TenantID      string             `json:"tenantId"`
	EntityType    string             `json:"entityType"`
	EntityID      string             `json:"entityId"`
	LocalVersion  int64              `json:"localVersion"`
	ServerVersion int64              `json:"serverVersion"`
	Resolution    ConflictResolution `json:"resolution"`
	Actor         string             `json:"actor"`
	CreatedAt     time.Time          `json:"createdAt"`
}

// SyncCheckpoint is the per (tenant, device) watermark of how much of the
// authority's change feed has been durably applied locally.
type SyncCheckpoint struct {
	TenantID      string     `json:"tenantId"`
	DeviceID      string     `json:"deviceId"`
	LastSeq       int64      `json:"lastSeq"`
	LastSyncedAt  time.Time  `json:"lastSyncedAt"`
	QuarantinedAt *time.Time `json:"quarantinedAt,omitempty"`
}

// LockLease is an advisory claim on an entity. At most one active,
// non-expired lease exists per (tenant, entityType, entityId); leases
// auto-expire so a crashed holder cannot deadlock other writers.
type LockLease struct {
	TenantID   string    `json:"tenantId"`
	EntityType string    `json:"entityType"`
	EntityID   string    `json:"entityId"`
	Holder     string    `json:"holder"`
	AcquiredAt time.Time `json:"acquiredAt"`
	ExpiresAt  time.Time `json:"expiresAt"`
}

// Expired reports whether the lease is past its TTL at the given instant.
func (l LockLease) Expired(now time.Time) bool {
	return !now.Before(l.ExpiresAt)
}
