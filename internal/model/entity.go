// Package model defines the wire and storage types shared by the client
// engine and the authority server: entity records, queued mutations,
// relay events and change pages.
package model

import (
	"encoding/json"
	"time"
)

// EntityRecord is the authoritative shape of any business object (invoice,
// agreement, bill, ...), generic across entity types. Version is the sole
// source of truth for conflict detection: it is a monotonic integer bumped
// on every accepted write. Deleted rows are tombstones, never omissions.
type EntityRecord struct {
	TenantID   string          `json:"tenantId"`
	EntityType string          `json:"entityType"`
	EntityID   string          `json:"entityId"`
	Version    int64           `json:"version"`
	Payload    json.RawMessage `json:"payload"`
	Deleted    bool            `json:"deleted"`
	UpdatedAt  time.Time       `json:"updatedAt"`
	UpdatedBy  string          `json:"updatedBy"`

	// ChangeSeq is the authority-assigned position in the global change
	// feed. Zero on records that have not round-tripped through the server.
	ChangeSeq int64 `json:"changeSeq,omitempty"`
}

// ChangePage is one page of the authority's change feed.
type ChangePage struct {
	Records []EntityRecord `json:"records"`
	NextSeq int64          `json:"nextSeq"`
	HasMore bool           `json:"hasMore"`
}

// RelayEvent is the server→client push notification emitted after every
// accepted write. It carries routing metadata only; receivers schedule a
// pull rather than applying the event directly.
type RelayEvent struct {
	TenantID   string `json:"tenantId"`
	EntityType string `json:"entityType"`
	EntityID   string `json:"entityId"`
	Version    int64  `json:"version"`
}
