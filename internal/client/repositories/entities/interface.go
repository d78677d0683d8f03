// Package entities maintains the local cache of authoritative entity
// records, one row per (tenant, entityType, entityId), with tombstones.
package entities

import (
	"context"

	"github.com/rafikhanmanyar-star/pbookspro-sync/internal/model"
)

// Repository describes the local entity cache.
type Repository interface {
	// Get returns one record or common.ErrNotFound.
	Get(ctx context.Context, tenantID, entityType, entityID string) (*model.EntityRecord, error)

	// Upsert writes a record unconditionally (used after an acknowledged
	// push, where the server-returned record is definitive).
	Upsert(ctx context.Context, rec *model.EntityRecord) error

	// ApplyIfNewer upserts only when rec.Version is greater than the stored
	// version, keeping the local version sequence non-decreasing. Reports
	// whether the row was written.
	ApplyIfNewer(ctx context.Context, rec *model.EntityRecord) (bool, error)

	// List returns a tenant's non-deleted records of one type.
	List(ctx context.Context, tenantID, entityType string) ([]model.EntityRecord, error)
}
