// Package entities implements the authoritative entity store: conditional
// version arbitration, idempotent replay and the global change feed.
package entities

import (
	"context"
	"encoding/json"

	"github.com/rafikhanmanyar-star/pbookspro-sync/internal/model"
)

// Write is one arbitration request against the store.
type Write struct {
	TenantID        string
	EntityType      string
	EntityID        string
	Op              model.Op
	Payload         json.RawMessage
	ExpectedVersion *int64
	IdempotencyKey  string
	Actor           string
}

// Repository is the persistence contract for the entity store.
//
// Write applies the whole arbitration atomically: idempotency replay,
// conditional insert/update and the idempotency-key record commit or roll
// back together. On a version conflict it returns the authority's current
// record together with common.ErrVersionConflict, so the caller can build
// the conflict response without a second query.
type Repository interface {
	Get(ctx context.Context, tenantID, entityType, entityID string) (*model.EntityRecord, error)
	Write(ctx context.Context, w *Write) (*model.EntityRecord, error)
	ListChangedSince(ctx context.Context, tenantID string, since int64, limit int) ([]model.EntityRecord, error)
	AppendConflict(ctx context.Context, e *model.ConflictLogEntry) error
}
