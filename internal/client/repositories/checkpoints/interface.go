// Package checkpoints persists the per (tenant, device) pull watermark.
package checkpoints

import (
	"context"
	"time"

	"github.com/rafikhanmanyar-star/pbookspro-sync/internal/model"
)

// Repository describes checkpoint storage. Get returns a zero-valued
// checkpoint (LastSeq 0) for an unknown (tenant, device) pair, so a fresh
// login starts pulling from the beginning of the change feed.
type Repository interface {
	Get(ctx context.Context, tenantID, deviceID string) (*model.SyncCheckpoint, error)

	// Advance moves the watermark forward. Called only after a full page of
	// changes has been durably applied, on the same transaction.
	Advance(ctx context.Context, tenantID, deviceID string, seq int64, syncedAt time.Time) error

	// Quarantine stamps the outgoing tenant's checkpoint on logout. The row
	// is kept, never merged into another tenant's state.
	Quarantine(ctx context.Context, tenantID, deviceID string, at time.Time) error
}
