// Package conflicts persists the append-only conflict audit log.
package conflicts

import (
	"context"

	"github.com/rafikhanmanyar-star/pbookspro-sync/internal/model"
)

// Repository describes the conflict log. Entries are never mutated or
// deleted; they are retained for audit.
type Repository interface {
	Append(ctx context.Context, e *model.ConflictLogEntry) error
	ListByTenant(ctx context.Context, tenantID string, limit int) ([]model.ConflictLogEntry, error)
}
