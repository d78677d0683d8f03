// Package queue implements the durable change queue: a crash-resistant,
// enqueue-ordered log of pending mutations, scoped per tenant.
package queue

import (
	"context"

	"github.com/rafikhanmanyar-star/pbookspro-sync/internal/model"
)

// Repository describes the durable change queue operations.
//
// Rows are namespaced by tenant id: PeekPending and the counters only ever
// see one tenant, so a tenant switch on the same device cannot drain or
// inherit another tenant's queue. A mutation row is removed only by
// PurgeAcknowledged, never as a side effect of delivery.
type Repository interface {
	// Enqueue appends a mutation. It never blocks on the network.
	Enqueue(ctx context.Context, m *model.Mutation) error

	// PeekPending returns up to limit pending mutations for one tenant in
	// enqueue order.
	PeekPending(ctx context.Context, tenantID string, limit int) ([]*model.Mutation, error)

	// GetByID returns a single mutation.
	GetByID(ctx context.Context, id string) (*model.Mutation, error)

	// MarkStatus transitions delivery status and records the last error.
	MarkStatus(ctx context.Context, id string, status model.MutationStatus, lastError string) error

	// IncrementRetry bumps the retry counter and returns the new value.
	IncrementRetry(ctx context.Context, id string) (int, error)

	// Requeue moves an abandoned or rejected mutation back to pending for a
	// manual retry. The retry counter is reset.
	Requeue(ctx context.Context, id string) error

	// RecoverSending resets a tenant's sending rows to pending. A row can be
	// stranded in sending by a crash or a cancelled context between the
	// in-flight mark and the outcome write; the mutation id is the
	// idempotency key, so re-delivery is safe. Reports how many rows were
	// recovered.
	RecoverSending(ctx context.Context, tenantID string) (int64, error)

	// PurgeAcknowledged removes acknowledged rows for a tenant and reports
	// how many were removed.
	PurgeAcknowledged(ctx context.Context, tenantID string) (int64, error)

	// CountByStatus returns per-status row counts for one tenant.
	CountByStatus(ctx context.Context, tenantID string) (map[model.MutationStatus]int, error)

	// ListByStatus returns a tenant's mutations in a given status, oldest
	// first. Used for the abandoned-mutation list shown to the user.
	ListByStatus(ctx context.Context, tenantID string, status model.MutationStatus) ([]*model.Mutation, error)
}
