// Package locks coordinates advisory edit leases. A lease is a courtesy
// claim with a TTL: it steers concurrent editors away from each other but
// never replaces version arbitration on write.
package locks

import (
	"context"

	"github.com/rafikhanmanyar-star/pbookspro-sync/internal/model"
)

// Repository is the lease store. Acquire is first-wins: it succeeds when no
// live lease exists, when the previous lease has expired, or when the same
// holder re-acquires (extending the TTL). On denial it returns the current
// lease together with common.ErrLockDenied.
type Repository interface {
	Acquire(ctx context.Context, lease *model.LockLease) (*model.LockLease, error)
	Release(ctx context.Context, tenantID, entityType, entityID, holder string) error
	Get(ctx context.Context, tenantID, entityType, entityID string) (*model.LockLease, error)
}
