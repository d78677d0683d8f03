package locks

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/rafikhanmanyar-star/pbookspro-sync/internal/common"
	"github.com/rafikhanmanyar-star/pbookspro-sync/internal/model"
)

type PostgresRepository struct {
	db *sql.DB
}

func NewPostgresRepository(db *sql.DB) (*PostgresRepository, error) {
	return &PostgresRepository{db: db}, nil
}

func (r *PostgresRepository) Acquire(ctx context.Context, lease *model.LockLease) (*model.LockLease, error) {
	query :=
		`INSERT INTO lock_leases (tenant_id, entity_type, entity_id, holder, acquired_at, expires_at)
		 VALUES ($1, $2, $3, $4, now(), $5)
		 ON CONFLICT (tenant_id, entity_type, entity_id) DO UPDATE
		 SET holder = excluded.holder, acquired_at = excluded.acquired_at, expires_at = excluded.expires_at
		 WHERE lock_leases.expires_at <= now() OR lock_leases.holder = excluded.holder`

	res, err := r.db.ExecContext(ctx, query,
		lease.TenantID, lease.EntityType, lease.EntityID, lease.Holder, lease.ExpiresAt)
	if err != nil {
		return nil, fmt.Errorf("error performing sql request: %v", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("error performing sql request: %v", err)
	}
	if affected == 0 {
		current, err := r.Get(ctx, lease.TenantID, lease.EntityType, lease.EntityID)
		if err != nil {
			return nil, err
		}
		return current, common.ErrLockDenied
	}

	return lease, nil
}

// Release deletes the holder's lease. Releasing a lease that expired or was
// taken over is a no-op.
func (r *PostgresRepository) Release(ctx context.Context, tenantID, entityType, entityID, holder string) error {
	query := `DELETE FROM lock_leases
		WHERE tenant_id = $1 AND entity_type = $2 AND entity_id = $3 AND holder = $4`

	_, err := r.db.ExecContext(ctx, query, tenantID, entityType, entityID, holder)
	if err != nil {
		return fmt.Errorf("error performing sql request: %v", err)
	}
	return nil
}

func (r *PostgresRepository) Get(ctx context.Context, tenantID, entityType, entityID string) (*model.LockLease, error) {
	query := `SELECT tenant_id, entity_type, entity_id, holder, acquired_at, expires_at
		FROM lock_leases WHERE tenant_id = $1 AND entity_type = $2 AND entity_id = $3`

	lease := &model.LockLease{}
	err := r.db.QueryRowContext(ctx, query, tenantID, entityType, entityID).Scan(
		&lease.TenantID, &lease.EntityType, &lease.EntityID,
		&lease.Holder, &lease.AcquiredAt, &lease.ExpiresAt)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("error performing sql request: %v", err)
	}

	return lease, nil
}
