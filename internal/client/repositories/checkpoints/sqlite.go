package checkpoints

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rafikhanmanyar-star/pbookspro-sync/internal/dbx"
	"github.com/rafikhanmanyar-star/pbookspro-sync/internal/model"
)

// SQLiteRepository implements Repository using a DBTX (either *sql.DB or *sql.Tx).
type SQLiteRepository struct {
	db dbx.DBTX
}

// NewSQLiteRepository returns a new SQLiteRepository bound to the given DBTX.
func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) Get(ctx context.Context, tenantID, deviceID string) (*model.SyncCheckpoint, error) {
	query := `SELECT last_seq, last_synced_at, quarantined_at FROM checkpoints
		WHERE tenant_id = ? AND device_id = ?`
	row := r.db.QueryRowContext(ctx, query, tenantID, deviceID)

	cp := &model.SyncCheckpoint{TenantID: tenantID, DeviceID: deviceID}
	var syncedAt, quarantinedAt sql.NullTime
	err := row.Scan(&cp.LastSeq, &syncedAt, &quarantinedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return cp, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get checkpoint: %w", err)
	}
	if syncedAt.Valid {
		cp.LastSyncedAt = syncedAt.Time
	}
	if quarantinedAt.Valid {
		t := quarantinedAt.Time
		cp.QuarantinedAt = &t
	}
	return cp, nil
}

// Advance upserts the watermark. Re-activating a quarantined tenant clears
// the quarantine stamp: the same tenant logging back in resumes its own
// checkpoint.
func (r *SQLiteRepository) Advance(ctx context.Context, tenantID, deviceID string, seq int64, syncedAt time.Time) error {
	query := `INSERT INTO checkpoints (tenant_id, device_id, last_seq, last_synced_at, quarantined_at)
		VALUES (?, ?, ?, ?, NULL)
		ON CONFLICT(tenant_id, device_id) DO UPDATE SET
			last_seq = excluded.last_seq,
			last_synced_at = excluded.last_synced_at,
			quarantined_at = NULL`
	_, err := r.db.ExecContext(ctx, query, tenantID, deviceID, seq, syncedAt)
	if err != nil {
		return fmt.Errorf("failed to advance checkpoint: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) Quarantine(ctx context.Context, tenantID, deviceID string, at time.Time) error {
	query := `INSERT INTO checkpoints (tenant_id, device_id, last_seq, quarantined_at)
		VALUES (?, ?, 0, ?)
		ON CONFLICT(tenant_id, device_id) DO UPDATE SET quarantined_at = excluded.quarantined_at`
	_, err := r.db.ExecContext(ctx, query, tenantID, deviceID, at)
	if err != nil {
		return fmt.Errorf("failed to quarantine checkpoint: %w", err)
	}
	return nil
}
