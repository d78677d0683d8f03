package conflicts

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

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

func (r *SQLiteRepository) Append(ctx context.Context, e *model.ConflictLogEntry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	query := `INSERT INTO conflict_log
		(id, tenant_id, entity_type, entity_id, local_version, server_version, resolution, actor, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, query,
		e.ID, e.TenantID, e.EntityType, e.EntityID,
		e.LocalVersion, e.ServerVersion, string(e.Resolution), e.Actor, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to append conflict log entry: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) ListByTenant(ctx context.Context, tenantID string, limit int) ([]model.ConflictLogEntry, error) {
	query := `SELECT id, tenant_id, entity_type, entity_id, local_version, server_version, resolution, actor, created_at
		FROM conflict_log WHERE tenant_id = ?
		ORDER BY created_at DESC, id LIMIT ?`
	rows, err := r.db.QueryContext(ctx, query, tenantID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list conflict log: %w", err)
	}
	defer rows.Close()

	var result []model.ConflictLogEntry
	for rows.Next() {
		var e model.ConflictLogEntry
		var resolution string
		if err := rows.Scan(&e.ID, &e.TenantID, &e.EntityType, &e.EntityID,
			&e.LocalVersion, &e.ServerVersion, &resolution, &e.Actor, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Resolution = model.ConflictResolution(resolution)
		result = append(result, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
