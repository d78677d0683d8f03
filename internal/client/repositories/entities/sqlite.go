package entities

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/rafikhanmanyar-star/pbookspro-sync/internal/common"
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

func (r *SQLiteRepository) Get(ctx context.Context, tenantID, entityType, entityID string) (*model.EntityRecord, error) {
	query := `SELECT tenant_id, entity_type, entity_id, version, payload, deleted, updated_at, updated_by
		FROM entities WHERE tenant_id = ? AND entity_type = ? AND entity_id = ?`
	row := r.db.QueryRowContext(ctx, query, tenantID, entityType, entityID)

	rec := &model.EntityRecord{}
	var payload sql.NullString
	err := row.Scan(&rec.TenantID, &rec.EntityType, &rec.EntityID, &rec.Version,
		&payload, &rec.Deleted, &rec.UpdatedAt, &rec.UpdatedBy)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get entity: %w", err)
	}
	if payload.Valid {
		rec.Payload = []byte(payload.String)
	}
	return rec, nil
}

func (r *SQLiteRepository) Upsert(ctx context.Context, rec *model.EntityRecord) error {
	query := `INSERT INTO entities (tenant_id, entity_type, entity_id, version, payload, deleted, updated_at, updated_by)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(tenant_id, entity_type, entity_id) DO UPDATE SET
			version = excluded.version,
			payload = excluded.payload,
			deleted = excluded.deleted,
			updated_at = excluded.updated_at,
			updated_by = excluded.updated_by`
	_, err := r.db.ExecContext(ctx, query,
		rec.TenantID, rec.EntityType, rec.EntityID, rec.Version,
		string(rec.Payload), rec.Deleted, rec.UpdatedAt, rec.UpdatedBy)
	if err != nil {
		return fmt.Errorf("failed to upsert entity: %w", err)
	}
	return nil
}

// ApplyIfNewer writes the record only when it advances the stored version.
// A local copy at the same or a higher version stays untouched, so an
// in-flight push acknowledgment can never be regressed by a pull.
func (r *SQLiteRepository) ApplyIfNewer(ctx context.Context, rec *model.EntityRecord) (bool, error) {
	query := `INSERT INTO entities (tenant_id, entity_type, entity_id, version, payload, deleted, updated_at, updated_by)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(tenant_id, entity_type, entity_id) DO UPDATE SET
			version = excluded.version,
			payload = excluded.payload,
			deleted = excluded.deleted,
			updated_at = excluded.updated_at,
			updated_by = excluded.updated_by
		WHERE excluded.version > entities.version`
	res, err := r.db.ExecContext(ctx, query,
		rec.TenantID, rec.EntityType, rec.EntityID, rec.Version,
		string(rec.Payload), rec.Deleted, rec.UpdatedAt, rec.UpdatedBy)
	if err != nil {
		return false, fmt.Errorf("failed to apply entity: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n == 1, nil
}

func (r *SQLiteRepository) List(ctx context.Context, tenantID, entityType string) ([]model.EntityRecord, error) {
	query := `SELECT tenant_id, entity_type, entity_id, version, payload, deleted, updated_at, updated_by
		FROM entities WHERE tenant_id = ? AND entity_type = ? AND deleted = 0
		ORDER BY entity_id`
	rows, err := r.db.QueryContext(ctx, query, tenantID, entityType)
	if err != nil {
		return nil, fmt.Errorf("failed to list entities: %w", err)
	}
	defer rows.Close()

	var result []model.EntityRecord
	for rows.Next() {
		var rec model.EntityRecord
		var payload sql.NullString
		if err := rows.Scan(&rec.TenantID, &rec.EntityType, &rec.EntityID, &rec.Version,
			&payload, &rec.Deleted, &rec.UpdatedAt, &rec.UpdatedBy); err != nil {
			return nil, err
		}
		if payload.Valid {
			rec.Payload = []byte(payload.String)
		}
		result = append(result, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
