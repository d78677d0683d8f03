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

type PostgresRepository struct {
	db *sql.DB
}

func NewPostgresRepository(db *sql.DB) (*PostgresRepository, error) {
	return &PostgresRepository{db: db}, nil
}

const selectRecord = `SELECT tenant_id, entity_type, entity_id, version, payload, deleted, updated_at, updated_by, change_seq
	FROM entities WHERE tenant_id = $1 AND entity_type = $2 AND entity_id = $3`

func scanRecord(row *sql.Row) (*model.EntityRecord, error) {
	rec := &model.EntityRecord{}
	var payload sql.NullString
	err := row.Scan(&rec.TenantID, &rec.EntityType, &rec.EntityID, &rec.Version,
		&payload, &rec.Deleted, &rec.UpdatedAt, &rec.UpdatedBy, &rec.ChangeSeq)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("error performing sql request: %v", err)
	}
	if payload.Valid {
		rec.Payload = []byte(payload.String)
	}
	return rec, nil
}

func (r *PostgresRepository) Get(ctx context.Context, tenantID, entityType, entityID string) (*model.EntityRecord, error) {
	return scanRecord(r.db.QueryRowContext(ctx, selectRecord, tenantID, entityType, entityID))
}

func (r *PostgresRepository) get(ctx context.Context, tx dbx.DBTX, w *Write) (*model.EntityRecord, error) {
	return scanRecord(tx.QueryRowContext(ctx, selectRecord, w.TenantID, w.EntityType, w.EntityID))
}

// Write runs the arbitration in one transaction.
//
// A replayed idempotency key short-circuits to the current record without
// touching the row, so a retried delivery has at most one effect. Every
// accepted write assigns a fresh change_seq, keeping the change feed in
// acceptance order.
func (r *PostgresRepository) Write(ctx context.Context, w *Write) (rec *model.EntityRecord, err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("error starting transaction: %v", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	// Replay check.
	var seenVersion int64
	replayErr := tx.QueryRowContext(ctx,
		`SELECT version FROM idempotency_keys WHERE tenant_id = $1 AND key = $2`,
		w.TenantID, w.IdempotencyKey).Scan(&seenVersion)
	if replayErr == nil {
		rec, err = r.get(ctx, tx, w)
		if err != nil {
			return nil, err
		}
		if commitErr := tx.Commit(); commitErr != nil {
			err = fmt.Errorf("error committing transaction: %v", commitErr)
			return nil, err
		}
		return rec, nil
	}
	if !errors.Is(replayErr, sql.ErrNoRows) {
		err = fmt.Errorf("error performing sql request: %v", replayErr)
		return nil, err
	}

	var res sql.Result
	switch w.Op {
	case model.OpCreate:
		res, err = tx.ExecContext(ctx,
			`INSERT INTO entities (tenant_id, entity_type, entity_id, version, payload, deleted, updated_at, updated_by)
			 VALUES ($1, $2, $3, 1, $4, FALSE, now(), $5)
			 ON CONFLICT (tenant_id, entity_type, entity_id) DO NOTHING`,
			w.TenantID, w.EntityType, w.EntityID, string(w.Payload), w.Actor)
	case model.OpUpdate:
		res, err = tx.ExecContext(ctx,
			`UPDATE entities
			 SET version = version + 1, payload = $5, updated_at = now(), updated_by = $6,
			     change_seq = nextval('entities_change_seq_seq')
			 WHERE tenant_id = $1 AND entity_type = $2 AND entity_id = $3 AND version = $4 AND NOT deleted`,
			w.TenantID, w.EntityType, w.EntityID, deref(w.ExpectedVersion), string(w.Payload), w.Actor)
	case model.OpDelete:
		res, err = tx.ExecContext(ctx,
			`UPDATE entities
			 SET version = version + 1, deleted = TRUE, updated_at = now(), updated_by = $5,
			     change_seq = nextval('entities_change_seq_seq')
			 WHERE tenant_id = $1 AND entity_type = $2 AND entity_id = $3 AND version = $4 AND NOT deleted`,
			w.TenantID, w.EntityType, w.EntityID, deref(w.ExpectedVersion), w.Actor)
	default:
		err = fmt.Errorf("%w: unknown op %q", common.ErrMalformedPayload, w.Op)
		return nil, err
	}
	if err != nil {
		err = fmt.Errorf("error performing sql request: %v", err)
		return nil, err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("error performing sql request: %v", err)
	}
	if affected == 0 {
		// Lost the race: surface the current record with the conflict.
		current, getErr := r.get(ctx, tx, w)
		if getErr != nil {
			if errors.Is(getErr, common.ErrNotFound) && w.Op != model.OpCreate {
				err = common.ErrNotFound
				return nil, err
			}
			err = getErr
			return nil, err
		}
		err = common.ErrVersionConflict
		return current, err
	}

	rec, err = r.get(ctx, tx, w)
	if err != nil {
		return nil, err
	}

	if _, err = tx.ExecContext(ctx,
		`INSERT INTO idempotency_keys (tenant_id, key, entity_type, entity_id, version)
		 VALUES ($1, $2, $3, $4, $5)`,
		w.TenantID, w.IdempotencyKey, w.EntityType, w.EntityID, rec.Version); err != nil {
		err = fmt.Errorf("error performing sql request: %v", err)
		return nil, err
	}

	if err = tx.Commit(); err != nil {
		err = fmt.Errorf("error committing transaction: %v", err)
		return nil, err
	}
	return rec, nil
}

func (r *PostgresRepository) ListChangedSince(ctx context.Context, tenantID string, since int64, limit int) ([]model.EntityRecord, error) {
	query := `SELECT tenant_id, entity_type, entity_id, version, payload, deleted, updated_at, updated_by, change_seq
		FROM entities WHERE tenant_id = $1 AND change_seq > $2
		ORDER BY change_seq LIMIT $3`

	rows, err := r.db.QueryContext(ctx, query, tenantID, since, limit)
	if err != nil {
		return nil, fmt.Errorf("error performing sql request: %v", err)
	}
	defer rows.Close()

	var result []model.EntityRecord
	for rows.Next() {
		var rec model.EntityRecord
		var payload sql.NullString
		if err := rows.Scan(&rec.TenantID, &rec.EntityType, &rec.EntityID, &rec.Version,
			&payload, &rec.Deleted, &rec.UpdatedAt, &rec.UpdatedBy, &rec.ChangeSeq); err != nil {
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

func (r *PostgresRepository) AppendConflict(ctx context.Context, e *model.ConflictLogEntry) error {
	query := `INSERT INTO conflict_log (tenant_id, entity_type, entity_id, local_version, server_version, resolution, actor)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := r.db.ExecContext(ctx, query,
		e.TenantID, e.EntityType, e.EntityID, e.LocalVersion, e.ServerVersion, string(e.Resolution), e.Actor)
	if err != nil {
		return fmt.Errorf("error performing sql request: %v", err)
	}
	return nil
}

func deref(v *int64) int64 {
	if v == nil {
		return 0
	}
	return *v
}
