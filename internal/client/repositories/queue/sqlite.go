package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

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

func (r *SQLiteRepository) Enqueue(ctx context.Context, m *model.Mutation) error {
	now := time.Now().UTC()
	if m.EnqueuedAt.IsZero() {
		m.EnqueuedAt = now
	}
	m.UpdatedAt = now
	if m.Status == "" {
		m.Status = model.StatusPending
	}

	query := `INSERT INTO mutations
		(id, tenant_id, device_id, entity_type, entity_id, op, payload, expected_version, status, retry_count, last_error, enqueued_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, query,
		m.ID, m.TenantID, m.DeviceID, m.EntityType, m.EntityID, string(m.Op),
		string(m.Payload), m.ExpectedVersion, string(m.Status), m.RetryCount, m.LastError,
		m.EnqueuedAt, m.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to enqueue mutation: %w", err)
	}
	return nil
}

const mutationColumns = `id, tenant_id, device_id, entity_type, entity_id, op, payload, expected_version, status, retry_count, last_error, enqueued_at, updated_at`

func scanMutation(scan func(dest ...any) error) (*model.Mutation, error) {
	m := &model.Mutation{}
	var payload sql.NullString
	var op, status string
	if err := scan(&m.ID, &m.TenantID, &m.DeviceID, &m.EntityType, &m.EntityID,
		&op, &payload, &m.ExpectedVersion, &status, &m.RetryCount, &m.LastError,
		&m.EnqueuedAt, &m.UpdatedAt); err != nil {
		return nil, err
	}
	m.Op = model.Op(op)
	m.Status = model.MutationStatus(status)
	if payload.Valid {
		m.Payload = []byte(payload.String)
	}
	return m, nil
}

func (r *SQLiteRepository) PeekPending(ctx context.Context, tenantID string, limit int) ([]*model.Mutation, error) {
	query := `SELECT ` + mutationColumns + ` FROM mutations
		WHERE tenant_id = ? AND status = ?
		ORDER BY enqueued_at, id
		LIMIT ?`
	rows, err := r.db.QueryContext(ctx, query, tenantID, string(model.StatusPending), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to select pending mutations: %w", err)
	}
	defer rows.Close()

	var result []*model.Mutation
	for rows.Next() {
		m, err := scanMutation(rows.Scan)
		if err != nil {
			return nil, err
		}
		result = append(result, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*model.Mutation, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+mutationColumns+` FROM mutations WHERE id = ?`, id)
	m, err := scanMutation(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get mutation: %w", err)
	}
	return m, nil
}

func (r *SQLiteRepository) MarkStatus(ctx context.Context, id string, status model.MutationStatus, lastError string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE mutations SET status = ?, last_error = ?, updated_at = ? WHERE id = ?`,
		string(status), lastError, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to mark mutation status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return common.ErrNotFound
	}
	return nil
}

func (r *SQLiteRepository) IncrementRetry(ctx context.Context, id string) (int, error) {
	_, err := r.db.ExecContext(ctx,
		`UPDATE mutations SET retry_count = retry_count + 1, updated_at = ? WHERE id = ?`,
		time.Now().UTC(), id)
	if err != nil {
		return 0, fmt.Errorf("failed to increment retry count: %w", err)
	}

	var count int
	err = r.db.QueryRowContext(ctx, `SELECT retry_count FROM mutations WHERE id = ?`, id).Scan(&count)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, common.ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read retry count: %w", err)
	}
	return count, nil
}

func (r *SQLiteRepository) Requeue(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE mutations SET status = ?, retry_count = 0, last_error = '', updated_at = ?
		 WHERE id = ? AND status IN (?, ?)`,
		string(model.StatusPending), time.Now().UTC(), id,
		string(model.StatusAbandoned), string(model.StatusRejected))
	if err != nil {
		return fmt.Errorf("failed to requeue mutation: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return common.ErrNotFound
	}
	return nil
}

func (r *SQLiteRepository) RecoverSending(ctx context.Context, tenantID string) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE mutations SET status = ?, updated_at = ? WHERE tenant_id = ? AND status = ?`,
		string(model.StatusPending), time.Now().UTC(), tenantID, string(model.StatusSending))
	if err != nil {
		return 0, fmt.Errorf("failed to recover sending mutations: %w", err)
	}
	return res.RowsAffected()
}

func (r *SQLiteRepository) PurgeAcknowledged(ctx context.Context, tenantID string) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM mutations WHERE tenant_id = ? AND status = ?`,
		tenantID, string(model.StatusAcknowledged))
	if err != nil {
		return 0, fmt.Errorf("failed to purge acknowledged mutations: %w", err)
	}
	return res.RowsAffected()
}

func (r *SQLiteRepository) CountByStatus(ctx context.Context, tenantID string) (map[model.MutationStatus]int, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT status, COUNT(*) FROM mutations WHERE tenant_id = ? GROUP BY status`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to count mutations: %w", err)
	}
	defer rows.Close()

	result := make(map[model.MutationStatus]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		result[model.MutationStatus(status)] = count
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *SQLiteRepository) ListByStatus(ctx context.Context, tenantID string, status model.MutationStatus) ([]*model.Mutation, error) {
	query := `SELECT ` + mutationColumns + ` FROM mutations
		WHERE tenant_id = ? AND status = ?
		ORDER BY enqueued_at, id`
	rows, err := r.db.QueryContext(ctx, query, tenantID, string(status))
	if err != nil {
		return nil, fmt.Errorf("failed to list mutations: %w", err)
	}
	defer rows.Close()

	var result []*model.Mutation
	for rows.Next() {
		m, err := scanMutation(rows.Scan)
		if err != nil {
			return nil, err
		}
		result = append(result, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
