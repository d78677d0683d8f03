package entities

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/rafikhanmanyar-star/pbookspro-sync/internal/common"
	"github.com/rafikhanmanyar-star/pbookspro-sync/internal/model"
)

func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Exec(`
CREATE TABLE entities (
  tenant_id TEXT NOT NULL,
  entity_type TEXT NOT NULL,
  entity_id TEXT NOT NULL,
  version INTEGER NOT NULL,
  payload TEXT,
  deleted INTEGER NOT NULL DEFAULT 0,
  updated_at TIMESTAMP NOT NULL,
  updated_by TEXT NOT NULL DEFAULT '',
  PRIMARY KEY (tenant_id, entity_type, entity_id)
);`)
	require.NoError(t, err)
	return db
}

func record(tenant, id string, version int64) *model.EntityRecord {
	return &model.EntityRecord{
		TenantID:   tenant,
		EntityType: "invoice",
		EntityID:   id,
		Version:    version,
		Payload:    []byte(`{"amount":450}`),
		UpdatedAt:  time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		UpdatedBy:  "user-1",
	}
}

func TestUpsertAndGet(t *testing.T) {
	db := setupDB(t)
	r := NewSQLiteRepository(db)
	ctx := context.Background()

	rec := record("t1", "inv-1", 4)
	require.NoError(t, r.Upsert(ctx, rec))

	got, err := r.Get(ctx, "t1", "invoice", "inv-1")
	require.NoError(t, err)
	assert.Equal(t, int64(4), got.Version)
	assert.JSONEq(t, `{"amount":450}`, string(got.Payload))
}

func TestGet_NotFound(t *testing.T) {
	db := setupDB(t)
	r := NewSQLiteRepository(db)

	_, err := r.Get(context.Background(), "t1", "invoice", "absent")
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestApplyIfNewer_VersionMonotonicity(t *testing.T) {
	db := setupDB(t)
	r := NewSQLiteRepository(db)
	ctx := context.Background()

	applied, err := r.ApplyIfNewer(ctx, record("t1", "inv-1", 3))
	require.NoError(t, err)
	assert.True(t, applied, "insert counts as apply")

	// Stale incoming version is skipped.
	stale := record("t1", "inv-1", 2)
	stale.Payload = []byte(`{"amount":1}`)
	applied, err = r.ApplyIfNewer(ctx, stale)
	require.NoError(t, err)
	assert.False(t, applied)

	// Equal version is skipped too (already current).
	applied, err = r.ApplyIfNewer(ctx, record("t1", "inv-1", 3))
	require.NoError(t, err)
	assert.False(t, applied)

	newer := record("t1", "inv-1", 5)
	newer.Payload = []byte(`{"amount":600}`)
	applied, err = r.ApplyIfNewer(ctx, newer)
	require.NoError(t, err)
	assert.True(t, applied)

	got, err := r.Get(ctx, "t1", "invoice", "inv-1")
	require.NoError(t, err)
	assert.Equal(t, int64(5), got.Version)
	assert.JSONEq(t, `{"amount":600}`, string(got.Payload))
}

func TestApplyIfNewer_TombstonePropagation(t *testing.T) {
	db := setupDB(t)
	r := NewSQLiteRepository(db)
	ctx := context.Background()

	_, err := r.ApplyIfNewer(ctx, record("t1", "inv-1", 1))
	require.NoError(t, err)

	tomb := record("t1", "inv-1", 2)
	tomb.Deleted = true
	applied, err := r.ApplyIfNewer(ctx, tomb)
	require.NoError(t, err)
	assert.True(t, applied)

	// Tombstone is a row, not a missing row.
	got, err := r.Get(ctx, "t1", "invoice", "inv-1")
	require.NoError(t, err)
	assert.True(t, got.Deleted)

	// Deleted rows are excluded from listings.
	list, err := r.List(ctx, "t1", "invoice")
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestList_ScopedToTenantAndType(t *testing.T) {
	db := setupDB(t)
	r := NewSQLiteRepository(db)
	ctx := context.Background()

	require.NoError(t, r.Upsert(ctx, record("t1", "inv-1", 1)))
	require.NoError(t, r.Upsert(ctx, record("t2", "inv-2", 1)))
	other := record("t1", "agr-1", 1)
	other.EntityType = "agreement"
	require.NoError(t, r.Upsert(ctx, other))

	list, err := r.List(ctx, "t1", "invoice")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "inv-1", list[0].EntityID)
}
