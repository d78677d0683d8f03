package conflicts

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/rafikhanmanyar-star/pbookspro-sync/internal/model"
)

func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Exec(`
CREATE TABLE conflict_log (
  id TEXT PRIMARY KEY,
  tenant_id TEXT NOT NULL,
  entity_type TEXT NOT NULL,
  entity_id TEXT NOT NULL,
  local_version INTEGER NOT NULL,
  server_version INTEGER NOT NULL,
  resolution TEXT NOT NULL,
  actor TEXT NOT NULL DEFAULT '',
  created_at TIMESTAMP NOT NULL
);`)
	require.NoError(t, err)
	return db
}

func TestAppend_GeneratesIDAndTimestamp(t *testing.T) {
	db := setupDB(t)
	r := NewSQLiteRepository(db)
	ctx := context.Background()

	e := &model.ConflictLogEntry{
		TenantID:      "t1",
		EntityType:    "invoice",
		EntityID:      "inv-1",
		LocalVersion:  3,
		ServerVersion: 4,
		Resolution:    model.ResolutionRejected,
		Actor:         "user-1",
	}
	require.NoError(t, r.Append(ctx, e))
	assert.NotEmpty(t, e.ID)
	assert.False(t, e.CreatedAt.IsZero())

	got, err := r.ListByTenant(ctx, "t1", 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, int64(3), got[0].LocalVersion)
	assert.Equal(t, int64(4), got[0].ServerVersion)
	assert.Equal(t, model.ResolutionRejected, got[0].Resolution)
}

func TestListByTenant_ScopedAndOrdered(t *testing.T) {
	db := setupDB(t)
	r := NewSQLiteRepository(db)
	ctx := context.Background()

	old := &model.ConflictLogEntry{
		TenantID: "t1", EntityType: "invoice", EntityID: "inv-1",
		LocalVersion: 1, ServerVersion: 2, Resolution: model.ResolutionRejected,
		CreatedAt: time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC),
	}
	recent := &model.ConflictLogEntry{
		TenantID: "t1", EntityType: "invoice", EntityID: "inv-2",
		LocalVersion: 5, ServerVersion: 6, Resolution: model.ResolutionMerged,
		CreatedAt: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
	}
	other := &model.ConflictLogEntry{
		TenantID: "t2", EntityType: "invoice", EntityID: "inv-3",
		LocalVersion: 1, ServerVersion: 2, Resolution: model.ResolutionRejected,
	}
	require.NoError(t, r.Append(ctx, old))
	require.NoError(t, r.Append(ctx, recent))
	require.NoError(t, r.Append(ctx, other))

	got, err := r.ListByTenant(ctx, "t1", 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "inv-2", got[0].EntityID, "newest first")
	assert.Equal(t, "inv-1", got[1].EntityID)
}
