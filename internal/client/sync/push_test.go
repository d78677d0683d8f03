package sync

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rafikhanmanyar-star/pbookspro-sync/internal/common"
	"github.com/rafikhanmanyar-star/pbookspro-sync/internal/model"
)

func newPusher(t *testing.T, fake *fakeAuthority) (*Pusher, *fakeAuthority) {
	t.Helper()
	repos := openRepos(t)
	p := NewPusher(testSession(), testConfig(), repos, fake, newEntityLocks(), testLogger())
	return p, fake
}

func TestDrain_AcknowledgesAndCachesRecord(t *testing.T) {
	ctx := context.Background()
	p, fake := newPusher(t, &fakeAuthority{})

	v := int64(3)
	enqueue(t, p.repos, &model.Mutation{
		ID: "m1", EntityType: "invoice", EntityID: "inv-1",
		Op: model.OpUpdate, Payload: []byte(`{"amount":600}`), ExpectedVersion: &v,
	})

	sent, err := p.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, sent)

	m, err := p.repos.Queue.GetByID(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusAcknowledged, m.Status)

	rec, err := p.repos.Entities.Get(ctx, "t1", "invoice", "inv-1")
	require.NoError(t, err)
	assert.Equal(t, int64(4), rec.Version)
	assert.JSONEq(t, `{"amount":600}`, string(rec.Payload))

	// The mutation id doubles as the idempotency key.
	assert.Equal(t, "m1", fake.writes[0].IdempotencyKey)
	assert.Equal(t, 1, fake.acquired)
	assert.Equal(t, 1, fake.released)
}

func TestDrain_RecoversInFlightMutationAfterRestart(t *testing.T) {
	ctx := context.Background()
	p, fake := newPusher(t, &fakeAuthority{})

	enqueue(t, p.repos, &model.Mutation{
		ID: "m1", EntityType: "invoice", EntityID: "inv-1",
		Op: model.OpCreate, Payload: []byte(`{"amount":100}`),
	})
	// A crash between the in-flight mark and the outcome write leaves the
	// row in sending; a fresh drain must pick it up again.
	require.NoError(t, p.repos.Queue.MarkStatus(ctx, "m1", model.StatusSending, ""))

	sent, err := p.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, sent)

	m, err := p.repos.Queue.GetByID(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusAcknowledged, m.Status)

	// Re-delivery rides the same idempotency key.
	require.Len(t, fake.writes, 1)
	assert.Equal(t, "m1", fake.writes[0].IdempotencyKey)
}

func TestAbandonForeignMutationAudited(t *testing.T) {
	ctx := context.Background()
	p, _ := newPusher(t, &fakeAuthority{})

	m := &model.Mutation{
		ID: "m1", EntityType: "invoice", EntityID: "inv-1",
		Op: model.OpCreate, Payload: []byte(`{"amount":100}`),
	}
	enqueue(t, p.repos, m)

	cause := fmt.Errorf("%w: mutation tenant %q, session tenant %q",
		common.ErrTenantMismatch, "t2", "t1")
	require.NoError(t, p.abandonForeign(ctx, m, cause))

	got, err := p.repos.Queue.GetByID(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusAbandoned, got.Status)
	assert.Contains(t, got.LastError, common.ErrTenantMismatch.Error())

	// The drop leaves an audit trail, same as the pull path.
	entries, err := p.repos.Conflicts.ListByTenant(ctx, "t1", 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, model.ResolutionRejected, entries[0].Resolution)
	assert.Equal(t, "invoice", entries[0].EntityType)
	assert.Equal(t, "u1@dev-1", entries[0].Actor)
}

func TestDrain_VersionConflictRejectedAndLogged(t *testing.T) {
	ctx := context.Background()

	serverRec := model.EntityRecord{
		TenantID: "t1", EntityType: "invoice", EntityID: "inv-1",
		Version: 4, Payload: []byte(`{"amount":450}`), UpdatedAt: time.Now(),
	}
	fake := &fakeAuthority{
		writeFn: func(req model.WriteRequest) (*model.WriteResult, *model.ConflictResult, error) {
			return nil, &model.ConflictResult{CurrentVersion: 4, Record: serverRec},
				fmt.Errorf("version conflict: %w", common.ErrVersionConflict)
		},
	}
	p, _ := newPusher(t, fake)

	// Local cache sits at the version the edit was made against.
	require.NoError(t, p.repos.Entities.Upsert(ctx, &model.EntityRecord{
		TenantID: "t1", EntityType: "invoice", EntityID: "inv-1",
		Version: 3, Payload: []byte(`{"amount":500}`), UpdatedAt: time.Now(),
	}))

	v := int64(3)
	enqueue(t, p.repos, &model.Mutation{
		ID: "m1", EntityType: "invoice", EntityID: "inv-1",
		Op: model.OpUpdate, Payload: []byte(`{"amount":600}`), ExpectedVersion: &v,
	})

	sent, err := p.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, sent)

	// The loser is surfaced, never silently dropped.
	m, err := p.repos.Queue.GetByID(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusRejected, m.Status)
	assert.Contains(t, m.LastError, "version 4")

	// Local copy is refreshed to the authority's record.
	rec, err := p.repos.Entities.Get(ctx, "t1", "invoice", "inv-1")
	require.NoError(t, err)
	assert.Equal(t, int64(4), rec.Version)
	assert.JSONEq(t, `{"amount":450}`, string(rec.Payload))

	entries, err := p.repos.Conflicts.ListByTenant(ctx, "t1", 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, model.ResolutionRejected, entries[0].Resolution)
	assert.Equal(t, int64(3), entries[0].LocalVersion)
	assert.Equal(t, int64(4), entries[0].ServerVersion)
}

func TestDrain_DisjointConflictMergedAndRequeued(t *testing.T) {
	ctx := context.Background()

	serverRec := model.EntityRecord{
		TenantID: "t1", EntityType: "invoice", EntityID: "inv-1",
		Version: 4, Payload: []byte(`{"amount":450,"note":"x"}`), UpdatedAt: time.Now(),
	}
	fake := &fakeAuthority{
		writeFn: func(req model.WriteRequest) (*model.WriteResult, *model.ConflictResult, error) {
			return nil, &model.ConflictResult{CurrentVersion: 4, Record: serverRec},
				fmt.Errorf("version conflict: %w", common.ErrVersionConflict)
		},
	}
	p, _ := newPusher(t, fake)

	require.NoError(t, p.repos.Entities.Upsert(ctx, &model.EntityRecord{
		TenantID: "t1", EntityType: "invoice", EntityID: "inv-1",
		Version: 3, Payload: []byte(`{"amount":450,"note":"x"}`), UpdatedAt: time.Now(),
	}))

	v := int64(3)
	enqueue(t, p.repos, &model.Mutation{
		ID: "m1", EntityType: "invoice", EntityID: "inv-1",
		Op: model.OpUpdate, Payload: []byte(`{"note":"updated"}`), ExpectedVersion: &v,
	})

	sent, err := p.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, sent)

	m, err := p.repos.Queue.GetByID(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusRejected, m.Status)
	assert.Contains(t, m.LastError, "merged and requeued")

	// The merged continuation targets the authority's current version.
	pending, err := p.repos.Queue.PeekPending(ctx, "t1", 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.NotNil(t, pending[0].ExpectedVersion)
	assert.Equal(t, int64(4), *pending[0].ExpectedVersion)
	assert.JSONEq(t, `{"amount":450,"note":"updated"}`, string(pending[0].Payload))
	assert.Equal(t, "t1", pending[0].TenantID)

	entries, err := p.repos.Conflicts.ListByTenant(ctx, "t1", 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, model.ResolutionMerged, entries[0].Resolution)
}

func TestDrain_LockDeniedStaysPendingWithoutRetryCost(t *testing.T) {
	ctx := context.Background()
	fake := &fakeAuthority{
		lockErr: fmt.Errorf("lease held: %w", common.ErrLockDenied),
	}
	p, _ := newPusher(t, fake)

	enqueue(t, p.repos, &model.Mutation{
		ID: "m1", EntityType: "invoice", EntityID: "inv-1",
		Op: model.OpCreate, Payload: []byte(`{"amount":100}`),
	})

	sent, err := p.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, sent)

	m, err := p.repos.Queue.GetByID(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, m.Status)
	assert.Equal(t, 0, m.RetryCount)
	assert.Equal(t, 0, fake.writeCount())
}

func TestDrain_NetworkErrorAbortsDrain(t *testing.T) {
	ctx := context.Background()
	fake := &fakeAuthority{
		writeFn: func(req model.WriteRequest) (*model.WriteResult, *model.ConflictResult, error) {
			return nil, nil, fmt.Errorf("connection refused: %w", common.ErrNetwork)
		},
	}
	p, _ := newPusher(t, fake)

	enqueue(t, p.repos, &model.Mutation{
		ID: "m1", EntityType: "invoice", EntityID: "inv-1",
		Op: model.OpCreate, Payload: []byte(`{"amount":100}`),
	})
	enqueue(t, p.repos, &model.Mutation{
		ID: "m2", EntityType: "invoice", EntityID: "inv-2",
		Op: model.OpCreate, Payload: []byte(`{"amount":200}`),
	})

	sent, err := p.Drain(ctx)
	require.ErrorIs(t, err, common.ErrNetwork)
	assert.Equal(t, 0, sent)

	// Only the failing mutation was attempted; the rest of the batch waits
	// for the next drain.
	assert.Equal(t, 1, fake.writeCount())

	m, err := p.repos.Queue.GetByID(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, m.Status)
	assert.Equal(t, 1, m.RetryCount)
}

func TestDrain_AbandonsAfterMaxAttempts(t *testing.T) {
	ctx := context.Background()
	fake := &fakeAuthority{
		writeFn: func(req model.WriteRequest) (*model.WriteResult, *model.ConflictResult, error) {
			return nil, nil, fmt.Errorf("connection refused: %w", common.ErrNetwork)
		},
	}
	p, _ := newPusher(t, fake)
	p.cfg.PushMaxAttempts = 2

	enqueue(t, p.repos, &model.Mutation{
		ID: "m1", EntityType: "invoice", EntityID: "inv-1",
		Op: model.OpCreate, Payload: []byte(`{"amount":100}`),
	})

	_, err := p.Drain(ctx)
	require.ErrorIs(t, err, common.ErrNetwork)
	_, err = p.Drain(ctx)
	require.ErrorIs(t, err, common.ErrNetwork)

	m, err := p.repos.Queue.GetByID(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusAbandoned, m.Status)
	assert.Equal(t, 2, m.RetryCount)
	assert.Contains(t, m.LastError, common.ErrExhaustedRetries.Error())

	// Abandoned rows no longer drain.
	sent, err := p.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, sent)
	assert.Equal(t, 2, fake.writeCount())
}

func TestDrain_PerEntityOrderPreservedAfterFailure(t *testing.T) {
	ctx := context.Background()

	serverRec := model.EntityRecord{
		TenantID: "t1", EntityType: "invoice", EntityID: "inv-1",
		Version: 9, Payload: []byte(`{"amount":450}`), UpdatedAt: time.Now(),
	}
	fake := &fakeAuthority{
		writeFn: func(req model.WriteRequest) (*model.WriteResult, *model.ConflictResult, error) {
			return nil, &model.ConflictResult{CurrentVersion: 9, Record: serverRec},
				fmt.Errorf("version conflict: %w", common.ErrVersionConflict)
		},
	}
	p, _ := newPusher(t, fake)

	v1, v2 := int64(3), int64(4)
	enqueue(t, p.repos, &model.Mutation{
		ID: "m1", EntityType: "invoice", EntityID: "inv-1",
		Op: model.OpUpdate, Payload: []byte(`{"amount":600}`), ExpectedVersion: &v1,
		EnqueuedAt: time.Now().Add(-time.Second),
	})
	enqueue(t, p.repos, &model.Mutation{
		ID: "m2", EntityType: "invoice", EntityID: "inv-1",
		Op: model.OpUpdate, Payload: []byte(`{"amount":700}`), ExpectedVersion: &v2,
	})

	sent, err := p.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, sent)

	// Once the first write for an entity fails, later mutations for the
	// same entity are not attempted in this drain.
	assert.Equal(t, 1, fake.writeCount())

	m2, err := p.repos.Queue.GetByID(ctx, "m2")
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, m2.Status)
}
