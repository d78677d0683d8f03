package sync

import (
	"context"
	"io"
	gosync "sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rafikhanmanyar-star/pbookspro-sync/internal/client/config"
	"github.com/rafikhanmanyar-star/pbookspro-sync/internal/client/store"
	"github.com/rafikhanmanyar-star/pbookspro-sync/internal/client/transport"
	"github.com/rafikhanmanyar-star/pbookspro-sync/internal/logging"
	"github.com/rafikhanmanyar-star/pbookspro-sync/internal/model"
)

// fakeAuthority is an in-memory transport.Authority for pipeline tests.
// Behavior is overridden per test via writeFn / changesFn / lockErr.
type fakeAuthority struct {
	mu        gosync.Mutex
	writeFn   func(req model.WriteRequest) (*model.WriteResult, *model.ConflictResult, error)
	changesFn func(since int64, limit int) (*model.ChangePage, error)
	lockErr   error

	writes   []model.WriteRequest
	acquired int
	released int
	pulls    int
}

var _ transport.Authority = (*fakeAuthority)(nil)

func (f *fakeAuthority) Login(ctx context.Context, username, password string) (*transport.Session, error) {
	return &transport.Session{UserID: "u1", TenantID: "t1"}, nil
}

func (f *fakeAuthority) Write(ctx context.Context, req model.WriteRequest) (*model.WriteResult, *model.ConflictResult, error) {
	f.mu.Lock()
	f.writes = append(f.writes, req)
	fn := f.writeFn
	f.mu.Unlock()

	if fn != nil {
		return fn(req)
	}

	version := int64(1)
	if req.ExpectedVersion != nil {
		version = *req.ExpectedVersion + 1
	}
	return &model.WriteResult{Record: model.EntityRecord{
		TenantID:   "t1",
		EntityType: req.EntityType,
		EntityID:   req.EntityID,
		Version:    version,
		Payload:    req.Payload,
		Deleted:    req.Op == model.OpDelete,
		UpdatedAt:  time.Now(),
	}}, nil, nil
}

func (f *fakeAuthority) ListChangedSince(ctx context.Context, since int64, limit int) (*model.ChangePage, error) {
	f.mu.Lock()
	f.pulls++
	fn := f.changesFn
	f.mu.Unlock()

	if fn != nil {
		return fn(since, limit)
	}
	return &model.ChangePage{NextSeq: since}, nil
}

func (f *fakeAuthority) AcquireLock(ctx context.Context, entityType, entityID, holder string, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.lockErr != nil {
		return f.lockErr
	}
	f.acquired++
	return nil
}

func (f *fakeAuthority) ReleaseLock(ctx context.Context, entityType, entityID, holder string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.released++
	return nil
}

func (f *fakeAuthority) Ping(ctx context.Context) error { return nil }

func (f *fakeAuthority) AccessToken() string { return "test-token" }

func (f *fakeAuthority) writeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.writes)
}

func (f *fakeAuthority) pullCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pulls
}

// fakeEvents is a channel-backed EventSource.
type fakeEvents struct {
	ch chan model.RelayEvent
}

func newFakeEvents() *fakeEvents {
	return &fakeEvents{ch: make(chan model.RelayEvent, 8)}
}

func (f *fakeEvents) Run(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

func (f *fakeEvents) Events() <-chan model.RelayEvent { return f.ch }

func testSession() Context {
	return Context{TenantID: "t1", DeviceID: "dev-1", UserID: "u1"}
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.LoadDefaults()
	cfg.PushMaxAttempts = 3
	cfg.BackoffMin = 5 * time.Millisecond
	cfg.BackoffMax = 20 * time.Millisecond
	cfg.PollInterval = time.Hour
	return cfg
}

func openRepos(t *testing.T) *store.Repositories {
	t.Helper()
	repos, err := store.Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = repos.Close() })
	return repos
}

func testLogger() logging.Logger {
	return logging.NewJSONLogger(io.Discard)
}

func enqueue(t *testing.T, repos *store.Repositories, m *model.Mutation) {
	t.Helper()
	if m.TenantID == "" {
		m.TenantID = "t1"
	}
	if m.DeviceID == "" {
		m.DeviceID = "dev-1"
	}
	if m.EnqueuedAt.IsZero() {
		m.EnqueuedAt = time.Now()
	}
	require.NoError(t, repos.Queue.Enqueue(context.Background(), m))
}
