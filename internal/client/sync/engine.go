package sync

import (
	"context"
	"errors"
	"fmt"
	gosync "sync"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"

	"github.com/rafikhanmanyar-star/pbookspro-sync/internal/client/config"
	"github.com/rafikhanmanyar-star/pbookspro-sync/internal/client/repositories/queue"
	"github.com/rafikhanmanyar-star/pbookspro-sync/internal/client/store"
	"github.com/rafikhanmanyar-star/pbookspro-sync/internal/client/transport"
	"github.com/rafikhanmanyar-star/pbookspro-sync/internal/common"
	"github.com/rafikhanmanyar-star/pbookspro-sync/internal/dbx"
	"github.com/rafikhanmanyar-star/pbookspro-sync/internal/logging"
	"github.com/rafikhanmanyar-star/pbookspro-sync/internal/model"
)

// EventSource is the relay subscription the engine consumes. Satisfied by
// *relay.Listener; tests substitute a channel-backed fake.
type EventSource interface {
	// Run keeps the subscription alive until ctx is cancelled.
	Run(ctx context.Context) error
	// Events is the bounded channel of tenant-scoped relay events.
	Events() <-chan model.RelayEvent
}

// Engine owns the sync lifecycle for one session: it drains the change
// queue, replays the change feed, listens to the relay and exposes status.
// One engine per active (tenant, device) session; Stop quarantines the
// tenant's local state instead of deleting it.
type Engine struct {
	sc        Context
	cfg       *config.Config
	repos     *store.Repositories
	authority transport.Authority
	events    EventSource
	logger    logging.Logger

	pusher *Pusher
	puller *Puller

	notify chan struct{}
	cancel context.CancelFunc
	wg     gosync.WaitGroup

	mu           gosync.Mutex
	started      bool
	inCycle      bool
	rerun        bool
	state        State
	lastError    string
	lastSyncedAt time.Time
}

// NewEngine wires an engine for one session. events may be nil when the
// relay is disabled; the poll ticker then remains the only pull trigger.
func NewEngine(sc Context, cfg *config.Config, repos *store.Repositories,
	authority transport.Authority, events EventSource, logger logging.Logger) *Engine {
	locks := newEntityLocks()
	log := logger.With("tenant", sc.TenantID, "device", sc.DeviceID)
	return &Engine{
		sc:        sc,
		cfg:       cfg,
		repos:     repos,
		authority: authority,
		events:    events,
		logger:    log,
		pusher:    NewPusher(sc, cfg, repos, authority, locks, logger),
		puller:    NewPuller(sc, cfg, repos, authority, locks, logger),
		notify:    make(chan struct{}, 1),
		state:     StateIdle,
	}
}

// Start launches the sync loop and, when configured, the relay listener.
// An immediate first cycle is scheduled so a fresh login converges without
// waiting for the poll ticker.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.started {
		e.mu.Unlock()
		return errors.New("sync engine already started")
	}
	e.started = true
	e.mu.Unlock()

	ctx, e.cancel = context.WithCancel(ctx)

	if e.events != nil {
		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			if err := e.events.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				e.logger.Error(ctx, "relay listener stopped", "error", err)
			}
		}()
	}

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.loop(ctx)
	}()

	e.Notify()
	return nil
}

// Stop cancels the loops, waits for them and quarantines the session's
// checkpoint. The queue and entity cache stay on disk, keyed by tenant, so
// a later login by the same tenant resumes exactly where it left off.
func (e *Engine) Stop(ctx context.Context) error {
	e.mu.Lock()
	if !e.started {
		e.mu.Unlock()
		return nil
	}
	e.started = false
	e.mu.Unlock()

	e.cancel()
	e.wg.Wait()

	if err := e.repos.Checkpoints.Quarantine(ctx, e.sc.TenantID, e.sc.DeviceID, time.Now()); err != nil {
		return fmt.Errorf("failed to quarantine checkpoint: %w", err)
	}
	e.logger.Info(ctx, "sync engine stopped, tenant state quarantined")
	return nil
}

// Submit records one local change in the durable queue and wakes the loop.
// It never touches the network and succeeds while offline. The returned id
// is the mutation's idempotency key.
func (e *Engine) Submit(ctx context.Context, entityType, entityID string,
	op model.Op, payload []byte, expectedVersion *int64) (string, error) {
	m := &model.Mutation{
		ID:              uuid.NewString(),
		EntityType:      entityType,
		EntityID:        entityID,
		Op:              op,
		Payload:         payload,
		ExpectedVersion: expectedVersion,
		Status:          model.StatusPending,
		EnqueuedAt:      time.Now(),
	}
	guard{sc: e.sc}.stamp(m)

	if err := e.repos.Queue.Enqueue(ctx, m); err != nil {
		return "", fmt.Errorf("failed to enqueue mutation: %w", err)
	}
	e.Notify()
	return m.ID, nil
}

// Notify schedules a sync cycle. Calls coalesce: at most one wake-up is
// buffered, and a cycle already in flight records a rerun instead.
func (e *Engine) Notify() {
	select {
	case e.notify <- struct{}{}:
	default:
	}
}

// Snapshot returns the engine's current status plus queue counters.
func (e *Engine) Snapshot(ctx context.Context) (*Snapshot, error) {
	counts, err := e.repos.Queue.CountByStatus(ctx, e.sc.TenantID)
	if err != nil {
		return nil, err
	}
	abandoned, err := e.repos.Queue.ListByStatus(ctx, e.sc.TenantID, model.StatusAbandoned)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return &Snapshot{
		State:        e.state,
		PendingCount: counts[model.StatusPending] + counts[model.StatusSending],
		LastSyncedAt: e.lastSyncedAt,
		LastError:    e.lastError,
		Abandoned:    abandoned,
	}, nil
}

// RetryAbandoned moves an abandoned (or rejected) mutation back to pending
// with a fresh retry budget and wakes the loop.
func (e *Engine) RetryAbandoned(ctx context.Context, id string) error {
	if err := e.repos.Queue.Requeue(ctx, id); err != nil {
		return err
	}
	e.Notify()
	return nil
}

// DiscardAbandoned gives up on an abandoned mutation: the authority's state
// stands, and an audit entry records that the local change was overwritten.
func (e *Engine) DiscardAbandoned(ctx context.Context, id string) error {
	m, err := e.repos.Queue.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if m.Status != model.StatusAbandoned {
		return fmt.Errorf("mutation %s is %s, not abandoned", id, m.Status)
	}
	if m.TenantID != e.sc.TenantID {
		return common.ErrTenantMismatch
	}

	localVersion := int64(0)
	if m.ExpectedVersion != nil {
		localVersion = *m.ExpectedVersion
	}

	return dbx.WithTx(ctx, e.repos.DB, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := storeConflict(ctx, tx, &model.ConflictLogEntry{
			TenantID:     m.TenantID,
			EntityType:   m.EntityType,
			EntityID:     m.EntityID,
			LocalVersion: localVersion,
			Resolution:   model.ResolutionOverwritten,
			Actor:        e.sc.Holder(),
		}); err != nil {
			return err
		}
		return queue.NewSQLiteRepository(tx).MarkStatus(ctx, id, model.StatusRejected, "discarded by user")
	})
}

// Conflicts returns the tenant's most recent conflict audit entries.
func (e *Engine) Conflicts(ctx context.Context, limit int) ([]model.ConflictLogEntry, error) {
	return e.repos.Conflicts.ListByTenant(ctx, e.sc.TenantID, limit)
}

// loop is the single dispatcher: relay events, notifications and the poll
// ticker all funnel into one cycle runner, so there is never more than one
// drain in flight per session.
func (e *Engine) loop(ctx context.Context) {
	ticker := time.NewTicker(e.cfg.PollInterval)
	defer ticker.Stop()

	var events <-chan model.RelayEvent
	if e.events != nil {
		events = e.events.Events()
	}

	backoff := e.newBackoff()

	for {
		select {
		case <-ctx.Done():
			return
		case <-e.notify:
		case <-ticker.C:
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			e.logger.Debug(ctx, "relay event", "entity", ev.EntityType+"/"+ev.EntityID, "version", ev.Version)
		}

		if err := e.runCycle(ctx); err != nil {
			delay, _ := backoff.Next()
			e.logger.Warn(ctx, "sync cycle failed, backing off", "delay", delay, "error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}
			e.Notify()
			continue
		}
		backoff = e.newBackoff()
	}
}

func (e *Engine) newBackoff() retry.Backoff {
	return retry.WithCappedDuration(e.cfg.BackoffMax, retry.NewExponential(e.cfg.BackoffMin))
}

// runCycle executes push then pull, honoring the single-drain gate: a
// concurrent caller marks a rerun instead of starting a second drain, and
// the running cycle picks the rerun up before releasing the gate.
func (e *Engine) runCycle(ctx context.Context) error {
	e.mu.Lock()
	if e.inCycle {
		e.rerun = true
		e.mu.Unlock()
		return nil
	}
	e.inCycle = true
	e.state = StateSyncing
	e.mu.Unlock()

	var cycleErr error
	for {
		cycleErr = e.cycle(ctx)

		e.mu.Lock()
		if cycleErr == nil && e.rerun {
			e.rerun = false
			e.mu.Unlock()
			continue
		}
		e.rerun = false
		e.inCycle = false
		if cycleErr != nil {
			e.state = StateError
			e.lastError = cycleErr.Error()
		} else {
			e.state = StateIdle
			e.lastError = ""
			e.lastSyncedAt = time.Now()
		}
		e.mu.Unlock()
		return cycleErr
	}
}

// cycle is one push+pull pass.
func (e *Engine) cycle(ctx context.Context) error {
	sent, err := e.pusher.Drain(ctx)
	if err != nil {
		return fmt.Errorf("push: %w", err)
	}

	applied, err := e.puller.Pull(ctx)
	if err != nil {
		return fmt.Errorf("pull: %w", err)
	}

	if sent > 0 {
		if _, err := e.repos.Queue.PurgeAcknowledged(ctx, e.sc.TenantID); err != nil {
			return fmt.Errorf("purge: %w", err)
		}
	}

	if sent > 0 || applied > 0 {
		e.logger.Info(ctx, "sync cycle finished", "pushed", sent, "pulled", applied)
	}
	return nil
}
