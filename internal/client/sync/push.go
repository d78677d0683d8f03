package sync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/rafikhanmanyar-star/pbookspro-sync/internal/client/config"
	"github.com/rafikhanmanyar-star/pbookspro-sync/internal/client/repositories/conflicts"
	"github.com/rafikhanmanyar-star/pbookspro-sync/internal/client/repositories/entities"
	"github.com/rafikhanmanyar-star/pbookspro-sync/internal/client/repositories/queue"
	"github.com/rafikhanmanyar-star/pbookspro-sync/internal/client/store"
	"github.com/rafikhanmanyar-star/pbookspro-sync/internal/client/transport"
	"github.com/rafikhanmanyar-star/pbookspro-sync/internal/common"
	"github.com/rafikhanmanyar-star/pbookspro-sync/internal/dbx"
	"github.com/rafikhanmanyar-star/pbookspro-sync/internal/logging"
	"github.com/rafikhanmanyar-star/pbookspro-sync/internal/model"
)

// drainBatchSize bounds how many pending mutations one drain loads at once.
const drainBatchSize = 100

// Pusher drains the durable change queue into the authority: pending rows
// go out in enqueue order, one in flight per entity, each carrying its
// mutation id as the idempotency key.
type Pusher struct {
	sc        Context
	cfg       *config.Config
	repos     *store.Repositories
	authority transport.Authority
	locks     *entityLocks
	logger    logging.Logger
	g         guard
}

// NewPusher builds a pusher for one session.
func NewPusher(sc Context, cfg *config.Config, repos *store.Repositories,
	authority transport.Authority, locks *entityLocks, logger logging.Logger) *Pusher {
	return &Pusher{
		sc:        sc,
		cfg:       cfg,
		repos:     repos,
		authority: authority,
		locks:     locks,
		logger:    logger.With("module", "push", "tenant", sc.TenantID),
		g:         guard{sc: sc},
	}
}

// Drain delivers the tenant's pending mutations until the batch is done or
// the network fails. It reports how many mutations were acknowledged.
//
// Per-entity ordering is preserved by a skip set: once a mutation for an
// entity fails to land, later mutations for that entity stay pending so
// they never arrive out of order. A network error aborts the whole drain;
// the caller is expected to back off and call again.
func (p *Pusher) Drain(ctx context.Context) (int, error) {
	// A crash or cancellation can strand a row mid-flight in sending; the
	// mutation id is the idempotency key, so putting it back in line is safe.
	recovered, err := p.repos.Queue.RecoverSending(ctx, p.sc.TenantID)
	if err != nil {
		return 0, fmt.Errorf("failed to recover in-flight mutations: %w", err)
	}
	if recovered > 0 {
		p.logger.Warn(ctx, "recovered in-flight mutations", "count", recovered)
	}

	pending, err := p.repos.Queue.PeekPending(ctx, p.sc.TenantID, drainBatchSize)
	if err != nil {
		return 0, fmt.Errorf("failed to peek pending mutations: %w", err)
	}

	sent := 0
	skip := make(map[string]struct{})

	for _, m := range pending {
		if ctx.Err() != nil {
			return sent, ctx.Err()
		}

		key := m.EntityType + "/" + m.EntityID
		if _, blocked := skip[key]; blocked {
			continue
		}

		if err := p.g.checkMutation(m); err != nil {
			p.logger.Error(ctx, "dropping mutation from delivery", "mutation", m.ID, "error", err)
			if err := p.abandonForeign(ctx, m, err); err != nil {
				return sent, err
			}
			continue
		}

		ok, err := p.deliver(ctx, m)
		if err != nil {
			return sent, err
		}
		if ok {
			sent++
		} else {
			skip[key] = struct{}{}
		}
	}

	return sent, nil
}

// abandonForeign takes a tenant-mismatched queue row out of delivery and
// leaves an audit entry, both in one transaction. The row is never retried.
func (p *Pusher) abandonForeign(ctx context.Context, m *model.Mutation, cause error) error {
	return dbx.WithTx(ctx, p.repos.DB, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := storeConflict(ctx, tx, &model.ConflictLogEntry{
			TenantID:   p.sc.TenantID,
			EntityType: m.EntityType,
			EntityID:   m.EntityID,
			Resolution: model.ResolutionRejected,
			Actor:      p.sc.Holder(),
		}); err != nil {
			return err
		}
		return queue.NewSQLiteRepository(tx).MarkStatus(ctx, m.ID, model.StatusAbandoned, cause.Error())
	})
}

// deliver pushes one mutation. It returns (true, nil) on acknowledgement,
// (false, nil) when the mutation reached a terminal or retry-later state,
// and a non-nil error only when the drain itself must stop.
func (p *Pusher) deliver(ctx context.Context, m *model.Mutation) (bool, error) {
	if err := p.repos.Queue.MarkStatus(ctx, m.ID, model.StatusSending, ""); err != nil {
		return false, err
	}

	holder := p.sc.Holder()
	if err := p.authority.AcquireLock(ctx, m.EntityType, m.EntityID, holder, p.cfg.LockTTL); err != nil {
		return false, p.recordFailure(ctx, m, err)
	}
	defer func() {
		if err := p.authority.ReleaseLock(ctx, m.EntityType, m.EntityID, holder); err != nil {
			p.logger.Warn(ctx, "failed to release edit lease", "mutation", m.ID, "error", err)
		}
	}()

	result, conflict, err := p.authority.Write(ctx, model.WriteRequest{
		EntityType:      m.EntityType,
		EntityID:        m.EntityID,
		Op:              m.Op,
		Payload:         m.Payload,
		ExpectedVersion: m.ExpectedVersion,
		IdempotencyKey:  m.ID,
	})

	switch {
	case err == nil:
		return true, p.acknowledge(ctx, m, &result.Record)
	case errors.Is(err, common.ErrVersionConflict):
		return false, p.resolveConflict(ctx, m, conflict)
	default:
		return false, p.recordFailure(ctx, m, err)
	}
}

// acknowledge commits the authority's accepted record and the queue status
// atomically, under the entity's local write lock so a concurrent pull
// cannot interleave on the same row.
func (p *Pusher) acknowledge(ctx context.Context, m *model.Mutation, rec *model.EntityRecord) error {
	if err := p.g.checkRecord(rec); err != nil {
		return err
	}

	unlock := p.locks.Lock(m.EntityType, m.EntityID)
	defer unlock()

	err := dbx.WithTx(ctx, p.repos.DB, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := entities.NewSQLiteRepository(tx).Upsert(ctx, rec); err != nil {
			return err
		}
		return queue.NewSQLiteRepository(tx).MarkStatus(ctx, m.ID, model.StatusAcknowledged, "")
	})
	if err != nil {
		return fmt.Errorf("failed to commit acknowledgement: %w", err)
	}

	p.logger.Debug(ctx, "mutation acknowledged",
		"mutation", m.ID, "entity", m.EntityType+"/"+m.EntityID, "version", rec.Version)
	return nil
}

// resolveConflict handles a 409: the mutation's expected version lost the
// race. The local cache is refreshed to the authority's record either way;
// a merge gets a second life as a fresh mutation at the current version,
// a rejection is logged and surfaced.
func (p *Pusher) resolveConflict(ctx context.Context, m *model.Mutation, conflict *model.ConflictResult) error {
	server := &conflict.Record
	if err := p.g.checkRecord(server); err != nil {
		return err
	}

	base, err := p.repos.Entities.Get(ctx, m.TenantID, m.EntityType, m.EntityID)
	if err != nil && !errors.Is(err, common.ErrNotFound) {
		return err
	}

	res := Evaluate(m, server, base)

	unlock := p.locks.Lock(m.EntityType, m.EntityID)
	defer unlock()

	localVersion := int64(0)
	if m.ExpectedVersion != nil {
		localVersion = *m.ExpectedVersion
	}

	return dbx.WithTx(ctx, p.repos.DB, nil, func(ctx context.Context, tx dbx.DBTX) error {
		entrepo := entities.NewSQLiteRepository(tx)
		qrepo := queue.NewSQLiteRepository(tx)

		if _, err := entrepo.ApplyIfNewer(ctx, server); err != nil {
			return err
		}

		entry := &model.ConflictLogEntry{
			TenantID:      m.TenantID,
			EntityType:    m.EntityType,
			EntityID:      m.EntityID,
			LocalVersion:  localVersion,
			ServerVersion: server.Version,
			Actor:         p.sc.Holder(),
		}

		if res.Decision == DecisionMerge {
			retry := &model.Mutation{
				ID:              uuid.NewString(),
				EntityType:      m.EntityType,
				EntityID:        m.EntityID,
				Op:              model.OpUpdate,
				Payload:         res.MergedPayload,
				ExpectedVersion: &res.CurrentVersion,
				Status:          model.StatusPending,
				EnqueuedAt:      time.Now(),
			}
			p.g.stamp(retry)
			if err := qrepo.Enqueue(ctx, retry); err != nil {
				return err
			}
			entry.Resolution = model.ResolutionMerged
			if err := storeConflict(ctx, tx, entry); err != nil {
				return err
			}
			p.logger.Info(ctx, "conflict merged",
				"mutation", m.ID, "retry", retry.ID, "serverVersion", server.Version)
			return qrepo.MarkStatus(ctx, m.ID, model.StatusRejected,
				fmt.Sprintf("version conflict at %d: merged and requeued as %s", server.Version, retry.ID))
		}

		entry.Resolution = model.ResolutionRejected
		if err := storeConflict(ctx, tx, entry); err != nil {
			return err
		}
		p.logger.Warn(ctx, "conflict rejected",
			"mutation", m.ID, "expected", localVersion, "serverVersion", server.Version)
		return qrepo.MarkStatus(ctx, m.ID, model.StatusRejected,
			fmt.Sprintf("version conflict: authority at version %d", server.Version))
	})
}

// recordFailure bumps the retry counter for a failed attempt and decides
// between pending (retry on the next drain) and abandoned. Lease denials
// never count as attempts: the holder will let go. A network error still
// aborts the drain after the bookkeeping.
func (p *Pusher) recordFailure(ctx context.Context, m *model.Mutation, cause error) error {
	if errors.Is(cause, common.ErrLockDenied) {
		p.logger.Info(ctx, "edit lease held elsewhere, retrying later", "mutation", m.ID)
		return p.repos.Queue.MarkStatus(ctx, m.ID, model.StatusPending, cause.Error())
	}

	retries, err := p.repos.Queue.IncrementRetry(ctx, m.ID)
	if err != nil {
		return err
	}

	if retries >= p.cfg.PushMaxAttempts {
		p.logger.Error(ctx, "mutation abandoned after exhausted retries",
			"mutation", m.ID, "attempts", retries, "error", cause)
		if err := p.repos.Queue.MarkStatus(ctx, m.ID, model.StatusAbandoned,
			fmt.Sprintf("%v: %v", common.ErrExhaustedRetries, cause)); err != nil {
			return err
		}
	} else {
		if err := p.repos.Queue.MarkStatus(ctx, m.ID, model.StatusPending, cause.Error()); err != nil {
			return err
		}
	}

	if errors.Is(cause, common.ErrNetwork) {
		return cause
	}
	return nil
}

// storeConflict appends an audit entry on the caller's transaction.
func storeConflict(ctx context.Context, tx dbx.DBTX, e *model.ConflictLogEntry) error {
	return conflicts.NewSQLiteRepository(tx).Append(ctx, e)
}
