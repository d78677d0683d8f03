package sync

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rafikhanmanyar-star/pbookspro-sync/internal/client/config"
	"github.com/rafikhanmanyar-star/pbookspro-sync/internal/client/repositories/checkpoints"
	"github.com/rafikhanmanyar-star/pbookspro-sync/internal/client/repositories/entities"
	"github.com/rafikhanmanyar-star/pbookspro-sync/internal/client/store"
	"github.com/rafikhanmanyar-star/pbookspro-sync/internal/client/transport"
	"github.com/rafikhanmanyar-star/pbookspro-sync/internal/dbx"
	"github.com/rafikhanmanyar-star/pbookspro-sync/internal/logging"
	"github.com/rafikhanmanyar-star/pbookspro-sync/internal/model"
)

// Puller replays the authority's change feed into the local entity cache,
// one page per transaction, advancing the checkpoint only after the page is
// durably applied. A crash mid-page leaves the checkpoint behind, so the
// next pull reprocesses the page; ApplyIfNewer makes that replay a no-op.
type Puller struct {
	sc        Context
	cfg       *config.Config
	repos     *store.Repositories
	authority transport.Authority
	locks     *entityLocks
	logger    logging.Logger
	g         guard
}

// NewPuller builds a puller for one session.
func NewPuller(sc Context, cfg *config.Config, repos *store.Repositories,
	authority transport.Authority, locks *entityLocks, logger logging.Logger) *Puller {
	return &Puller{
		sc:        sc,
		cfg:       cfg,
		repos:     repos,
		authority: authority,
		locks:     locks,
		logger:    logger.With("module", "pull", "tenant", sc.TenantID),
		g:         guard{sc: sc},
	}
}

// Pull fetches and applies every change past the stored checkpoint. It
// reports how many records were applied.
func (p *Puller) Pull(ctx context.Context) (int, error) {
	cp, err := p.repos.Checkpoints.Get(ctx, p.sc.TenantID, p.sc.DeviceID)
	if err != nil {
		return 0, fmt.Errorf("failed to load checkpoint: %w", err)
	}

	applied := 0
	since := cp.LastSeq

	for {
		if ctx.Err() != nil {
			return applied, ctx.Err()
		}

		page, err := p.authority.ListChangedSince(ctx, since, p.cfg.PullPageSize)
		if err != nil {
			return applied, err
		}
		if len(page.Records) == 0 {
			return applied, nil
		}

		n, err := p.applyPage(ctx, page)
		if err != nil {
			return applied, err
		}
		applied += n
		since = page.NextSeq

		if !page.HasMore {
			return applied, nil
		}
	}
}

// applyPage commits one page of changes and the advanced checkpoint in a
// single transaction. Local write locks for every entity in the page are
// taken up front, in sorted key order, so the push acknowledgement path
// cannot interleave on the same rows.
func (p *Puller) applyPage(ctx context.Context, page *model.ChangePage) (int, error) {
	unlock := p.lockPage(page)
	defer unlock()

	applied := 0
	err := dbx.WithTx(ctx, p.repos.DB, nil, func(ctx context.Context, tx dbx.DBTX) error {
		entrepo := entities.NewSQLiteRepository(tx)

		for i := range page.Records {
			rec := &page.Records[i]
			if err := p.g.checkRecord(rec); err != nil {
				p.logger.Error(ctx, "discarding record from change feed", "entity",
					rec.EntityType+"/"+rec.EntityID, "error", err)
				if err := storeConflict(ctx, tx, &model.ConflictLogEntry{
					TenantID:      p.sc.TenantID,
					EntityType:    rec.EntityType,
					EntityID:      rec.EntityID,
					ServerVersion: rec.Version,
					Resolution:    model.ResolutionRejected,
					Actor:         p.sc.Holder(),
				}); err != nil {
					return err
				}
				continue
			}

			ok, err := entrepo.ApplyIfNewer(ctx, rec)
			if err != nil {
				return err
			}
			if ok {
				applied++
			}
		}

		return checkpoints.NewSQLiteRepository(tx).Advance(
			ctx, p.sc.TenantID, p.sc.DeviceID, page.NextSeq, time.Now())
	})
	if err != nil {
		return 0, fmt.Errorf("failed to apply change page: %w", err)
	}

	p.logger.Debug(ctx, "change page applied",
		"records", len(page.Records), "applied", applied, "nextSeq", page.NextSeq)
	return applied, nil
}

// lockPage takes the local write lock for each distinct entity in the page
// and returns a func releasing them all.
func (p *Puller) lockPage(page *model.ChangePage) func() {
	keys := make(map[string][2]string, len(page.Records))
	for _, rec := range page.Records {
		keys[rec.EntityType+"/"+rec.EntityID] = [2]string{rec.EntityType, rec.EntityID}
	}
	sorted := make([]string, 0, len(keys))
	for k := range keys {
		sorted = append(sorted, k)
	}
	sort.Strings(sorted)

	unlocks := make([]func(), 0, len(sorted))
	for _, k := range sorted {
		id := keys[k]
		unlocks = append(unlocks, p.locks.Lock(id[0], id[1]))
	}
	return func() {
		for i := len(unlocks) - 1; i >= 0; i-- {
			unlocks[i]()
		}
	}
}
