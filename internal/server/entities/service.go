package entities

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rafikhanmanyar-star/pbookspro-sync/internal/common"
	"github.com/rafikhanmanyar-star/pbookspro-sync/internal/logging"
	"github.com/rafikhanmanyar-star/pbookspro-sync/internal/model"
	"github.com/rafikhanmanyar-star/pbookspro-sync/internal/server/config"
	"github.com/rafikhanmanyar-star/pbookspro-sync/internal/server/locks"
)

// Publisher delivers relay events after accepted writes. Satisfied by the
// relay hub; nil-safe via the service's guard.
type Publisher interface {
	Publish(ctx context.Context, ev model.RelayEvent) error
}

// LockDeniedError names who holds the lease a write ran into. It matches
// common.ErrLockDenied under errors.Is.
type LockDeniedError struct {
	Holder    string
	ExpiresAt time.Time
}

func (e *LockDeniedError) Error() string {
	return fmt.Sprintf("entity locked by %s until %s", e.Holder, e.ExpiresAt.Format(time.RFC3339))
}

func (e *LockDeniedError) Is(target error) bool { return target == common.ErrLockDenied }

type Service struct {
	repo      Repository
	locks     *locks.Service
	publisher Publisher
	logger    logging.Logger
	maxPage   int
}

func NewService(repo Repository, locks *locks.Service, publisher Publisher, cfg *config.Config, logger logging.Logger) *Service {
	return &Service{
		repo:      repo,
		locks:     locks,
		publisher: publisher,
		logger:    logger.With("module", "entities"),
		maxPage:   cfg.MaxPageSize,
	}
}

func validate(req *model.WriteRequest) error {
	if req.EntityType == "" || req.EntityID == "" || req.IdempotencyKey == "" {
		return fmt.Errorf("%w: entityType, entityId and idempotencyKey are required", common.ErrMalformedPayload)
	}
	switch req.Op {
	case model.OpCreate:
		if req.ExpectedVersion != nil {
			return fmt.Errorf("%w: create must not carry an expected version", common.ErrMalformedPayload)
		}
	case model.OpUpdate, model.OpDelete:
		if req.ExpectedVersion == nil {
			return fmt.Errorf("%w: %s requires an expected version", common.ErrMalformedPayload, req.Op)
		}
	default:
		return fmt.Errorf("%w: unknown op %q", common.ErrMalformedPayload, req.Op)
	}
	if req.Op != model.OpDelete {
		if !json.Valid(req.Payload) {
			return fmt.Errorf("%w: payload is not valid JSON", common.ErrMalformedPayload)
		}
	}
	return nil
}

// Write arbitrates one mutation. The sequence a client observes:
// malformed input is refused outright; a live lease held by someone else
// denies the write; a stale expected version loses with the current record
// attached; everything else commits, is audited on conflict, and is
// announced to the relay on success.
func (s *Service) Write(ctx context.Context, tenantID, actor string, req *model.WriteRequest) (*model.EntityRecord, error) {
	if err := validate(req); err != nil {
		return nil, err
	}

	lease, err := s.locks.Holder(ctx, tenantID, req.EntityType, req.EntityID)
	if err != nil {
		return nil, err
	}
	if lease != nil && lease.Holder != actor {
		return nil, &LockDeniedError{Holder: lease.Holder, ExpiresAt: lease.ExpiresAt}
	}

	rec, err := s.repo.Write(ctx, &Write{
		TenantID:        tenantID,
		EntityType:      req.EntityType,
		EntityID:        req.EntityID,
		Op:              req.Op,
		Payload:         req.Payload,
		ExpectedVersion: req.ExpectedVersion,
		IdempotencyKey:  req.IdempotencyKey,
		Actor:           actor,
	})
	if err != nil {
		if errors.Is(err, common.ErrVersionConflict) && rec != nil {
			if auditErr := s.repo.AppendConflict(ctx, &model.ConflictLogEntry{
				TenantID:      tenantID,
				EntityType:    req.EntityType,
				EntityID:      req.EntityID,
				LocalVersion:  derefVersion(req.ExpectedVersion),
				ServerVersion: rec.Version,
				Resolution:    model.ResolutionRejected,
				Actor:         actor,
			}); auditErr != nil {
				s.logger.Error(ctx, "failed to audit conflict", "error", auditErr)
			}
		}
		return rec, err
	}

	if s.publisher != nil {
		if pubErr := s.publisher.Publish(ctx, model.RelayEvent{
			TenantID:   rec.TenantID,
			EntityType: rec.EntityType,
			EntityID:   rec.EntityID,
			Version:    rec.Version,
		}); pubErr != nil {
			// Relay is best-effort: subscribers fall back to the poll timer.
			s.logger.Warn(ctx, "failed to publish relay event", "error", pubErr)
		}
	}

	return rec, nil
}

// ListChangedSince returns one page of the tenant's change feed in
// acceptance order.
func (s *Service) ListChangedSince(ctx context.Context, tenantID string, since int64, limit int) (*model.ChangePage, error) {
	if limit <= 0 || limit > s.maxPage {
		limit = s.maxPage
	}

	records, err := s.repo.ListChangedSince(ctx, tenantID, since, limit)
	if err != nil {
		return nil, err
	}

	page := &model.ChangePage{Records: records, NextSeq: since}
	if len(records) > 0 {
		page.NextSeq = records[len(records)-1].ChangeSeq
	}
	page.HasMore = len(records) == limit
	return page, nil
}

func derefVersion(v *int64) int64 {
	if v == nil {
		return 0
	}
	return *v
}
