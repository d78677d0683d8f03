package locks

import (
	"context"
	"errors"
	"time"

	"github.com/rafikhanmanyar-star/pbookspro-sync/internal/common"
	"github.com/rafikhanmanyar-star/pbookspro-sync/internal/model"
	"github.com/rafikhanmanyar-star/pbookspro-sync/internal/server/config"
)

type Service struct {
	repo       Repository
	defaultTTL time.Duration
	maxTTL     time.Duration
}

func NewService(repo Repository, cfg *config.Config) *Service {
	return &Service{
		repo:       repo,
		defaultTTL: cfg.DefaultLockTTL,
		maxTTL:     cfg.MaxLockTTL,
	}
}

// Acquire claims an edit lease for holder. A zero ttl uses the server
// default; requests beyond the maximum are clamped, so a client cannot
// park a lease forever.
func (s *Service) Acquire(ctx context.Context, tenantID, entityType, entityID, holder string, ttl time.Duration) (*model.LockLease, error) {
	if ttl <= 0 {
		ttl = s.defaultTTL
	}
	if ttl > s.maxTTL {
		ttl = s.maxTTL
	}

	now := time.Now()
	return s.repo.Acquire(ctx, &model.LockLease{
		TenantID:   tenantID,
		EntityType: entityType,
		EntityID:   entityID,
		Holder:     holder,
		AcquiredAt: now,
		ExpiresAt:  now.Add(ttl),
	})
}

func (s *Service) Release(ctx context.Context, tenantID, entityType, entityID, holder string) error {
	return s.repo.Release(ctx, tenantID, entityType, entityID, holder)
}

// Holder reports the live lease for an entity, or nil when none is held.
func (s *Service) Holder(ctx context.Context, tenantID, entityType, entityID string) (*model.LockLease, error) {
	lease, err := s.repo.Get(ctx, tenantID, entityType, entityID)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	if lease.Expired(time.Now()) {
		return nil, nil
	}
	return lease, nil
}
