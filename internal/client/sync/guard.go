package sync

import (
	"fmt"

	"github.com/rafikhanmanyar-star/pbookspro-sync/internal/common"
	"github.com/rafikhanmanyar-star/pbookspro-sync/internal/model"
)

// guard is the tenant isolation check applied at every boundary: mutations
// are stamped with the session tenant before enqueueing, and no pulled or
// relayed record is applied unless its tenant matches the session.
type guard struct {
	sc Context
}

// stamp overwrites the mutation's tenant and device with the session's
// values. Caller-supplied identifiers are never trusted.
func (g guard) stamp(m *model.Mutation) {
	m.TenantID = g.sc.TenantID
	m.DeviceID = g.sc.DeviceID
}

// checkRecord rejects any record whose tenant differs from the session's.
func (g guard) checkRecord(rec *model.EntityRecord) error {
	if rec.TenantID != g.sc.TenantID {
		return fmt.Errorf("%w: record tenant %q, session tenant %q",
			common.ErrTenantMismatch, rec.TenantID, g.sc.TenantID)
	}
	return nil
}

// checkMutation rejects queued rows that do not belong to the session
// tenant. The queue is keyed by tenant, so a mismatch here means local
// corruption; the row is dropped from delivery, never sent.
func (g guard) checkMutation(m *model.Mutation) error {
	if m.TenantID != g.sc.TenantID {
		return fmt.Errorf("%w: mutation tenant %q, session tenant %q",
			common.ErrTenantMismatch, m.TenantID, g.sc.TenantID)
	}
	return nil
}
