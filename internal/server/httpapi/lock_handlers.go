package httpapi

import (
	"errors"
	"net/http"
	"time"

	"github.com/rafikhanmanyar-star/pbookspro-sync/internal/common"
	"github.com/rafikhanmanyar-star/pbookspro-sync/internal/model"
)

func (s *Server) handleLockAcquire(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r)

	var req model.LockRequest
	if err := decodeJSON(r, &req); err != nil || req.EntityType == "" || req.EntityID == "" {
		writeError(w, http.StatusBadRequest, common.ErrMalformedPayload.Error())
		return
	}

	// The holder is always the authenticated session, never the body: a
	// client cannot claim a lease on someone else's behalf.
	lease, err := s.locks.Acquire(r.Context(), claims.TenantID, req.EntityType, req.EntityID,
		actorOf(claims), time.Duration(req.TTLSeconds)*time.Second)
	if err != nil {
		if errors.Is(err, common.ErrLockDenied) {
			res := model.LockDeniedResult{}
			if lease != nil {
				res.Holder = lease.Holder
				res.ExpiresAt = lease.ExpiresAt.Format(time.RFC3339)
			}
			writeJSON(w, http.StatusLocked, res)
			return
		}
		s.logger.Error(r.Context(), "lock acquire failed", "entityType", req.EntityType,
			"entityId", req.EntityID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"holder":    lease.Holder,
		"expiresAt": lease.ExpiresAt.Format(time.RFC3339),
	})
}

func (s *Server) handleLockRelease(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r)

	var req model.LockRequest
	if err := decodeJSON(r, &req); err != nil || req.EntityType == "" || req.EntityID == "" {
		writeError(w, http.StatusBadRequest, common.ErrMalformedPayload.Error())
		return
	}

	// Releasing an expired or already-gone lease is a no-op.
	if err := s.locks.Release(r.Context(), claims.TenantID, req.EntityType, req.EntityID, actorOf(claims)); err != nil {
		s.logger.Error(r.Context(), "lock release failed", "entityType", req.EntityType,
			"entityId", req.EntityID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "released"})
}
