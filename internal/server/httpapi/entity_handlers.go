package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/rafikhanmanyar-star/pbookspro-sync/internal/common"
	"github.com/rafikhanmanyar-star/pbookspro-sync/internal/model"
	"github.com/rafikhanmanyar-star/pbookspro-sync/internal/server/entities"
)

func (s *Server) handleWrite(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r)

	var req model.WriteRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, common.ErrMalformedPayload.Error())
		return
	}

	rec, err := s.entities.Write(r.Context(), claims.TenantID, actorOf(claims), &req)
	if err != nil {
		var denied *entities.LockDeniedError
		switch {
		case errors.Is(err, common.ErrMalformedPayload):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.As(err, &denied):
			writeJSON(w, http.StatusLocked, model.LockDeniedResult{
				Holder:    denied.Holder,
				ExpiresAt: denied.ExpiresAt.Format(time.RFC3339),
			})
		case errors.Is(err, common.ErrVersionConflict) && rec != nil:
			writeJSON(w, http.StatusConflict, model.ConflictResult{
				CurrentVersion: rec.Version,
				Record:         *rec,
			})
		case errors.Is(err, common.ErrNotFound):
			writeError(w, http.StatusNotFound, common.ErrNotFound.Error())
		default:
			s.logger.Error(r.Context(), "entity write failed", "entityType", req.EntityType,
				"entityId", req.EntityID, "error", err)
			writeError(w, http.StatusInternalServerError, "internal error")
		}
		return
	}

	writeJSON(w, http.StatusOK, model.WriteResult{Record: *rec})
}

func (s *Server) handleChanges(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r)

	since, err := strconv.ParseInt(r.URL.Query().Get("since"), 10, 64)
	if err != nil || since < 0 {
		writeError(w, http.StatusBadRequest, "since must be a non-negative integer")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	page, err := s.entities.ListChangedSince(r.Context(), claims.TenantID, since, limit)
	if err != nil {
		s.logger.Error(r.Context(), "change feed query failed", "since", since, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, page)
}
