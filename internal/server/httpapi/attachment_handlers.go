package httpapi

import (
	"errors"
	"net/http"

	"github.com/rafikhanmanyar-star/pbookspro-sync/internal/common"
)

type presignGetRequest struct {
	Key string `json:"key"`
}

func (s *Server) handlePresignPut(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r)

	key, url, err := s.attachments.GetPresignedPutUrl(r.Context(), claims.TenantID)
	if err != nil {
		s.logger.Error(r.Context(), "presign put failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"key": key, "url": url})
}

func (s *Server) handlePresignGet(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r)

	var req presignGetRequest
	if err := decodeJSON(r, &req); err != nil || req.Key == "" {
		writeError(w, http.StatusBadRequest, common.ErrMalformedPayload.Error())
		return
	}

	url, err := s.attachments.GetPresignedGetUrl(r.Context(), claims.TenantID, req.Key)
	if err != nil {
		if errors.Is(err, common.ErrTenantMismatch) {
			writeError(w, http.StatusForbidden, common.ErrTenantMismatch.Error())
			return
		}
		s.logger.Error(r.Context(), "presign get failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"url": url})
}
