package httpapi

import (
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/rafikhanmanyar-star/pbookspro-sync/internal/common"
)

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	DeviceID string `json:"deviceId"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
	DeviceID     string `json:"deviceId"`
}

type tokenResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	UserID       string `json:"userId,omitempty"`
	TenantID     string `json:"tenantId,omitempty"`
}

// handleRegister provisions a fresh tenant owned by the new account and
// signs the caller in.
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeJSON(r, &req); err != nil || req.Username == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, common.ErrMalformedPayload.Error())
		return
	}

	if _, err := s.users.Register(r.Context(), uuid.NewString(), req.Username, req.Password); err != nil {
		s.logger.Error(r.Context(), "registration failed", "username", req.Username, "error", err)
		writeError(w, http.StatusConflict, "username already taken")
		return
	}

	user, pair, err := s.users.Login(r.Context(), req.Username, req.Password, req.DeviceID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, tokenResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		UserID:       user.ID,
		TenantID:     user.TenantID,
	})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeJSON(r, &req); err != nil || req.Username == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, common.ErrMalformedPayload.Error())
		return
	}

	user, pair, err := s.users.Login(r.Context(), req.Username, req.Password, req.DeviceID)
	if err != nil {
		if errors.Is(err, common.ErrUnauthorized) {
			writeError(w, http.StatusUnauthorized, common.ErrUnauthorized.Error())
			return
		}
		s.logger.Error(r.Context(), "login failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, tokenResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		UserID:       user.ID,
		TenantID:     user.TenantID,
	})
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := decodeJSON(r, &req); err != nil || req.RefreshToken == "" {
		writeError(w, http.StatusBadRequest, common.ErrMalformedPayload.Error())
		return
	}

	pair, err := s.users.Refresh(r.Context(), req.RefreshToken, req.DeviceID)
	if err != nil {
		if errors.Is(err, common.ErrRefreshTokenExpired) {
			writeError(w, http.StatusUnauthorized, common.ErrRefreshTokenExpired.Error())
			return
		}
		s.logger.Error(r.Context(), "token refresh failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, tokenResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
	})
}
