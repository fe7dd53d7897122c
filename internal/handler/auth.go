package handler

import (
	"net/http"
	"strings"

	"github.com/planora/hub/internal/middleware"
	"github.com/planora/hub/internal/service"
)

type AuthHandler struct {
	svc *service.AuthService
}

func NewAuthHandler(svc *service.AuthService) *AuthHandler {
	return &AuthHandler{svc: svc}
}

// GET /v1/auth/bootstrap/status
func (h *AuthHandler) BootstrapStatus(w http.ResponseWriter, r *http.Request) {
	done, err := h.svc.IsBootstrapComplete(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "E_INTERNAL", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"setup_completed": done})
}

// POST /v1/auth/bootstrap/admin
func (h *AuthHandler) BootstrapAdmin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
		Name     string `json:"display_name"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "E_BAD_REQUEST", "invalid body")
		return
	}
	if err := h.svc.BootstrapAdmin(r.Context(), req.Email, req.Password, req.Name); err != nil {
		writeError(w, http.StatusConflict, "E_ALREADY_BOOTSTRAPPED", err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, map[string]bool{"setup_completed": true})
}

// POST /v1/auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "E_BAD_REQUEST", "invalid body")
		return
	}
	token, err := h.svc.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "E_UNAUTHORIZED", "invalid credentials")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

// POST /v1/auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	header := r.Header.Get("Authorization")
	token := strings.TrimPrefix(header, "Bearer ")
	if err := h.svc.Logout(r.Context(), token); err != nil {
		writeError(w, http.StatusInternalServerError, "E_INTERNAL", err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GET /v1/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromCtx(r.Context())
	if user == nil {
		writeError(w, http.StatusUnauthorized, "E_UNAUTHORIZED", "no principal")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"user_id":         user.UserID,
		"email":           user.Email,
		"display_name":    user.DisplayName,
		"current_team_id": user.CurrentTeamID,
	})
}

// POST /v1/me/team
func (h *AuthHandler) SwitchTeam(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromCtx(r.Context())
	if user == nil {
		writeError(w, http.StatusUnauthorized, "E_UNAUTHORIZED", "no principal")
		return
	}
	var req struct {
		TeamID int64 `json:"team_id"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "E_BAD_REQUEST", "invalid body")
		return
	}
	if err := h.svc.SwitchTeam(r.Context(), user.UserID, req.TeamID); err != nil {
		writeError(w, http.StatusUnprocessableEntity, "E_VALIDATION", err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
