package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"relay/internal/pkg/errors"
	"relay/internal/platform/auth"
	"relay/internal/platform/models"
	"relay/internal/platform/repositories"
	"relay/internal/tenant"
)

type AuthHandler struct {
	users    *repositories.TenantUserRepository
	tenants  *tenant.StorageService
	security *tenant.SecurityService
	tokenSvc *auth.TokenService
}

func NewAuthHandler(users *repositories.TenantUserRepository, tenants *tenant.StorageService, security *tenant.SecurityService, tokenSvc *auth.TokenService) *AuthHandler {
	return &AuthHandler{
		users:    users,
		tenants:  tenants,
		security: security,
		tokenSvc: tokenSvc,
	}
}

type LoginRequest struct {
	TenantSlug string `json:"tenant_slug"`
	Email      string `json:"email"`
	Password   string `json:"password"`
}

type LoginResponse struct {
	User    *models.TenantUser  `json:"user"`
	Session *tenant.SessionPair `json:"session"`
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, "Invalid request body", nil)
		return
	}
	if req.TenantSlug == "" || req.Email == "" || req.Password == "" {
		errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, "tenant_slug, email and password are required", nil)
		return
	}

	t, err := h.tenants.GetBySlug(r.Context(), req.TenantSlug)
	if err != nil {
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Database error", nil)
		return
	}
	if t == nil || t.Status != "active" {
		errors.WriteError(w, http.StatusUnauthorized, errors.ErrCodeUnauthorized, "Invalid credentials", nil)
		return
	}

	user, err := h.users.GetByEmail(t.ID, req.Email)
	if err != nil {
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Database error", nil)
		return
	}
	if user == nil || !tenant.VerifyPassword(user.PasswordHash, req.Password) {
		errors.WriteError(w, http.StatusUnauthorized, errors.ErrCodeUnauthorized, "Invalid credentials", nil)
		return
	}
	if user.Status != "active" {
		errors.WriteError(w, http.StatusForbidden, errors.ErrCodeForbidden, "User account is not active", nil)
		return
	}

	session, err := h.security.IssueSession(t, user)
	if err != nil {
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Failed to generate session", nil)
		return
	}

	if err := h.users.UpdateLastLogin(user.ID, time.Now().Unix()); err == nil {
		user.LastLoginAt = ptrInt64(time.Now().Unix())
	}

	errors.WriteJSON(w, http.StatusOK, LoginResponse{User: user, Session: session})
}

type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, "Invalid request body", nil)
		return
	}

	claims, err := h.tokenSvc.ValidateToken(req.RefreshToken)
	if err != nil {
		errors.WriteError(w, http.StatusUnauthorized, errors.ErrCodeUnauthorized, "Invalid or expired refresh token", nil)
		return
	}

	// Refresh tokens carry only the subject.
	user, err := h.users.GetByID(claims.Subject)
	if err != nil {
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Database error", nil)
		return
	}
	if user == nil || user.Status != "active" {
		errors.WriteError(w, http.StatusUnauthorized, errors.ErrCodeUnauthorized, "Invalid refresh token", nil)
		return
	}

	t, err := h.tenants.Get(r.Context(), user.TenantID)
	if err != nil || t == nil {
		errors.WriteError(w, http.StatusUnauthorized, errors.ErrCodeUnauthorized, "Tenant unavailable", nil)
		return
	}

	session, err := h.security.IssueSession(t, user)
	if err != nil {
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Failed to generate session", nil)
		return
	}

	errors.WriteJSON(w, http.StatusOK, session)
}

func ptrInt64(v int64) *int64 { return &v }
