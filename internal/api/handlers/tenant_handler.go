package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/julienschmidt/httprouter"

	apiContext "relay/internal/api/context"
	"relay/internal/api/middleware"
	apiErrors "relay/internal/pkg/errors"
	"relay/internal/platform/audit"
	"relay/internal/platform/models"
	"relay/internal/platform/repositories"
	"relay/internal/tenant"
)

type TenantHandler struct {
	tenants *tenant.StorageService
	users   *repositories.TenantUserRepository
	audit   *audit.Logger
}

func NewTenantHandler(tenants *tenant.StorageService, users *repositories.TenantUserRepository, auditLog *audit.Logger) *TenantHandler {
	return &TenantHandler{
		tenants: tenants,
		users:   users,
		audit:   auditLog,
	}
}

type CreateTenantRequest struct {
	Slug              string                `json:"slug"`
	Name              string                `json:"name"`
	Domain            string                `json:"domain"`
	Subdomain         string                `json:"subdomain"`
	PlanTier          string                `json:"plan_tier"`
	IsolationStrategy string                `json:"isolation_strategy"`
	Security          models.SecurityPolicy `json:"security"`
	MaxUsers          int                   `json:"max_users"`
	MaxStorageMB      int                   `json:"max_storage_mb"`
	MaxOrders         int                   `json:"max_orders"`

	AdminEmail    string `json:"admin_email"`
	AdminPassword string `json:"admin_password"`
	AdminName     string `json:"admin_name"`
}

func (h *TenantHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateTenantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apiErrors.WriteError(w, http.StatusBadRequest, apiErrors.ErrCodeInvalidInput, "Invalid request body", nil)
		return
	}
	if req.Slug == "" || req.Name == "" {
		apiErrors.WriteError(w, http.StatusBadRequest, apiErrors.ErrCodeInvalidInput, "slug and name are required", nil)
		return
	}
	if req.AdminEmail == "" || req.AdminPassword == "" {
		apiErrors.WriteError(w, http.StatusBadRequest, apiErrors.ErrCodeInvalidInput, "admin_email and admin_password are required", nil)
		return
	}

	existing, err := h.tenants.GetBySlug(r.Context(), req.Slug)
	if err != nil {
		apiErrors.WriteError(w, http.StatusInternalServerError, apiErrors.ErrCodeInternal, "Database error", nil)
		return
	}
	if existing != nil {
		apiErrors.WriteError(w, http.StatusConflict, apiErrors.ErrCodeConflict, "A tenant with this slug already exists", nil)
		return
	}

	if err := tenant.ValidatePassword(req.Security.PasswordPolicy, req.AdminPassword); err != nil {
		apiErrors.WriteError(w, http.StatusBadRequest, apiErrors.ErrCodeInvalidInput, err.Error(), nil)
		return
	}

	t := &models.Tenant{
		Slug:              req.Slug,
		Name:              req.Name,
		Domain:            req.Domain,
		Subdomain:         req.Subdomain,
		PlanTier:          req.PlanTier,
		IsolationStrategy: req.IsolationStrategy,
		Security:          req.Security,
		MaxUsers:          req.MaxUsers,
		MaxStorageMB:      req.MaxStorageMB,
		MaxOrders:         req.MaxOrders,
	}

	if err := h.tenants.Create(r.Context(), t); err != nil {
		var verr *tenant.ValidationError
		if errors.As(err, &verr) {
			apiErrors.WriteError(w, http.StatusBadRequest, apiErrors.ErrCodeInvalidInput, "Invalid security policy", verr.Violations)
			return
		}
		apiErrors.WriteError(w, http.StatusInternalServerError, apiErrors.ErrCodeInternal, "Failed to create tenant", nil)
		return
	}

	hash, err := tenant.HashPassword(req.AdminPassword)
	if err != nil {
		apiErrors.WriteError(w, http.StatusInternalServerError, apiErrors.ErrCodeInternal, "Failed to hash password", nil)
		return
	}

	now := time.Now().Unix()
	admin := &models.TenantUser{
		ID:           "usr_" + uuid.New().String(),
		TenantID:     t.ID,
		Email:        req.AdminEmail,
		PasswordHash: hash,
		FullName:     req.AdminName,
		Roles:        []string{"admin"},
		Status:       "active",
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := h.users.Create(admin); err != nil {
		apiErrors.WriteError(w, http.StatusInternalServerError, apiErrors.ErrCodeInternal, "Tenant created but admin user failed", nil)
		return
	}

	h.audit.Log(r.Context(), "tenant.create", "tenant", t.ID, map[string]interface{}{
		"slug":      t.Slug,
		"isolation": t.IsolationStrategy,
	})

	apiErrors.WriteJSON(w, http.StatusCreated, map[string]interface{}{
		"tenant": t,
		"admin":  admin,
	})
}

func (h *TenantHandler) GetCurrent(w http.ResponseWriter, r *http.Request) {
	tc := r.Context().Value(apiContext.Tenant).(*middleware.TenantContext)
	apiErrors.WriteJSON(w, http.StatusOK, tc.Tenant)
}

type UpdateTenantRequest struct {
	Name         *string                `json:"name"`
	Domain       *string                `json:"domain"`
	Subdomain    *string                `json:"subdomain"`
	PlanTier     *string                `json:"plan_tier"`
	Branding     map[string]any         `json:"branding"`
	Settings     map[string]any         `json:"settings"`
	Security     *models.SecurityPolicy `json:"security"`
	MaxUsers     *int                   `json:"max_users"`
	MaxStorageMB *int                   `json:"max_storage_mb"`
	MaxOrders    *int                   `json:"max_orders"`
}

func (h *TenantHandler) UpdateCurrent(w http.ResponseWriter, r *http.Request) {
	tc := r.Context().Value(apiContext.Tenant).(*middleware.TenantContext)

	var req UpdateTenantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apiErrors.WriteError(w, http.StatusBadRequest, apiErrors.ErrCodeInvalidInput, "Invalid request body", nil)
		return
	}

	t := tc.Tenant
	if req.Name != nil {
		t.Name = *req.Name
	}
	if req.Domain != nil {
		t.Domain = *req.Domain
	}
	if req.Subdomain != nil {
		t.Subdomain = *req.Subdomain
	}
	if req.PlanTier != nil {
		t.PlanTier = *req.PlanTier
	}
	if req.Branding != nil {
		t.Branding = req.Branding
	}
	if req.Settings != nil {
		t.Settings = req.Settings
	}
	if req.Security != nil {
		t.Security = *req.Security
	}
	if req.MaxUsers != nil {
		t.MaxUsers = *req.MaxUsers
	}
	if req.MaxStorageMB != nil {
		t.MaxStorageMB = *req.MaxStorageMB
	}
	if req.MaxOrders != nil {
		t.MaxOrders = *req.MaxOrders
	}

	if err := h.tenants.Update(r.Context(), t); err != nil {
		var verr *tenant.ValidationError
		if errors.As(err, &verr) {
			apiErrors.WriteError(w, http.StatusBadRequest, apiErrors.ErrCodeInvalidInput, "Invalid security policy", verr.Violations)
			return
		}
		apiErrors.WriteError(w, http.StatusInternalServerError, apiErrors.ErrCodeInternal, "Failed to update tenant", nil)
		return
	}

	h.audit.Log(r.Context(), "tenant.update", "tenant", t.ID, nil)

	apiErrors.WriteJSON(w, http.StatusOK, t)
}

func (h *TenantHandler) Delete(w http.ResponseWriter, r *http.Request) {
	params := r.Context().Value(apiContext.Params).(httprouter.Params)
	tenantID := params.ByName("tenant_id")

	if err := h.tenants.Delete(r.Context(), tenantID); err != nil {
		apiErrors.WriteError(w, http.StatusInternalServerError, apiErrors.ErrCodeInternal, "Failed to delete tenant", nil)
		return
	}

	h.audit.Log(r.Context(), "tenant.delete", "tenant", tenantID, nil)

	w.WriteHeader(http.StatusNoContent)
}

func (h *TenantHandler) CheckLimits(w http.ResponseWriter, r *http.Request) {
	tc := r.Context().Value(apiContext.Tenant).(*middleware.TenantContext)

	report, err := h.tenants.CheckLimits(r.Context(), tc.TenantID)
	if err != nil {
		apiErrors.WriteError(w, http.StatusInternalServerError, apiErrors.ErrCodeInternal, "Failed to check limits", nil)
		return
	}

	apiErrors.WriteJSON(w, http.StatusOK, report)
}
