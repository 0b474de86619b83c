package middleware

import (
	"context"
	"database/sql"
	"net/http"

	apiContext "relay/internal/api/context"
	"relay/internal/pkg/errors"
	"relay/internal/platform/auth"
	"relay/internal/platform/database"
	"relay/internal/platform/models"
	"relay/internal/tenant"
)

// TenantContext carries the resolved tenant for the request. DB is non-nil
// only for tenants on the database isolation strategy.
type TenantContext struct {
	TenantID string
	Slug     string
	Tenant   *models.Tenant
	DB       *sql.DB
}

type TenantMiddleware struct {
	tenants *tenant.StorageService
	dbPool  *database.TenantDBPool
}

func NewTenantMiddleware(tenants *tenant.StorageService, dbPool *database.TenantDBPool) *TenantMiddleware {
	return &TenantMiddleware{
		tenants: tenants,
		dbPool:  dbPool,
	}
}

func (m *TenantMiddleware) Handle(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := r.Context().Value(apiContext.Claims).(*auth.Claims)
		if !ok {
			errors.WriteError(w, http.StatusUnauthorized, errors.ErrCodeUnauthorized, "No authentication claims found", nil)
			return
		}

		t, err := m.tenants.Get(r.Context(), claims.TenantID)
		if err != nil {
			errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Failed to load tenant", nil)
			return
		}
		if t == nil {
			errors.WriteError(w, http.StatusForbidden, errors.ErrCodeForbidden, "Tenant not found", nil)
			return
		}
		if t.Status != "active" {
			errors.WriteError(w, http.StatusForbidden, errors.ErrCodeForbidden, "Tenant is not active", nil)
			return
		}

		tc := &TenantContext{
			TenantID: t.ID,
			Slug:     t.Slug,
			Tenant:   t,
		}

		if t.IsolationStrategy == models.IsolationDatabase {
			db, err := m.dbPool.Get(t.ID, t.DBFilePath)
			if err != nil {
				errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Failed to connect to tenant database", nil)
				return
			}
			tc.DB = db
		}

		ctx := context.WithValue(r.Context(), apiContext.Tenant, tc)
		next(w, r.WithContext(ctx))
	}
}
