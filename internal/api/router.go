package api

import (
	"context"
	"net/http"

	"github.com/julienschmidt/httprouter"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	apiContext "relay/internal/api/context"
	"relay/internal/api/handlers"
	"relay/internal/api/middleware"
	"relay/internal/pkg/errors"
	"relay/internal/platform/auth"
	"relay/internal/tenant"
)

type Dependencies struct {
	AuthHandler       *handlers.AuthHandler
	TenantHandler     *handlers.TenantHandler
	ConnectionHandler *handlers.ConnectionHandler
	ProxyHandler      *handlers.ProxyHandler
	PaymentHandler    *handlers.PaymentHandler
	WebhookHandler    *handlers.WebhookHandler
	RateLimitHandler  *handlers.RateLimitHandler
	HealthHandler     *handlers.HealthHandler
	AuthMiddleware    *middleware.AuthMiddleware
	TenantMiddleware  *middleware.TenantMiddleware
	MetricsEnabled    bool
}

func NewRouter(deps *Dependencies) *httprouter.Router {
	router := httprouter.New()

	// Liveness
	router.GET("/healthz", wrap(deps.HealthHandler.Check))

	if deps.MetricsEnabled {
		router.Handler(http.MethodGet, "/metrics", promhttp.Handler())
	}

	// Authentication
	router.POST("/api/v1/auth/login", wrap(deps.AuthHandler.Login))
	router.POST("/api/v1/auth/refresh", wrap(deps.AuthHandler.Refresh))

	authMid := deps.AuthMiddleware
	tenantMid := deps.TenantMiddleware

	// Webhook ingestion is unauthenticated; the HMAC signature is the only
	// trust anchor.
	router.POST("/api/v1/webhooks/ingest", wrap(deps.WebhookHandler.Ingest))

	// Tenant management
	router.POST("/api/v1/tenants",
		chain(deps.TenantHandler.Create, authMid.Handle, requireRole(tenant.SuperAdminRole)))
	router.DELETE("/api/v1/tenants/:tenant_id",
		chain(deps.TenantHandler.Delete, authMid.Handle, requireRole(tenant.SuperAdminRole)))
	router.GET("/api/v1/tenants/current",
		chain(deps.TenantHandler.GetCurrent, authMid.Handle, tenantMid.Handle))
	router.PATCH("/api/v1/tenants/current",
		chain(deps.TenantHandler.UpdateCurrent, authMid.Handle, tenantMid.Handle, requireRole("admin")))
	router.GET("/api/v1/tenants/current/limits",
		chain(deps.TenantHandler.CheckLimits, authMid.Handle, tenantMid.Handle))

	// Integration connections
	router.POST("/api/v1/connections",
		chain(deps.ConnectionHandler.Create, authMid.Handle, tenantMid.Handle, requireRole("admin", "manager")))
	router.GET("/api/v1/connections",
		chain(deps.ConnectionHandler.List, authMid.Handle, tenantMid.Handle))
	router.GET("/api/v1/connections/:connection_id",
		chain(deps.ConnectionHandler.Get, authMid.Handle, tenantMid.Handle))
	router.PATCH("/api/v1/connections/:connection_id/status",
		chain(deps.ConnectionHandler.UpdateStatus, authMid.Handle, tenantMid.Handle, requireRole("admin", "manager")))
	router.DELETE("/api/v1/connections/:connection_id",
		chain(deps.ConnectionHandler.Delete, authMid.Handle, tenantMid.Handle, requireRole("admin")))
	router.PUT("/api/v1/connections/:connection_id/credentials",
		chain(deps.ConnectionHandler.SetCredential, authMid.Handle, tenantMid.Handle, requireRole("admin")))
	router.PUT("/api/v1/connections/:connection_id/rate-limit",
		chain(deps.ConnectionHandler.SetRateLimit, authMid.Handle, tenantMid.Handle, requireRole("admin", "manager")))
	router.GET("/api/v1/connections/:connection_id/rate-limit",
		chain(deps.ConnectionHandler.GetRateLimit, authMid.Handle, tenantMid.Handle))
	router.GET("/api/v1/connections/:connection_id/logs",
		chain(deps.ConnectionHandler.ListLogs, authMid.Handle, tenantMid.Handle))
	router.GET("/api/v1/connections/:connection_id/health",
		chain(deps.ConnectionHandler.ListHealthHistory, authMid.Handle, tenantMid.Handle))

	// Proxying and payments
	router.POST("/api/v1/proxy",
		chain(deps.ProxyHandler.Forward, authMid.Handle, tenantMid.Handle))
	router.POST("/api/v1/payments",
		chain(deps.PaymentHandler.Process, authMid.Handle, tenantMid.Handle))
	router.POST("/api/v1/ratelimit/check",
		chain(deps.RateLimitHandler.Check, authMid.Handle, tenantMid.Handle))

	// Webhook endpoint management
	router.POST("/api/v1/webhook-endpoints",
		chain(deps.WebhookHandler.CreateEndpoint, authMid.Handle, tenantMid.Handle, requireRole("admin", "manager")))
	router.GET("/api/v1/webhook-endpoints",
		chain(deps.WebhookHandler.ListEndpoints, authMid.Handle, tenantMid.Handle))

	// On-demand health sweep
	router.POST("/api/v1/health/sweep",
		chain(deps.HealthHandler.Sweep, authMid.Handle, requireRole(tenant.SuperAdminRole)))
	router.GET("/api/v1/health/sweep",
		chain(deps.HealthHandler.Sweep, authMid.Handle, requireRole(tenant.SuperAdminRole)))

	return router
}

// Helper function to chain middlewares
func chain(handler http.HandlerFunc, middlewares ...func(http.HandlerFunc) http.HandlerFunc) httprouter.Handle {
	for i := len(middlewares) - 1; i >= 0; i-- {
		handler = middlewares[i](handler)
	}
	return wrap(handler)
}

// Convert http.HandlerFunc to httprouter.Handle
func wrap(handler http.HandlerFunc) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		// Inject params into context
		ctx := context.WithValue(r.Context(), apiContext.Params, ps)
		handler(w, r.WithContext(ctx))
	}
}

func requireRole(roles ...string) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			claims := r.Context().Value(apiContext.Claims).(*auth.Claims)

			allowed := false
			for _, held := range claims.Roles {
				if held == tenant.SuperAdminRole {
					allowed = true
					break
				}
				for _, role := range roles {
					if held == role {
						allowed = true
						break
					}
				}
				if allowed {
					break
				}
			}

			if !allowed {
				errors.WriteError(w, http.StatusForbidden, errors.ErrCodeForbidden, "Insufficient permissions", nil)
				return
			}

			next(w, r)
		}
	}
}
