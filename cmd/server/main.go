package main

import (
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"relay/internal/api"
	"relay/internal/api/handlers"
	"relay/internal/api/middleware"
	"relay/internal/engine/health"
	"relay/internal/engine/proxy"
	"relay/internal/engine/ratelimit"
	"relay/internal/engine/webhooks"
	"relay/internal/pkg/logger"
	"relay/internal/platform/audit"
	"relay/internal/platform/auth"
	"relay/internal/platform/config"
	"relay/internal/platform/database"
	"relay/internal/platform/repositories"
	"relay/internal/tenant"
)

func main() {
	cfg, err := config.Load("configs/config.yaml")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger.Init(cfg.Logging)

	// Database connections
	globalDB, err := database.NewGlobalDB(cfg.Database.Global)
	if err != nil {
		log.Fatalf("Failed to connect to global DB: %v", err)
	}
	defer globalDB.Close()

	globalDBWrapper := database.NewGlobalDBWrapper(globalDB)

	tenantDBPool := database.NewTenantDBPool(cfg.Database.Tenant)
	defer tenantDBPool.CloseAll()

	// Repositories
	tenantRepo := repositories.NewTenantRepository(globalDB)
	userRepo := repositories.NewTenantUserRepository(globalDB)
	connRepo := repositories.NewConnectionRepository(globalDB)
	credRepo := repositories.NewCredentialRepository(globalDB)
	limitRepo := repositories.NewRateLimitRepository(globalDB)
	endpointRepo := repositories.NewWebhookEndpointRepository(globalDB)
	eventRepo := repositories.NewWebhookEventRepository(globalDB)
	logRepo := repositories.NewIntegrationLogRepository(globalDB)
	healthRepo := repositories.NewHealthRepository(globalDB)
	analyticsRepo := repositories.NewAnalyticsRepository(globalDB)

	// Services
	tokenSvc := auth.NewTokenService(cfg.JWT)
	auditLog := audit.NewLogger(globalDB)

	tenantCache := tenant.NewCache(cfg.Cache.TenantTTL)
	tenantSvc := tenant.NewStorageService(tenantRepo, userRepo, tenantDBPool, tenantCache, cfg.Database.Tenant.BasePath)
	securitySvc := tenant.NewSecurityService(tokenSvc)

	var limiter ratelimit.Limiter
	switch cfg.RateLimit.Backend {
	case "redis":
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		limiter = ratelimit.NewRedisLimiter(rdb, limitRepo)
	default:
		limiter = ratelimit.NewSQLLimiter(limitRepo)
	}

	proxySvc := proxy.NewService(connRepo, credRepo, logRepo, analyticsRepo, limiter,
		cfg.Proxy.DefaultTimeout, cfg.Proxy.MaxTimeout)

	processor := webhooks.NewProcessor(endpointRepo, eventRepo)
	webhooks.NewDomainHandlers(analyticsRepo).Attach(processor)

	monitor := health.NewMonitor(connRepo, healthRepo, cfg.Health.CheckTimeout)

	// Handlers
	authHandler := handlers.NewAuthHandler(userRepo, tenantSvc, securitySvc, tokenSvc)
	tenantHandler := handlers.NewTenantHandler(tenantSvc, userRepo, auditLog)
	connectionHandler := handlers.NewConnectionHandler(connRepo, credRepo, limitRepo, logRepo, healthRepo, auditLog)
	proxyHandler := handlers.NewProxyHandler(proxySvc, connRepo)
	paymentHandler := handlers.NewPaymentHandler(proxySvc, connRepo)
	webhookHandler := handlers.NewWebhookHandler(processor, endpointRepo, auditLog)
	rateLimitHandler := handlers.NewRateLimitHandler(limiter, connRepo)
	healthHandler := handlers.NewHealthHandler(globalDBWrapper, monitor)

	// Middleware
	authMiddleware := middleware.NewAuthMiddleware(tokenSvc)
	tenantMiddleware := middleware.NewTenantMiddleware(tenantSvc, tenantDBPool)

	deps := &api.Dependencies{
		AuthHandler:       authHandler,
		TenantHandler:     tenantHandler,
		ConnectionHandler: connectionHandler,
		ProxyHandler:      proxyHandler,
		PaymentHandler:    paymentHandler,
		WebhookHandler:    webhookHandler,
		RateLimitHandler:  rateLimitHandler,
		HealthHandler:     healthHandler,
		AuthMiddleware:    authMiddleware,
		TenantMiddleware:  tenantMiddleware,
		MetricsEnabled:    cfg.Metrics.Enabled,
	}
	router := api.NewRouter(deps)

	var handler http.Handler = router
	handler = middleware.NewCORSMiddleware(cfg.CORS).Handle(handler)
	if cfg.Metrics.Enabled {
		handler = middleware.NewMetricsMiddleware().Handle(handler)
	}

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      cfg.Proxy.MaxTimeout + 30*time.Second,
		IdleTimeout:       2 * time.Minute,
	}

	log.Printf("Server starting on %s", addr)
	if err := server.ListenAndServe(); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}
