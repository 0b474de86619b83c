package main

import (
	"context"
	"log"
	"time"

	"relay/internal/engine/health"
	"relay/internal/pkg/logger"
	"relay/internal/platform/config"
	"relay/internal/platform/database"
	"relay/internal/platform/repositories"
)

func main() {
	cfg, err := config.Load("configs/config.yaml")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger.Init(cfg.Logging)

	globalDB, err := database.NewGlobalDB(cfg.Database.Global)
	if err != nil {
		log.Fatalf("Failed to connect to global DB: %v", err)
	}
	defer globalDB.Close()

	connRepo := repositories.NewConnectionRepository(globalDB)
	healthRepo := repositories.NewHealthRepository(globalDB)
	logRepo := repositories.NewIntegrationLogRepository(globalDB)

	monitor := health.NewMonitor(connRepo, healthRepo, cfg.Health.CheckTimeout)

	log.Println("Starting connection health monitor...")

	go runSweepLoop(monitor, cfg.Health.SweepInterval)
	go runPruneLoop(healthRepo, logRepo, cfg.Health.HistoryRetention)

	// Keep process alive
	select {}
}

func runSweepLoop(monitor *health.Monitor, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for range ticker.C {
		results, err := monitor.Sweep(context.Background())
		if err != nil {
			log.Printf("Health sweep failed: %v", err)
			continue
		}
		log.Printf("Health sweep checked %d connections", len(results))
	}
}

func runPruneLoop(healthRepo *repositories.HealthRepository, logRepo *repositories.IntegrationLogRepository, retention time.Duration) {
	if retention <= 0 {
		retention = 30 * 24 * time.Hour
	}

	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for range ticker.C {
		cutoff := time.Now().Add(-retention).Unix()

		if n, err := healthRepo.DeleteOlderThan(cutoff); err != nil {
			log.Printf("Failed to prune health history: %v", err)
		} else if n > 0 {
			log.Printf("Pruned %d health check rows", n)
		}

		if n, err := logRepo.DeleteOlderThan(cutoff); err != nil {
			log.Printf("Failed to prune integration logs: %v", err)
		} else if n > 0 {
			log.Printf("Pruned %d integration log rows", n)
		}
	}
}
