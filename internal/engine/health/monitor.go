package health

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"relay/internal/platform/metrics"
	"relay/internal/platform/models"
	"relay/internal/platform/repositories"
)

const degradedLatency = 2000 * time.Millisecond

type Monitor struct {
	conns   *repositories.ConnectionRepository
	history *repositories.HealthRepository
	client  *http.Client
	timeout time.Duration
}

func NewMonitor(conns *repositories.ConnectionRepository, history *repositories.HealthRepository, timeout time.Duration) *Monitor {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Monitor{
		conns:   conns,
		history: history,
		client:  &http.Client{Timeout: timeout},
		timeout: timeout,
	}
}

// Sweep checks every active connection. Individual failures are recorded and
// logged; the sweep itself only fails when connections cannot be listed.
func (m *Monitor) Sweep(ctx context.Context) ([]*models.HealthCheck, error) {
	conns, err := m.conns.ListActive()
	if err != nil {
		return nil, err
	}

	checks := make([]*models.HealthCheck, 0, len(conns))
	for _, conn := range conns {
		check := m.CheckConnection(ctx, conn)
		checks = append(checks, check)
	}
	return checks, nil
}

// CheckConnection probes one connection, persists a history row, and
// overwrites the connection's health_status (last-check-wins). The
// admin-controlled status field is never touched here.
func (m *Monitor) CheckConnection(ctx context.Context, conn *models.IntegrationConnection) *models.HealthCheck {
	check := &models.HealthCheck{
		ID:           "hc_" + uuid.New().String(),
		ConnectionID: conn.ID,
		CheckedAt:    time.Now().Unix(),
	}

	url := probeURL(conn.Provider, conn.BaseURL)
	if url == "" {
		check.Status = models.HealthUnknown
	} else {
		statusCode, elapsed, err := m.probe(ctx, url)
		check.ResponseTimeMS = elapsed.Milliseconds()
		check.StatusCode = statusCode
		if err != nil {
			check.Error = err.Error()
		}
		check.Status = Classify(statusCode, elapsed, err)
	}

	metrics.HealthChecksTotal.WithLabelValues(conn.Provider, check.Status).Inc()

	if err := m.history.Insert(check); err != nil {
		log.Error().Err(err).Str("connection_id", conn.ID).Msg("failed to record health check")
	}
	if err := m.conns.UpdateHealthStatus(conn.ID, check.Status, check.CheckedAt); err != nil {
		log.Error().Err(err).Str("connection_id", conn.ID).Msg("failed to update connection health status")
	}

	return check
}

func (m *Monitor) probe(ctx context.Context, url string) (int, time.Duration, error) {
	reqCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
	if err != nil {
		return 0, 0, err
	}

	start := time.Now()
	resp, err := m.client.Do(req)
	elapsed := time.Since(start)
	if err != nil {
		return 0, elapsed, err
	}
	resp.Body.Close()

	return resp.StatusCode, elapsed, nil
}

// Classify maps a probe outcome onto a health tier:
// healthy  = 2xx under the latency ceiling
// degraded = 2xx but slow, or a 4xx client error
// down     = 5xx, timeout, or network failure
func Classify(statusCode int, elapsed time.Duration, err error) string {
	switch {
	case err != nil:
		return models.HealthDown
	case statusCode >= 500:
		return models.HealthDown
	case statusCode >= 400:
		return models.HealthDegraded
	case statusCode >= 200 && statusCode < 300:
		if elapsed >= degradedLatency {
			return models.HealthDegraded
		}
		return models.HealthHealthy
	default:
		return models.HealthDegraded
	}
}
