package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"relay/internal/engine/health"
	apiErrors "relay/internal/pkg/errors"
	"relay/internal/platform/database"
)

type HealthHandler struct {
	globalDB *database.GlobalDB
	monitor  *health.Monitor
}

func NewHealthHandler(globalDB *database.GlobalDB, monitor *health.Monitor) *HealthHandler {
	return &HealthHandler{globalDB: globalDB, monitor: monitor}
}

// Check is the service liveness probe.
func (h *HealthHandler) Check(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string)

	if err := h.globalDB.DB.Ping(); err != nil {
		checks["global_db"] = "unhealthy: " + err.Error()
	} else {
		checks["global_db"] = "healthy"
	}

	status := "healthy"
	for _, check := range checks {
		if len(check) >= 9 && check[:9] == "unhealthy" {
			status = "degraded"
			break
		}
	}

	response := struct {
		Status    string            `json:"status"`
		Timestamp int64             `json:"timestamp"`
		Checks    map[string]string `json:"checks"`
	}{
		Status:    status,
		Timestamp: time.Now().Unix(),
		Checks:    checks,
	}

	statusCode := http.StatusOK
	if status == "degraded" {
		statusCode = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(response)
}

// Sweep runs one health check pass over all active connections and returns
// the results. The monitor binary does this on a schedule; the endpoint is
// for on-demand checks.
func (h *HealthHandler) Sweep(w http.ResponseWriter, r *http.Request) {
	results, err := h.monitor.Sweep(r.Context())
	if err != nil {
		apiErrors.WriteError(w, http.StatusInternalServerError, apiErrors.ErrCodeInternal, "Health sweep failed", nil)
		return
	}

	apiErrors.WriteJSON(w, http.StatusOK, results)
}
