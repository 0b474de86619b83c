package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/julienschmidt/httprouter"

	apiContext "relay/internal/api/context"
	"relay/internal/api/middleware"
	"relay/internal/engine/ratelimit"
	apiErrors "relay/internal/pkg/errors"
	"relay/internal/platform/audit"
	"relay/internal/platform/models"
	"relay/internal/platform/repositories"
)

type ConnectionHandler struct {
	conns   *repositories.ConnectionRepository
	creds   *repositories.CredentialRepository
	limits  *repositories.RateLimitRepository
	logs    *repositories.IntegrationLogRepository
	history *repositories.HealthRepository
	audit   *audit.Logger
}

func NewConnectionHandler(
	conns *repositories.ConnectionRepository,
	creds *repositories.CredentialRepository,
	limits *repositories.RateLimitRepository,
	logs *repositories.IntegrationLogRepository,
	history *repositories.HealthRepository,
	auditLog *audit.Logger,
) *ConnectionHandler {
	return &ConnectionHandler{
		conns:   conns,
		creds:   creds,
		limits:  limits,
		logs:    logs,
		history: history,
		audit:   auditLog,
	}
}

// loadOwned fetches a connection and enforces tenant ownership. Writes the
// error response itself and returns nil when the caller should bail.
func (h *ConnectionHandler) loadOwned(w http.ResponseWriter, r *http.Request) *models.IntegrationConnection {
	tc := r.Context().Value(apiContext.Tenant).(*middleware.TenantContext)
	params := r.Context().Value(apiContext.Params).(httprouter.Params)

	conn, err := h.conns.GetByID(params.ByName("connection_id"))
	if err != nil {
		apiErrors.WriteError(w, http.StatusInternalServerError, apiErrors.ErrCodeInternal, "Database error", nil)
		return nil
	}
	if conn == nil || conn.TenantID != tc.TenantID {
		apiErrors.WriteError(w, http.StatusNotFound, apiErrors.ErrCodeNotFound, "Connection not found", nil)
		return nil
	}
	return conn
}

type CreateConnectionRequest struct {
	Provider string `json:"provider"`
	Name     string `json:"name"`
	BaseURL  string `json:"base_url"`
}

func (h *ConnectionHandler) Create(w http.ResponseWriter, r *http.Request) {
	tc := r.Context().Value(apiContext.Tenant).(*middleware.TenantContext)

	var req CreateConnectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apiErrors.WriteError(w, http.StatusBadRequest, apiErrors.ErrCodeInvalidInput, "Invalid request body", nil)
		return
	}
	if req.Provider == "" || req.Name == "" {
		apiErrors.WriteError(w, http.StatusBadRequest, apiErrors.ErrCodeInvalidInput, "provider and name are required", nil)
		return
	}

	now := time.Now().Unix()
	conn := &models.IntegrationConnection{
		ID:           "conn_" + uuid.New().String(),
		TenantID:     tc.TenantID,
		Provider:     req.Provider,
		Name:         req.Name,
		BaseURL:      req.BaseURL,
		Status:       models.ConnectionPending,
		HealthStatus: models.HealthUnknown,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := h.conns.Create(conn); err != nil {
		apiErrors.WriteError(w, http.StatusInternalServerError, apiErrors.ErrCodeInternal, "Failed to create connection", nil)
		return
	}

	h.audit.Log(r.Context(), "connection.create", "connection", conn.ID, map[string]interface{}{
		"provider": conn.Provider,
	})

	apiErrors.WriteJSON(w, http.StatusCreated, conn)
}

func (h *ConnectionHandler) List(w http.ResponseWriter, r *http.Request) {
	tc := r.Context().Value(apiContext.Tenant).(*middleware.TenantContext)

	conns, err := h.conns.ListByTenant(tc.TenantID)
	if err != nil {
		apiErrors.WriteError(w, http.StatusInternalServerError, apiErrors.ErrCodeInternal, "Database error", nil)
		return
	}

	apiErrors.WriteJSON(w, http.StatusOK, conns)
}

func (h *ConnectionHandler) Get(w http.ResponseWriter, r *http.Request) {
	conn := h.loadOwned(w, r)
	if conn == nil {
		return
	}
	apiErrors.WriteJSON(w, http.StatusOK, conn)
}

type UpdateStatusRequest struct {
	Status string `json:"status"`
}

func (h *ConnectionHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	conn := h.loadOwned(w, r)
	if conn == nil {
		return
	}

	var req UpdateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apiErrors.WriteError(w, http.StatusBadRequest, apiErrors.ErrCodeInvalidInput, "Invalid request body", nil)
		return
	}

	switch req.Status {
	case models.ConnectionActive, models.ConnectionInactive, models.ConnectionPending, models.ConnectionTesting:
	default:
		apiErrors.WriteError(w, http.StatusBadRequest, apiErrors.ErrCodeInvalidInput, "Invalid connection status", nil)
		return
	}

	if err := h.conns.UpdateStatus(conn.ID, req.Status); err != nil {
		apiErrors.WriteError(w, http.StatusInternalServerError, apiErrors.ErrCodeInternal, "Failed to update status", nil)
		return
	}
	conn.Status = req.Status

	h.audit.Log(r.Context(), "connection.update_status", "connection", conn.ID, map[string]interface{}{
		"status": req.Status,
	})

	apiErrors.WriteJSON(w, http.StatusOK, conn)
}

func (h *ConnectionHandler) Delete(w http.ResponseWriter, r *http.Request) {
	conn := h.loadOwned(w, r)
	if conn == nil {
		return
	}

	if err := h.conns.Delete(conn.ID); err != nil {
		apiErrors.WriteError(w, http.StatusInternalServerError, apiErrors.ErrCodeInternal, "Failed to delete connection", nil)
		return
	}

	h.audit.Log(r.Context(), "connection.delete", "connection", conn.ID, nil)

	w.WriteHeader(http.StatusNoContent)
}

type SetCredentialRequest struct {
	CredentialType string `json:"credential_type"`
	KeyHeader      string `json:"key_header"`
	Secret         string `json:"secret"`
	ExpiresAt      *int64 `json:"expires_at"`
}

func (h *ConnectionHandler) SetCredential(w http.ResponseWriter, r *http.Request) {
	conn := h.loadOwned(w, r)
	if conn == nil {
		return
	}

	var req SetCredentialRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apiErrors.WriteError(w, http.StatusBadRequest, apiErrors.ErrCodeInvalidInput, "Invalid request body", nil)
		return
	}
	switch req.CredentialType {
	case models.CredentialAPIKey, models.CredentialBearer, models.CredentialOAuth:
	default:
		apiErrors.WriteError(w, http.StatusBadRequest, apiErrors.ErrCodeInvalidInput, "Invalid credential type", nil)
		return
	}
	if req.Secret == "" {
		apiErrors.WriteError(w, http.StatusBadRequest, apiErrors.ErrCodeInvalidInput, "secret is required", nil)
		return
	}

	cred := &models.APICredential{
		ID:             "cred_" + uuid.New().String(),
		ConnectionID:   conn.ID,
		CredentialType: req.CredentialType,
		KeyHeader:      req.KeyHeader,
		Secret:         req.Secret,
		ExpiresAt:      req.ExpiresAt,
		CreatedAt:      time.Now().Unix(),
	}

	if err := h.creds.Create(cred); err != nil {
		apiErrors.WriteError(w, http.StatusInternalServerError, apiErrors.ErrCodeInternal, "Failed to store credential", nil)
		return
	}

	h.audit.Log(r.Context(), "connection.set_credential", "connection", conn.ID, map[string]interface{}{
		"credential_type": req.CredentialType,
	})

	apiErrors.WriteJSON(w, http.StatusCreated, cred)
}

type SetRateLimitRequest struct {
	LimitType   string `json:"limit_type"`
	MaxRequests int    `json:"max_requests"`
}

func (h *ConnectionHandler) SetRateLimit(w http.ResponseWriter, r *http.Request) {
	conn := h.loadOwned(w, r)
	if conn == nil {
		return
	}

	var req SetRateLimitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apiErrors.WriteError(w, http.StatusBadRequest, apiErrors.ErrCodeInvalidInput, "Invalid request body", nil)
		return
	}
	switch req.LimitType {
	case models.LimitMinute, models.LimitHour, models.LimitDay, models.LimitMonth:
	default:
		apiErrors.WriteError(w, http.StatusBadRequest, apiErrors.ErrCodeInvalidInput, "Invalid limit type", nil)
		return
	}
	if req.MaxRequests <= 0 {
		apiErrors.WriteError(w, http.StatusBadRequest, apiErrors.ErrCodeInvalidInput, "max_requests must be positive", nil)
		return
	}

	now := time.Now()
	rl := &models.RateLimit{
		ID:           "rl_" + uuid.New().String(),
		ConnectionID: conn.ID,
		LimitType:    req.LimitType,
		MaxRequests:  req.MaxRequests,
		WindowStart:  now.Unix(),
		WindowEnd:    now.Add(ratelimit.WindowDuration(req.LimitType)).Unix(),
		UpdatedAt:    now.Unix(),
	}

	if err := h.limits.Upsert(rl); err != nil {
		apiErrors.WriteError(w, http.StatusInternalServerError, apiErrors.ErrCodeInternal, "Failed to configure rate limit", nil)
		return
	}

	h.audit.Log(r.Context(), "connection.set_rate_limit", "connection", conn.ID, map[string]interface{}{
		"limit_type":   req.LimitType,
		"max_requests": req.MaxRequests,
	})

	apiErrors.WriteJSON(w, http.StatusOK, rl)
}

func (h *ConnectionHandler) GetRateLimit(w http.ResponseWriter, r *http.Request) {
	conn := h.loadOwned(w, r)
	if conn == nil {
		return
	}

	limitType := r.URL.Query().Get("limit_type")
	if limitType == "" {
		limitType = models.LimitMinute
	}

	rl, err := h.limits.Get(conn.ID, limitType)
	if err != nil {
		apiErrors.WriteError(w, http.StatusInternalServerError, apiErrors.ErrCodeInternal, "Database error", nil)
		return
	}
	if rl == nil {
		apiErrors.WriteError(w, http.StatusNotFound, apiErrors.ErrCodeNotFound, "No rate limit configured", nil)
		return
	}

	apiErrors.WriteJSON(w, http.StatusOK, rl)
}

func (h *ConnectionHandler) ListLogs(w http.ResponseWriter, r *http.Request) {
	conn := h.loadOwned(w, r)
	if conn == nil {
		return
	}

	logs, err := h.logs.ListByConnection(conn.ID, 100)
	if err != nil {
		apiErrors.WriteError(w, http.StatusInternalServerError, apiErrors.ErrCodeInternal, "Database error", nil)
		return
	}

	apiErrors.WriteJSON(w, http.StatusOK, logs)
}

func (h *ConnectionHandler) ListHealthHistory(w http.ResponseWriter, r *http.Request) {
	conn := h.loadOwned(w, r)
	if conn == nil {
		return
	}

	checks, err := h.history.ListByConnection(conn.ID, 50)
	if err != nil {
		apiErrors.WriteError(w, http.StatusInternalServerError, apiErrors.ErrCodeInternal, "Database error", nil)
		return
	}

	apiErrors.WriteJSON(w, http.StatusOK, checks)
}
