package handlers

import (
	"encoding/json"
	"net/http"

	apiContext "relay/internal/api/context"
	"relay/internal/api/middleware"
	"relay/internal/engine/ratelimit"
	apiErrors "relay/internal/pkg/errors"
	"relay/internal/platform/models"
	"relay/internal/platform/repositories"
)

type RateLimitHandler struct {
	limiter ratelimit.Limiter
	conns   *repositories.ConnectionRepository
}

func NewRateLimitHandler(limiter ratelimit.Limiter, conns *repositories.ConnectionRepository) *RateLimitHandler {
	return &RateLimitHandler{limiter: limiter, conns: conns}
}

type CheckRateLimitRequest struct {
	ConnectionID string `json:"connectionId"`
	LimitType    string `json:"limitType"`
}

// Check consumes one request against the connection's window and returns the
// decision. A rejection is still a 200; allowed=false is in the body.
func (h *RateLimitHandler) Check(w http.ResponseWriter, r *http.Request) {
	tc := r.Context().Value(apiContext.Tenant).(*middleware.TenantContext)

	var req CheckRateLimitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apiErrors.WriteError(w, http.StatusBadRequest, apiErrors.ErrCodeInvalidInput, "Invalid request body", nil)
		return
	}
	if req.ConnectionID == "" {
		apiErrors.WriteError(w, http.StatusBadRequest, apiErrors.ErrCodeInvalidInput, "connectionId is required", nil)
		return
	}
	if req.LimitType == "" {
		req.LimitType = models.LimitMinute
	}

	conn, err := h.conns.GetByID(req.ConnectionID)
	if err != nil {
		apiErrors.WriteError(w, http.StatusInternalServerError, apiErrors.ErrCodeInternal, "Database error", nil)
		return
	}
	if conn == nil || conn.TenantID != tc.TenantID {
		apiErrors.WriteError(w, http.StatusNotFound, apiErrors.ErrCodeNotFound, "Connection not found", nil)
		return
	}

	decision, err := h.limiter.Check(r.Context(), req.ConnectionID, req.LimitType)
	if err != nil {
		apiErrors.WriteError(w, http.StatusInternalServerError, apiErrors.ErrCodeInternal, "Rate limit check failed", nil)
		return
	}

	apiErrors.WriteJSON(w, http.StatusOK, decision)
}
