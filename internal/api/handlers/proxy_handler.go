package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	apiContext "relay/internal/api/context"
	"relay/internal/api/middleware"
	"relay/internal/engine/proxy"
	apiErrors "relay/internal/pkg/errors"
	"relay/internal/platform/repositories"
)

type ProxyHandler struct {
	proxy *proxy.Service
	conns *repositories.ConnectionRepository
}

func NewProxyHandler(proxySvc *proxy.Service, conns *repositories.ConnectionRepository) *ProxyHandler {
	return &ProxyHandler{proxy: proxySvc, conns: conns}
}

type ProxyRequest struct {
	ConnectionID string            `json:"connectionId"`
	Method       string            `json:"method"`
	Endpoint     string            `json:"endpoint"`
	Headers      map[string]string `json:"headers"`
	Body         json.RawMessage   `json:"body"`
	// Timeout is milliseconds; zero means the configured default.
	Timeout   int64  `json:"timeout"`
	LimitType string `json:"limitType"`
}

func (req *ProxyRequest) validate() string {
	if req.ConnectionID == "" {
		return "connectionId is required"
	}
	switch strings.ToUpper(req.Method) {
	case http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
	case "":
		return "method is required"
	default:
		return "method must be one of GET, POST, PUT, PATCH, DELETE"
	}
	if !strings.HasPrefix(req.Endpoint, "/") {
		return "endpoint must start with /"
	}
	if req.Timeout < 0 {
		return "timeout cannot be negative"
	}
	return ""
}

// Forward relays a request to the connection's provider. The upstream status
// code and body come back transparently inside the response envelope.
func (h *ProxyHandler) Forward(w http.ResponseWriter, r *http.Request) {
	tc := r.Context().Value(apiContext.Tenant).(*middleware.TenantContext)

	var req ProxyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apiErrors.WriteError(w, http.StatusBadRequest, apiErrors.ErrCodeInvalidInput, "Invalid request body", nil)
		return
	}
	if msg := req.validate(); msg != "" {
		apiErrors.WriteError(w, http.StatusBadRequest, apiErrors.ErrCodeInvalidInput, msg, nil)
		return
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

	resp, err := h.proxy.Forward(r.Context(), &proxy.Request{
		ConnectionID: req.ConnectionID,
		Method:       strings.ToUpper(req.Method),
		Endpoint:     req.Endpoint,
		Headers:      req.Headers,
		Body:         req.Body,
		Timeout:      time.Duration(req.Timeout) * time.Millisecond,
		LimitType:    req.LimitType,
	})
	if err != nil {
		writeProxyError(w, err)
		return
	}

	apiErrors.WriteJSON(w, http.StatusOK, resp)
}

func writeProxyError(w http.ResponseWriter, err error) {
	var rateLimited *proxy.RateLimitedError
	var upstream *proxy.UpstreamError

	switch {
	case errors.As(err, &rateLimited):
		apiErrors.WriteError(w, http.StatusTooManyRequests, apiErrors.ErrCodeRateLimitExceeded,
			"Rate limit exceeded for this connection", rateLimited.Decision)
	case errors.Is(err, proxy.ErrConnectionNotFound):
		apiErrors.WriteError(w, http.StatusNotFound, apiErrors.ErrCodeNotFound, "Connection not found", nil)
	case errors.Is(err, proxy.ErrConnectionInactive):
		apiErrors.WriteError(w, http.StatusConflict, apiErrors.ErrCodeConfiguration, "Connection is not active", nil)
	case errors.Is(err, proxy.ErrMissingCredentials):
		apiErrors.WriteError(w, http.StatusConflict, apiErrors.ErrCodeConfiguration, "No credentials configured for this connection", nil)
	case errors.As(err, &upstream):
		apiErrors.WriteError(w, http.StatusBadGateway, apiErrors.ErrCodeUpstream, "Upstream call failed", nil)
	default:
		apiErrors.WriteError(w, http.StatusInternalServerError, apiErrors.ErrCodeInternal, "Proxy request failed", nil)
	}
}
