package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	apiContext "relay/internal/api/context"
	"relay/internal/api/middleware"
	"relay/internal/engine/proxy"
	apiErrors "relay/internal/pkg/errors"
	"relay/internal/platform/repositories"
)

type PaymentHandler struct {
	proxy *proxy.Service
	conns *repositories.ConnectionRepository
}

func NewPaymentHandler(proxySvc *proxy.Service, conns *repositories.ConnectionRepository) *PaymentHandler {
	return &PaymentHandler{proxy: proxySvc, conns: conns}
}

// Process shapes a charge for the connection's payment provider and sends it
// through the proxy path.
func (h *PaymentHandler) Process(w http.ResponseWriter, r *http.Request) {
	tc := r.Context().Value(apiContext.Tenant).(*middleware.TenantContext)

	var req proxy.PaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apiErrors.WriteError(w, http.StatusBadRequest, apiErrors.ErrCodeInvalidInput, "Invalid request body", nil)
		return
	}
	if req.ConnectionID == "" {
		apiErrors.WriteError(w, http.StatusBadRequest, apiErrors.ErrCodeInvalidInput, "connectionId is required", nil)
		return
	}
	if req.Amount <= 0 {
		apiErrors.WriteError(w, http.StatusBadRequest, apiErrors.ErrCodeInvalidInput, "amount must be positive", nil)
		return
	}
	if len(req.Currency) != 3 {
		apiErrors.WriteError(w, http.StatusBadRequest, apiErrors.ErrCodeInvalidInput, "currency must be a 3-letter code", nil)
		return
	}
	req.Currency = strings.ToUpper(req.Currency)

	conn, err := h.conns.GetByID(req.ConnectionID)
	if err != nil {
		apiErrors.WriteError(w, http.StatusInternalServerError, apiErrors.ErrCodeInternal, "Database error", nil)
		return
	}
	if conn == nil || conn.TenantID != tc.TenantID {
		apiErrors.WriteError(w, http.StatusNotFound, apiErrors.ErrCodeNotFound, "Connection not found", nil)
		return
	}

	resp, err := h.proxy.ProcessPayment(r.Context(), &req)
	if err != nil {
		if errors.Is(err, proxy.ErrUnsupportedProvider) {
			apiErrors.WriteError(w, http.StatusBadRequest, apiErrors.ErrCodeConfiguration, err.Error(), nil)
			return
		}
		writeProxyError(w, err)
		return
	}

	apiErrors.WriteJSON(w, http.StatusOK, resp)
}
