package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/julienschmidt/httprouter"

	apiContext "relay/internal/api/context"
	"relay/internal/api/middleware"
	"relay/internal/engine/webhooks"
	apiErrors "relay/internal/pkg/errors"
	"relay/internal/platform/audit"
	"relay/internal/platform/models"
	"relay/internal/platform/repositories"
)

const maxWebhookBody = 1 << 20 // 1 MiB

type WebhookHandler struct {
	processor *webhooks.Processor
	endpoints *repositories.WebhookEndpointRepository
	audit     *audit.Logger
}

func NewWebhookHandler(processor *webhooks.Processor, endpoints *repositories.WebhookEndpointRepository, auditLog *audit.Logger) *WebhookHandler {
	return &WebhookHandler{
		processor: processor,
		endpoints: endpoints,
		audit:     auditLog,
	}
}

// Ingest receives a provider webhook. Unauthenticated: the HMAC signature is
// the only trust anchor, so the raw body must be verified byte-for-byte
// before anything else happens.
func (h *WebhookHandler) Ingest(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		apiErrors.WriteError(w, http.StatusBadRequest, apiErrors.ErrCodeInvalidInput, "Failed to read request body", nil)
		return
	}

	var envelope struct {
		EndpointID string `json:"endpointId"`
		EventID    string `json:"eventId"`
		ID         string `json:"id"`
		EventType  string `json:"eventType"`
		Type       string `json:"type"`
		Signature  string `json:"signature"`
	}
	json.Unmarshal(body, &envelope)

	endpointID := envelope.EndpointID
	if id := r.Context().Value(apiContext.Params).(httprouter.Params).ByName("endpoint_id"); id != "" {
		endpointID = id
	}
	if endpointID == "" {
		apiErrors.WriteError(w, http.StatusBadRequest, apiErrors.ErrCodeInvalidInput, "endpointId is required", nil)
		return
	}

	eventID := envelope.EventID
	if eventID == "" {
		eventID = envelope.ID
	}
	if eventID == "" {
		eventID = r.Header.Get("X-Event-ID")
	}
	if eventID == "" {
		apiErrors.WriteError(w, http.StatusBadRequest, apiErrors.ErrCodeInvalidInput, "Event id missing from payload and headers", nil)
		return
	}
	eventType := envelope.EventType
	if eventType == "" {
		eventType = envelope.Type
	}
	if eventType == "" {
		eventType = r.Header.Get("X-Event-Type")
	}

	// The header wins over the body field: a signature over the raw body
	// cannot live inside the bytes it signs.
	signature := r.Header.Get("X-Webhook-Signature")
	if signature == "" {
		signature = envelope.Signature
	}

	result, err := h.processor.Process(r.Context(), &webhooks.Inbound{
		EndpointID: endpointID,
		EventID:    eventID,
		EventType:  eventType,
		Payload:    body,
		Signature:  signature,
		RawBody:    body,
	})
	if err != nil {
		switch {
		case errors.Is(err, webhooks.ErrEndpointNotFound):
			apiErrors.WriteError(w, http.StatusNotFound, apiErrors.ErrCodeNotFound, "Webhook endpoint not found", nil)
		case errors.Is(err, webhooks.ErrInvalidSignature):
			apiErrors.WriteError(w, http.StatusUnauthorized, apiErrors.ErrCodeUnauthorized, "Webhook signature verification failed", nil)
		default:
			apiErrors.WriteError(w, http.StatusInternalServerError, apiErrors.ErrCodeInternal, "Failed to process webhook", nil)
		}
		return
	}

	apiErrors.WriteJSON(w, http.StatusOK, result)
}

type CreateEndpointRequest struct {
	Provider string `json:"provider"`
	Secret   string `json:"secret"`
}

func (h *WebhookHandler) CreateEndpoint(w http.ResponseWriter, r *http.Request) {
	tc := r.Context().Value(apiContext.Tenant).(*middleware.TenantContext)

	var req CreateEndpointRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apiErrors.WriteError(w, http.StatusBadRequest, apiErrors.ErrCodeInvalidInput, "Invalid request body", nil)
		return
	}
	if req.Provider == "" || req.Secret == "" {
		apiErrors.WriteError(w, http.StatusBadRequest, apiErrors.ErrCodeInvalidInput, "provider and secret are required", nil)
		return
	}

	now := time.Now().Unix()
	endpoint := &models.WebhookEndpoint{
		ID:        "wh_" + uuid.New().String(),
		TenantID:  tc.TenantID,
		Provider:  req.Provider,
		Secret:    req.Secret,
		Status:    "active",
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := h.endpoints.Create(endpoint); err != nil {
		apiErrors.WriteError(w, http.StatusInternalServerError, apiErrors.ErrCodeInternal, "Failed to create endpoint", nil)
		return
	}

	h.audit.Log(r.Context(), "webhook.create_endpoint", "webhook_endpoint", endpoint.ID, map[string]interface{}{
		"provider": endpoint.Provider,
	})

	apiErrors.WriteJSON(w, http.StatusCreated, endpoint)
}

func (h *WebhookHandler) ListEndpoints(w http.ResponseWriter, r *http.Request) {
	tc := r.Context().Value(apiContext.Tenant).(*middleware.TenantContext)

	endpoints, err := h.endpoints.ListByTenant(tc.TenantID)
	if err != nil {
		apiErrors.WriteError(w, http.StatusInternalServerError, apiErrors.ErrCodeInternal, "Database error", nil)
		return
	}

	apiErrors.WriteJSON(w, http.StatusOK, endpoints)
}
