package webhooks

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"relay/internal/platform/models"
	"relay/internal/platform/repositories"
)

// DomainHandlers provides the built-in per-domain event handlers, routed by
// eventType prefix. Each records an analytics event for the owning tenant.
type DomainHandlers struct {
	analytics *repositories.AnalyticsRepository
}

func NewDomainHandlers(analytics *repositories.AnalyticsRepository) *DomainHandlers {
	return &DomainHandlers{analytics: analytics}
}

// Attach registers the built-in handlers on a processor.
func (h *DomainHandlers) Attach(p *Processor) {
	p.Register("payment.", h.HandlePayment)
	p.Register("shipping.", h.HandleShipping)
	p.Register("social.", h.HandleSocial)
	p.RegisterFallback(h.HandleGeneric)
}

func (h *DomainHandlers) HandlePayment(ctx context.Context, endpoint *models.WebhookEndpoint, event *models.WebhookEvent) error {
	var payload struct {
		Amount   float64 `json:"amount"`
		Currency string  `json:"currency"`
		OrderID  string  `json:"order_id"`
	}
	if err := json.Unmarshal(event.Payload, &payload); err != nil {
		return fmt.Errorf("malformed payment payload: %w", err)
	}

	meta, _ := json.Marshal(map[string]interface{}{
		"event_type": event.EventType,
		"amount":     payload.Amount,
		"currency":   payload.Currency,
		"order_id":   payload.OrderID,
	})
	return h.record(endpoint, "webhook.payment", string(meta))
}

func (h *DomainHandlers) HandleShipping(ctx context.Context, endpoint *models.WebhookEndpoint, event *models.WebhookEvent) error {
	var payload struct {
		TrackingNumber string `json:"tracking_number"`
		Carrier        string `json:"carrier"`
		Status         string `json:"status"`
	}
	if err := json.Unmarshal(event.Payload, &payload); err != nil {
		return fmt.Errorf("malformed shipping payload: %w", err)
	}

	meta, _ := json.Marshal(map[string]interface{}{
		"event_type": event.EventType,
		"tracking":   payload.TrackingNumber,
		"carrier":    payload.Carrier,
		"status":     payload.Status,
	})
	return h.record(endpoint, "webhook.shipping", string(meta))
}

func (h *DomainHandlers) HandleSocial(ctx context.Context, endpoint *models.WebhookEndpoint, event *models.WebhookEvent) error {
	meta, _ := json.Marshal(map[string]interface{}{"event_type": event.EventType})
	return h.record(endpoint, "webhook.social", string(meta))
}

func (h *DomainHandlers) HandleGeneric(ctx context.Context, endpoint *models.WebhookEndpoint, event *models.WebhookEvent) error {
	meta, _ := json.Marshal(map[string]interface{}{"event_type": event.EventType})
	return h.record(endpoint, "webhook.other", string(meta))
}

func (h *DomainHandlers) record(endpoint *models.WebhookEndpoint, eventType, metadata string) error {
	return h.analytics.Insert(&models.AnalyticsEvent{
		ID:        "ana_" + uuid.New().String(),
		TenantID:  endpoint.TenantID,
		EventType: eventType,
		Metadata:  metadata,
		CreatedAt: time.Now().Unix(),
	})
}
