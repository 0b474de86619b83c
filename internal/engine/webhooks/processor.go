package webhooks

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"relay/internal/platform/metrics"
	"relay/internal/platform/models"
	"relay/internal/platform/repositories"
)

var (
	ErrEndpointNotFound = errors.New("webhook endpoint not found")
	ErrInvalidSignature = errors.New("webhook signature mismatch")
)

type Inbound struct {
	EndpointID string
	EventID    string
	EventType  string
	Payload    json.RawMessage
	Signature  string
	RawBody    []byte
}

type Result struct {
	EventID  string `json:"event_id"`
	Status   string `json:"status"`
	Replayed bool   `json:"replayed"`
	Error    string `json:"error,omitempty"`
}

// DomainHandler processes one verified, deduplicated event.
type DomainHandler func(ctx context.Context, endpoint *models.WebhookEndpoint, event *models.WebhookEvent) error

type Processor struct {
	endpoints *repositories.WebhookEndpointRepository
	events    *repositories.WebhookEventRepository
	handlers  map[string]DomainHandler // keyed by eventType prefix, e.g. "payment."
	fallback  DomainHandler
}

func NewProcessor(endpoints *repositories.WebhookEndpointRepository, events *repositories.WebhookEventRepository) *Processor {
	return &Processor{
		endpoints: endpoints,
		events:    events,
		handlers:  make(map[string]DomainHandler),
	}
}

func (p *Processor) Register(prefix string, h DomainHandler) {
	p.handlers[prefix] = h
}

func (p *Processor) RegisterFallback(h DomainHandler) {
	p.fallback = h
}

// Process runs the full ingestion pipeline: signature verification, dedup by
// event_id, pending -> processing -> completed|failed transitions, and
// endpoint counter updates. A replayed event_id short-circuits with the
// status recorded the first time around and never creates a second row.
func (p *Processor) Process(ctx context.Context, in *Inbound) (*Result, error) {
	endpoint, err := p.endpoints.GetByID(in.EndpointID)
	if err != nil {
		return nil, err
	}
	if endpoint == nil {
		return nil, ErrEndpointNotFound
	}

	if endpoint.Secret != "" {
		if !Verify(endpoint.Secret, in.RawBody, in.Signature) {
			return nil, ErrInvalidSignature
		}
	}

	existing, err := p.events.GetByEventID(in.EventID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return &Result{
			EventID:  existing.EventID,
			Status:   existing.ProcessingStatus,
			Replayed: true,
			Error:    existing.ErrorMessage,
		}, nil
	}

	event := &models.WebhookEvent{
		ID:               "whe_" + uuid.New().String(),
		EndpointID:       endpoint.ID,
		EventID:          in.EventID,
		EventType:        in.EventType,
		Payload:          in.Payload,
		ProcessingStatus: models.EventPending,
		CreatedAt:        time.Now().Unix(),
	}
	if err := p.events.Create(event); err != nil {
		return nil, err
	}

	// The trigger counter counts ingestions, not successes.
	if err := p.endpoints.IncrementTrigger(endpoint.ID); err != nil {
		log.Error().Err(err).Str("endpoint_id", endpoint.ID).Msg("failed to bump trigger counter")
	}

	if err := p.events.UpdateStatus(event.ID, models.EventProcessing); err != nil {
		return nil, err
	}

	handler := p.route(in.EventType)
	procErr := handler(ctx, endpoint, event)

	if procErr != nil {
		if err := p.events.MarkProcessed(event.ID, models.EventFailed, procErr.Error()); err != nil {
			log.Error().Err(err).Str("event_id", in.EventID).Msg("failed to record event failure")
		}
		if err := p.endpoints.IncrementFailure(endpoint.ID); err != nil {
			log.Error().Err(err).Str("endpoint_id", endpoint.ID).Msg("failed to bump failure counter")
		}
		metrics.WebhookEventsProcessed.WithLabelValues(models.EventFailed).Inc()
		return &Result{EventID: in.EventID, Status: models.EventFailed, Error: procErr.Error()}, nil
	}

	if err := p.events.MarkProcessed(event.ID, models.EventCompleted, ""); err != nil {
		log.Error().Err(err).Str("event_id", in.EventID).Msg("failed to record event completion")
	}
	if err := p.endpoints.IncrementSuccess(endpoint.ID); err != nil {
		log.Error().Err(err).Str("endpoint_id", endpoint.ID).Msg("failed to bump success counter")
	}
	metrics.WebhookEventsProcessed.WithLabelValues(models.EventCompleted).Inc()
	return &Result{EventID: in.EventID, Status: models.EventCompleted}, nil
}

func (p *Processor) route(eventType string) DomainHandler {
	for prefix, handler := range p.handlers {
		if strings.HasPrefix(eventType, prefix) {
			return handler
		}
	}
	if p.fallback != nil {
		return p.fallback
	}
	return func(context.Context, *models.WebhookEndpoint, *models.WebhookEvent) error { return nil }
}
