package models

import "encoding/json"

type WebhookEndpoint struct {
	ID           string `json:"id"`
	TenantID     string `json:"tenant_id"`
	Provider     string `json:"provider"`
	Secret       string `json:"-"`
	Status       string `json:"status"` // active, paused
	TriggerCount int    `json:"trigger_count"`
	SuccessCount int    `json:"success_count"`
	FailureCount int    `json:"failure_count"`
	CreatedAt    int64  `json:"created_at"`
	UpdatedAt    int64  `json:"updated_at"`
}

// Processing lifecycle: pending -> processing -> completed | failed.
const (
	EventPending    = "pending"
	EventProcessing = "processing"
	EventCompleted  = "completed"
	EventFailed     = "failed"
)

// WebhookEvent is uniquely keyed by the external EventID, which acts as the
// idempotency key: a replay with a known EventID never creates a second row.
type WebhookEvent struct {
	ID               string          `json:"id"`
	EndpointID       string          `json:"endpoint_id"`
	EventID          string          `json:"event_id"`
	EventType        string          `json:"event_type"`
	Payload          json.RawMessage `json:"payload"`
	ProcessingStatus string          `json:"processing_status"`
	ErrorMessage     string          `json:"error_message,omitempty"`
	CreatedAt        int64           `json:"created_at"`
	ProcessedAt      *int64          `json:"processed_at,omitempty"`
}
