package models

// Administrator-controlled connection status.
const (
	ConnectionActive   = "active"
	ConnectionInactive = "inactive"
	ConnectionError    = "error"
	ConnectionPending  = "pending"
	ConnectionTesting  = "testing"
)

// Monitor-derived health status. Independent of the admin status above.
const (
	HealthHealthy  = "healthy"
	HealthDegraded = "degraded"
	HealthDown     = "down"
	HealthUnknown  = "unknown"
)

type IntegrationConnection struct {
	ID                string `json:"id"`
	TenantID          string `json:"tenant_id"`
	Provider          string `json:"provider"`
	Name              string `json:"name"`
	BaseURL           string `json:"base_url,omitempty"`
	Status            string `json:"status"`
	HealthStatus      string `json:"health_status"`
	LastHealthCheckAt *int64 `json:"last_health_check_at,omitempty"`
	CreatedAt         int64  `json:"created_at"`
	UpdatedAt         int64  `json:"updated_at"`
}

// Credential types decide how the proxy injects auth headers.
const (
	CredentialAPIKey = "api_key"
	CredentialBearer = "bearer"
	CredentialOAuth  = "oauth"
)

type APICredential struct {
	ID             string `json:"id"`
	ConnectionID   string `json:"connection_id"`
	CredentialType string `json:"credential_type"`
	KeyHeader      string `json:"key_header,omitempty"` // header name for api_key credentials
	Secret         string `json:"-"`
	ExpiresAt      *int64 `json:"expires_at,omitempty"`
	CreatedAt      int64  `json:"created_at"`
}

type HealthCheck struct {
	ID             string `json:"id"`
	ConnectionID   string `json:"connection_id"`
	Status         string `json:"status"`
	ResponseTimeMS int64  `json:"response_time_ms"`
	StatusCode     int    `json:"status_code,omitempty"`
	Error          string `json:"error,omitempty"`
	CheckedAt      int64  `json:"checked_at"`
}

type IntegrationLog struct {
	ID             string `json:"id"`
	ConnectionID   string `json:"connection_id"`
	Direction      string `json:"direction"` // outbound (proxy) or inbound (webhook)
	Method         string `json:"method"`
	Endpoint       string `json:"endpoint"`
	RequestBody    string `json:"request_body,omitempty"`
	ResponseStatus int    `json:"response_status"`
	ResponseBody   string `json:"response_body,omitempty"`
	DurationMS     int64  `json:"duration_ms"`
	Error          string `json:"error,omitempty"`
	CreatedAt      int64  `json:"created_at"`
}

type AnalyticsEvent struct {
	ID           string `json:"id"`
	TenantID     string `json:"tenant_id"`
	ConnectionID string `json:"connection_id,omitempty"`
	EventType    string `json:"event_type"`
	Metadata     string `json:"metadata,omitempty"` // JSON blob in DB
	CreatedAt    int64  `json:"created_at"`
}
