package webhooks

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"relay/internal/platform/models"
	"relay/internal/platform/repositories"
)

func setupWebhookDB(t *testing.T) *sql.DB {
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(`
	CREATE TABLE webhook_endpoints (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		provider TEXT NOT NULL,
		secret TEXT DEFAULT '',
		status TEXT NOT NULL,
		trigger_count INTEGER DEFAULT 0,
		success_count INTEGER DEFAULT 0,
		failure_count INTEGER DEFAULT 0,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE TABLE webhook_events (
		id TEXT PRIMARY KEY,
		endpoint_id TEXT NOT NULL,
		event_id TEXT UNIQUE NOT NULL,
		event_type TEXT NOT NULL,
		payload TEXT,
		processing_status TEXT NOT NULL,
		error_message TEXT DEFAULT '',
		created_at INTEGER NOT NULL,
		processed_at INTEGER
	);
	CREATE TABLE integration_analytics (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		connection_id TEXT DEFAULT '',
		event_type TEXT NOT NULL,
		metadata TEXT,
		created_at INTEGER NOT NULL
	);
	`)
	require.NoError(t, err)
	return db
}

func newTestProcessor(t *testing.T, db *sql.DB) (*Processor, *repositories.WebhookEndpointRepository, *repositories.WebhookEventRepository) {
	endpoints := repositories.NewWebhookEndpointRepository(db)
	events := repositories.NewWebhookEventRepository(db)
	analytics := repositories.NewAnalyticsRepository(db)

	p := NewProcessor(endpoints, events)
	NewDomainHandlers(analytics).Attach(p)
	return p, endpoints, events
}

func seedEndpoint(t *testing.T, repo *repositories.WebhookEndpointRepository, secret string) *models.WebhookEndpoint {
	now := time.Now().Unix()
	ep := &models.WebhookEndpoint{
		ID:        "whep_1",
		TenantID:  "tnt_1",
		Provider:  "stripe",
		Secret:    secret,
		Status:    "active",
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, repo.Create(ep))
	return ep
}

func TestProcessor_CompletedEvent(t *testing.T) {
	db := setupWebhookDB(t)
	p, endpoints, events := newTestProcessor(t, db)
	seedEndpoint(t, endpoints, "")

	body := []byte(`{"amount":49.99,"currency":"usd","order_id":"ord_7"}`)
	res, err := p.Process(context.Background(), &Inbound{
		EndpointID: "whep_1",
		EventID:    "evt_1",
		EventType:  "payment.succeeded",
		Payload:    body,
		RawBody:    body,
	})
	require.NoError(t, err)
	assert.Equal(t, models.EventCompleted, res.Status)
	assert.False(t, res.Replayed)

	stored, err := events.GetByEventID("evt_1")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, models.EventCompleted, stored.ProcessingStatus)
	require.NotNil(t, stored.ProcessedAt)

	ep, err := endpoints.GetByID("whep_1")
	require.NoError(t, err)
	assert.Equal(t, 1, ep.TriggerCount)
	assert.Equal(t, 1, ep.SuccessCount)
	assert.Equal(t, 0, ep.FailureCount)
}

func TestProcessor_IdempotentReplay(t *testing.T) {
	db := setupWebhookDB(t)
	p, _, _ := newTestProcessor(t, db)
	endpoints := repositories.NewWebhookEndpointRepository(db)
	seedEndpoint(t, endpoints, "")

	body := []byte(`{"amount":10,"currency":"usd"}`)
	in := &Inbound{
		EndpointID: "whep_1",
		EventID:    "evt_dup",
		EventType:  "payment.succeeded",
		Payload:    body,
		RawBody:    body,
	}

	first, err := p.Process(context.Background(), in)
	require.NoError(t, err)
	assert.False(t, first.Replayed)

	second, err := p.Process(context.Background(), in)
	require.NoError(t, err)
	assert.True(t, second.Replayed)
	assert.Equal(t, first.Status, second.Status)

	// Still exactly one row for this event_id.
	var count int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM webhook_events WHERE event_id = ?`, "evt_dup").Scan(&count))
	assert.Equal(t, 1, count)

	// A replay does not count as a second ingestion.
	ep, err := endpoints.GetByID("whep_1")
	require.NoError(t, err)
	assert.Equal(t, 1, ep.TriggerCount)
}

func TestProcessor_TamperedSignature(t *testing.T) {
	db := setupWebhookDB(t)
	p, endpoints, _ := newTestProcessor(t, db)
	seedEndpoint(t, endpoints, "whsec_topsecret")

	body := []byte(`{"amount":10,"currency":"usd"}`)
	sig := Sign("whsec_topsecret", body)
	tampered := []byte(`{"amount":99999,"currency":"usd"}`)

	_, err := p.Process(context.Background(), &Inbound{
		EndpointID: "whep_1",
		EventID:    "evt_tampered",
		EventType:  "payment.succeeded",
		Payload:    tampered,
		Signature:  sig,
		RawBody:    tampered,
	})
	assert.ErrorIs(t, err, ErrInvalidSignature)

	// A rejected signature must not leave an event row behind.
	var count int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM webhook_events`).Scan(&count))
	assert.Equal(t, 0, count)
}

func TestProcessor_ValidSignature(t *testing.T) {
	db := setupWebhookDB(t)
	p, endpoints, _ := newTestProcessor(t, db)
	seedEndpoint(t, endpoints, "whsec_topsecret")

	body := []byte(`{"amount":10,"currency":"usd"}`)
	res, err := p.Process(context.Background(), &Inbound{
		EndpointID: "whep_1",
		EventID:    "evt_signed",
		EventType:  "payment.succeeded",
		Payload:    body,
		Signature:  Sign("whsec_topsecret", body),
		RawBody:    body,
	})
	require.NoError(t, err)
	assert.Equal(t, models.EventCompleted, res.Status)
}

func TestProcessor_FailedHandler(t *testing.T) {
	db := setupWebhookDB(t)
	p, endpoints, events := newTestProcessor(t, db)
	seedEndpoint(t, endpoints, "")

	body := []byte(`not json`)
	res, err := p.Process(context.Background(), &Inbound{
		EndpointID: "whep_1",
		EventID:    "evt_bad",
		EventType:  "payment.succeeded",
		Payload:    body,
		RawBody:    body,
	})
	require.NoError(t, err)
	assert.Equal(t, models.EventFailed, res.Status)
	assert.NotEmpty(t, res.Error)

	stored, err := events.GetByEventID("evt_bad")
	require.NoError(t, err)
	assert.Equal(t, models.EventFailed, stored.ProcessingStatus)
	assert.NotEmpty(t, stored.ErrorMessage)

	ep, err := endpoints.GetByID("whep_1")
	require.NoError(t, err)
	assert.Equal(t, 1, ep.TriggerCount)
	assert.Equal(t, 1, ep.FailureCount)
}

func TestProcessor_UnknownEndpoint(t *testing.T) {
	db := setupWebhookDB(t)
	p, _, _ := newTestProcessor(t, db)

	_, err := p.Process(context.Background(), &Inbound{
		EndpointID: "whep_missing",
		EventID:    "evt_x",
		EventType:  "payment.succeeded",
	})
	assert.ErrorIs(t, err, ErrEndpointNotFound)
}

func TestProcessor_PrefixRouting(t *testing.T) {
	db := setupWebhookDB(t)
	endpoints := repositories.NewWebhookEndpointRepository(db)
	events := repositories.NewWebhookEventRepository(db)
	seedEndpoint(t, endpoints, "")

	var routed string
	p := NewProcessor(endpoints, events)
	p.Register("shipping.", func(ctx context.Context, ep *models.WebhookEndpoint, ev *models.WebhookEvent) error {
		routed = "shipping"
		return nil
	})
	p.RegisterFallback(func(ctx context.Context, ep *models.WebhookEndpoint, ev *models.WebhookEvent) error {
		routed = "fallback"
		return nil
	})

	body := []byte(`{}`)
	_, err := p.Process(context.Background(), &Inbound{
		EndpointID: "whep_1", EventID: "evt_ship", EventType: "shipping.delivered", Payload: body, RawBody: body,
	})
	require.NoError(t, err)
	assert.Equal(t, "shipping", routed)

	_, err = p.Process(context.Background(), &Inbound{
		EndpointID: "whep_1", EventID: "evt_misc", EventType: "inventory.updated", Payload: body, RawBody: body,
	})
	require.NoError(t, err)
	assert.Equal(t, "fallback", routed)
}
