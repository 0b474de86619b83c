package proxy

import (
	"context"
	"database/sql"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"relay/internal/engine/ratelimit"
	"relay/internal/platform/models"
	"relay/internal/platform/repositories"
)

func setupProxyDB(t *testing.T) *sql.DB {
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(`
	CREATE TABLE integration_connections (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		provider TEXT NOT NULL,
		name TEXT NOT NULL,
		base_url TEXT DEFAULT '',
		status TEXT NOT NULL,
		health_status TEXT NOT NULL,
		last_health_check_at INTEGER,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE TABLE api_credentials (
		id TEXT PRIMARY KEY,
		connection_id TEXT NOT NULL,
		credential_type TEXT NOT NULL,
		key_header TEXT DEFAULT '',
		secret TEXT NOT NULL,
		expires_at INTEGER,
		created_at INTEGER NOT NULL
	);
	CREATE TABLE rate_limits (
		id TEXT PRIMARY KEY,
		connection_id TEXT NOT NULL,
		limit_type TEXT NOT NULL,
		max_requests INTEGER NOT NULL,
		current_usage INTEGER DEFAULT 0,
		window_start INTEGER NOT NULL,
		window_end INTEGER NOT NULL,
		is_exceeded INTEGER DEFAULT 0,
		updated_at INTEGER NOT NULL,
		UNIQUE(connection_id, limit_type)
	);
	CREATE TABLE integration_logs (
		id TEXT PRIMARY KEY,
		connection_id TEXT NOT NULL,
		direction TEXT NOT NULL,
		method TEXT NOT NULL,
		endpoint TEXT NOT NULL,
		request_body TEXT,
		response_status INTEGER,
		response_body TEXT,
		duration_ms INTEGER,
		error TEXT DEFAULT '',
		created_at INTEGER NOT NULL
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

type proxyFixture struct {
	svc       *Service
	conns     *repositories.ConnectionRepository
	creds     *repositories.CredentialRepository
	limits    *repositories.RateLimitRepository
	logs      *repositories.IntegrationLogRepository
	analytics *repositories.AnalyticsRepository
}

func newProxyFixture(t *testing.T, db *sql.DB) *proxyFixture {
	f := &proxyFixture{
		conns:     repositories.NewConnectionRepository(db),
		creds:     repositories.NewCredentialRepository(db),
		limits:    repositories.NewRateLimitRepository(db),
		logs:      repositories.NewIntegrationLogRepository(db),
		analytics: repositories.NewAnalyticsRepository(db),
	}
	limiter := ratelimit.NewSQLLimiter(f.limits)
	f.svc = NewService(f.conns, f.creds, f.logs, f.analytics, limiter, 5*time.Second, 10*time.Second)
	return f
}

func (f *proxyFixture) seedConnection(t *testing.T, baseURL, status, credType, keyHeader string) {
	now := time.Now().Unix()
	require.NoError(t, f.conns.Create(&models.IntegrationConnection{
		ID: "conn_1", TenantID: "tnt_1", Provider: "stripe", Name: "payments",
		BaseURL: baseURL, Status: status, HealthStatus: models.HealthUnknown,
		CreatedAt: now, UpdatedAt: now,
	}))
	require.NoError(t, f.creds.Create(&models.APICredential{
		ID: "cred_1", ConnectionID: "conn_1", CredentialType: credType,
		KeyHeader: keyHeader, Secret: "sk_test_123", CreatedAt: now,
	}))
}

func TestForward_APIKeyInjection(t *testing.T) {
	var gotHeader string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeader = r.Header.Get("X-Provider-Key")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	f := newProxyFixture(t, setupProxyDB(t))
	f.seedConnection(t, srv.URL, models.ConnectionActive, models.CredentialAPIKey, "X-Provider-Key")

	resp, err := f.svc.Forward(context.Background(), &Request{
		ConnectionID: "conn_1",
		Method:       http.MethodGet,
		Endpoint:     "/v1/balance",
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"ok":true}`, string(resp.Body))
	assert.Equal(t, "sk_test_123", gotHeader)

	// Full request/response metadata is logged.
	logs, err := f.logs.ListByConnection("conn_1", 10)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "/v1/balance", logs[0].Endpoint)
	assert.Equal(t, http.StatusOK, logs[0].ResponseStatus)
}

func TestForward_BearerInjection(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	f := newProxyFixture(t, setupProxyDB(t))
	f.seedConnection(t, srv.URL, models.ConnectionActive, models.CredentialBearer, "")

	_, err := f.svc.Forward(context.Background(), &Request{
		ConnectionID: "conn_1", Method: http.MethodGet, Endpoint: "/v1/me",
	})
	require.NoError(t, err)
	assert.Equal(t, "Bearer sk_test_123", gotAuth)
}

func TestForward_RateLimited(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer srv.Close()

	f := newProxyFixture(t, setupProxyDB(t))
	f.seedConnection(t, srv.URL, models.ConnectionActive, models.CredentialAPIKey, "")

	now := time.Now().Unix()
	require.NoError(t, f.limits.Upsert(&models.RateLimit{
		ID: "rl_1", ConnectionID: "conn_1", LimitType: models.LimitMinute,
		MaxRequests: 5, CurrentUsage: 5, WindowStart: now - 10, WindowEnd: now + 50, IsExceeded: true,
	}))

	_, err := f.svc.Forward(context.Background(), &Request{
		ConnectionID: "conn_1", Method: http.MethodGet, Endpoint: "/v1/balance",
	})

	var rle *RateLimitedError
	require.ErrorAs(t, err, &rle)
	assert.Equal(t, now+50, rle.Decision.ResetAt)

	// The upstream must never be contacted when the window is exceeded.
	assert.False(t, called)
}

func TestForward_UpstreamStatusPassthrough(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte(`{"error":"upstream exploded"}`))
	}))
	defer srv.Close()

	f := newProxyFixture(t, setupProxyDB(t))
	f.seedConnection(t, srv.URL, models.ConnectionActive, models.CredentialAPIKey, "")

	resp, err := f.svc.Forward(context.Background(), &Request{
		ConnectionID: "conn_1", Method: http.MethodGet, Endpoint: "/v1/balance",
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
}

func TestForward_InactiveConnection(t *testing.T) {
	f := newProxyFixture(t, setupProxyDB(t))
	f.seedConnection(t, "http://unused", models.ConnectionInactive, models.CredentialAPIKey, "")

	_, err := f.svc.Forward(context.Background(), &Request{
		ConnectionID: "conn_1", Method: http.MethodGet, Endpoint: "/v1/balance",
	})
	assert.ErrorIs(t, err, ErrConnectionInactive)
}

func TestForward_MissingCredentials(t *testing.T) {
	f := newProxyFixture(t, setupProxyDB(t))
	now := time.Now().Unix()
	require.NoError(t, f.conns.Create(&models.IntegrationConnection{
		ID: "conn_bare", TenantID: "tnt_1", Provider: "stripe", Name: "x",
		Status: models.ConnectionActive, HealthStatus: models.HealthUnknown,
		CreatedAt: now, UpdatedAt: now,
	}))

	_, err := f.svc.Forward(context.Background(), &Request{
		ConnectionID: "conn_bare", Method: http.MethodGet, Endpoint: "/",
	})
	assert.ErrorIs(t, err, ErrMissingCredentials)
}

func TestBuildChargeRequest(t *testing.T) {
	req := &PaymentRequest{Amount: 49.99, Currency: "usd", OrderID: "ord_1", Description: "widgets"}

	endpoint, body, err := buildChargeRequest("stripe", req)
	require.NoError(t, err)
	assert.Equal(t, "/v1/charges", endpoint)
	assert.Contains(t, string(body), `"amount":4999`)

	endpoint, body, err = buildChargeRequest("paypal", req)
	require.NoError(t, err)
	assert.Equal(t, "/v2/checkout/orders", endpoint)
	assert.Contains(t, string(body), `"value":"49.99"`)

	_, _, err = buildChargeRequest("fax-machine", req)
	assert.Error(t, err)
}
