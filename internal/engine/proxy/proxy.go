package proxy

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"relay/internal/engine/ratelimit"
	"relay/internal/platform/metrics"
	"relay/internal/platform/models"
	"relay/internal/platform/repositories"
)

var (
	ErrConnectionNotFound = errors.New("connection not found")
	ErrConnectionInactive = errors.New("connection is not active")
	ErrMissingCredentials = errors.New("no credentials configured for connection")
)

// RateLimitedError carries the decision so callers can surface reset_at.
type RateLimitedError struct {
	Decision *ratelimit.Decision
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limit exceeded, resets at %d", e.Decision.ResetAt)
}

// UpstreamError wraps a failed or timed-out third-party call.
type UpstreamError struct {
	Err error
}

func (e *UpstreamError) Error() string { return "upstream call failed: " + e.Err.Error() }
func (e *UpstreamError) Unwrap() error { return e.Err }

type Request struct {
	ConnectionID string
	Method       string
	Endpoint     string
	Headers      map[string]string
	Body         json.RawMessage
	Timeout      time.Duration
	LimitType    string
}

type Response struct {
	StatusCode int                 `json:"status_code"`
	Headers    map[string]string   `json:"headers,omitempty"`
	Body       json.RawMessage     `json:"body,omitempty"`
	DurationMS int64               `json:"duration_ms"`
	RateLimit  *ratelimit.Decision `json:"rate_limit,omitempty"`
}

type Service struct {
	conns     *repositories.ConnectionRepository
	creds     *repositories.CredentialRepository
	logs      *repositories.IntegrationLogRepository
	analytics *repositories.AnalyticsRepository
	limiter   ratelimit.Limiter
	client    *http.Client

	defaultTimeout time.Duration
	maxTimeout     time.Duration
}

func NewService(
	conns *repositories.ConnectionRepository,
	creds *repositories.CredentialRepository,
	logs *repositories.IntegrationLogRepository,
	analytics *repositories.AnalyticsRepository,
	limiter ratelimit.Limiter,
	defaultTimeout, maxTimeout time.Duration,
) *Service {
	if defaultTimeout <= 0 {
		defaultTimeout = 30 * time.Second
	}
	if maxTimeout <= 0 {
		maxTimeout = 2 * time.Minute
	}
	return &Service{
		conns:          conns,
		creds:          creds,
		logs:           logs,
		analytics:      analytics,
		limiter:        limiter,
		client:         &http.Client{},
		defaultTimeout: defaultTimeout,
		maxTimeout:     maxTimeout,
	}
}

// Forward relays one credentialed request to the connection's provider and
// returns the upstream status and body transparently. The rate limit is
// consulted first: an exceeded window rejects before any upstream contact.
func (s *Service) Forward(ctx context.Context, req *Request) (*Response, error) {
	conn, err := s.conns.GetByID(req.ConnectionID)
	if err != nil {
		return nil, err
	}
	if conn == nil {
		return nil, ErrConnectionNotFound
	}
	if conn.Status != models.ConnectionActive {
		return nil, ErrConnectionInactive
	}

	cred, err := s.creds.GetByConnection(conn.ID)
	if err != nil {
		return nil, err
	}
	if cred == nil {
		return nil, ErrMissingCredentials
	}

	limitType := req.LimitType
	if limitType == "" {
		limitType = models.LimitMinute
	}

	decision, err := s.limiter.Check(ctx, conn.ID, limitType)
	if err != nil {
		// Fail open: a broken limiter store must not take the proxy down with
		// it. The failure is loud in the logs.
		log.Error().Err(err).Str("connection_id", conn.ID).Msg("rate limit check failed, allowing request")
		decision = nil
	}
	if decision != nil && !decision.Allowed {
		metrics.RateLimitRejections.WithLabelValues(limitType).Inc()
		return nil, &RateLimitedError{Decision: decision}
	}

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = s.defaultTimeout
	}
	if timeout > s.maxTimeout {
		timeout = s.maxTimeout
	}

	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	url := strings.TrimSuffix(conn.BaseURL, "/") + "/" + strings.TrimPrefix(req.Endpoint, "/")
	httpReq, err := http.NewRequestWithContext(callCtx, req.Method, url, bytes.NewReader(req.Body))
	if err != nil {
		return nil, err
	}

	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}
	if len(req.Body) > 0 && httpReq.Header.Get("Content-Type") == "" {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	injectCredential(httpReq, cred)

	start := time.Now()
	resp, err := s.client.Do(httpReq)
	elapsed := time.Since(start)

	metrics.UpstreamRequestDuration.WithLabelValues(conn.Provider).Observe(elapsed.Seconds())

	if err != nil {
		s.record(conn, req, 0, nil, elapsed, err)
		return nil, &UpstreamError{Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		s.record(conn, req, resp.StatusCode, nil, elapsed, err)
		return nil, &UpstreamError{Err: err}
	}

	s.record(conn, req, resp.StatusCode, body, elapsed, nil)

	return &Response{
		StatusCode: resp.StatusCode,
		Body:       body,
		DurationMS: elapsed.Milliseconds(),
		RateLimit:  decision,
	}, nil
}

// injectCredential attaches auth material according to the credential type:
// api_key credentials go into the provider's key header, token credentials
// into a standard bearer Authorization header.
func injectCredential(req *http.Request, cred *models.APICredential) {
	switch cred.CredentialType {
	case models.CredentialAPIKey:
		header := cred.KeyHeader
		if header == "" {
			header = "X-API-Key"
		}
		req.Header.Set(header, cred.Secret)
	case models.CredentialBearer, models.CredentialOAuth:
		req.Header.Set("Authorization", "Bearer "+cred.Secret)
	}
}

// record persists the request/response log row and the analytics counter.
// Best-effort: a failed write is logged, never propagated.
func (s *Service) record(conn *models.IntegrationConnection, req *Request, status int, body []byte, elapsed time.Duration, callErr error) {
	entry := &models.IntegrationLog{
		ID:             "log_" + uuid.New().String(),
		ConnectionID:   conn.ID,
		Direction:      "outbound",
		Method:         req.Method,
		Endpoint:       req.Endpoint,
		RequestBody:    string(req.Body),
		ResponseStatus: status,
		ResponseBody:   string(body),
		DurationMS:     elapsed.Milliseconds(),
		CreatedAt:      time.Now().Unix(),
	}
	if callErr != nil {
		entry.Error = callErr.Error()
	}
	if err := s.logs.Insert(entry); err != nil {
		log.Error().Err(err).Str("connection_id", conn.ID).Msg("failed to write integration log")
	}

	eventType := "proxy.request"
	if callErr != nil {
		eventType = "proxy.error"
	}
	meta, _ := json.Marshal(map[string]interface{}{
		"method":   req.Method,
		"endpoint": req.Endpoint,
		"status":   status,
	})
	err := s.analytics.Insert(&models.AnalyticsEvent{
		ID:           "ana_" + uuid.New().String(),
		TenantID:     conn.TenantID,
		ConnectionID: conn.ID,
		EventType:    eventType,
		Metadata:     string(meta),
		CreatedAt:    time.Now().Unix(),
	})
	if err != nil {
		log.Error().Err(err).Str("connection_id", conn.ID).Msg("failed to write analytics event")
	}
}
