package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	apiContext "relay/internal/api/context"
	"relay/internal/platform/auth"
)

type Entry struct {
	ID           string                 `json:"id"`
	TenantID     string                 `json:"tenant_id"`
	UserID       string                 `json:"user_id"`
	Action       string                 `json:"action"`
	ResourceType string                 `json:"resource_type"`
	ResourceID   string                 `json:"resource_id"`
	Metadata     map[string]interface{} `json:"metadata"`
	CreatedAt    int64                  `json:"created_at"`
}

type Logger struct {
	globalDB *sql.DB
}

func NewLogger(db *sql.DB) *Logger {
	return &Logger{globalDB: db}
}

// Log records an admin action asynchronously. Best-effort: a failed insert is
// logged, never surfaced to the request path.
func (l *Logger) Log(ctx context.Context, action, resourceType, resourceID string, metadata map[string]interface{}) {
	var tenantID, userID string
	if claims, ok := ctx.Value(apiContext.Claims).(*auth.Claims); ok {
		tenantID = claims.TenantID
		userID = claims.UserID
	}

	metaJSON, _ := json.Marshal(metadata)

	entry := &Entry{
		ID:           "audit_" + uuid.New().String(),
		TenantID:     tenantID,
		UserID:       userID,
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Metadata:     metadata,
		CreatedAt:    time.Now().Unix(),
	}

	go func() {
		_, err := l.globalDB.Exec(`
			INSERT INTO audit_logs (id, tenant_id, user_id, action, resource_type, resource_id, metadata, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`, entry.ID, entry.TenantID, entry.UserID, entry.Action, entry.ResourceType, entry.ResourceID, string(metaJSON), entry.CreatedAt)
		if err != nil {
			log.Error().Err(err).Str("action", action).Msg("audit log write failed")
		}
	}()
}
