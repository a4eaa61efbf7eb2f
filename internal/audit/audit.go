package audit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"solar-portal/internal/auth"
)

// Entry represents an audit log entry.
type Entry struct {
	ID             string
	Actor          string
	Role           string
	OrganizationID string
	Action         string
	ResourceType   string
	ResourceID     string
	Metadata       json.RawMessage
	PayloadDigest  string
	IP             string
	UserAgent      string
	CreatedAt      time.Time
}

// Logger writes audit entries.
type Logger interface {
	Log(ctx context.Context, entry Entry) error
}

// NewID generates an audit id.
func NewID() string {
	return "audit-" + uuid.NewString()
}

// DigestJSON computes a SHA256 hex digest for metadata payloads.
func DigestJSON(data []byte) string {
	if len(data) == 0 {
		return ""
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// FromRequest builds an entry for a mutation performed by the request principal.
func FromRequest(r *http.Request, action, resourceType, resourceID string, metadata any) Entry {
	entry := Entry{
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		IP:           ClientIP(r),
		UserAgent:    r.UserAgent(),
	}
	if p, ok := auth.PrincipalFromContext(r.Context()); ok {
		entry.Actor = p.ID
		entry.Role = string(p.Role)
		entry.OrganizationID = p.OrganizationID
	}
	if metadata != nil {
		if raw, err := json.Marshal(metadata); err == nil {
			entry.Metadata = raw
		}
	}
	return entry
}

// Record writes entry and only logs a failure. Audit never fails the request that produced it.
func Record(ctx context.Context, logger Logger, log logrus.FieldLogger, entry Entry) {
	if logger == nil {
		return
	}
	if err := logger.Log(ctx, entry); err != nil && log != nil {
		log.WithError(err).WithFields(logrus.Fields{
			"action":      entry.Action,
			"resource_id": entry.ResourceID,
		}).Warn("audit log failed")
	}
}

// LogrusLogger writes entries to a structured log. Used when no database is configured.
type LogrusLogger struct {
	log logrus.FieldLogger
}

// NewLogrusLogger constructs a LogrusLogger.
func NewLogrusLogger(log logrus.FieldLogger) *LogrusLogger {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &LogrusLogger{log: log.WithField("component", "audit")}
}

// Log writes an audit entry.
func (l *LogrusLogger) Log(_ context.Context, entry Entry) error {
	l.log.WithFields(logrus.Fields{
		"actor":         entry.Actor,
		"role":          entry.Role,
		"org_id":        entry.OrganizationID,
		"action":        entry.Action,
		"resource_type": entry.ResourceType,
		"resource_id":   entry.ResourceID,
		"digest":        DigestJSON(entry.Metadata),
		"ip":            entry.IP,
	}).Info("audit")
	return nil
}
