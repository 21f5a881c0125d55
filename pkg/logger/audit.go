package logger

import (
	"context"
	"log/slog"
	"time"
)

// Audit categories
const (
	AuditAuth   = "auth"
	AuditTrust  = "trust"
	AuditLedger = "ledger"
	AuditAdmin  = "admin"
)

// AuditEvent represents a security or money-moving event.
type AuditEvent struct {
	Category      string
	EventType     string
	UserID        string
	Username      string
	TargetID      string
	IPAddress     string
	UserAgent     string
	Success       bool
	FailureReason string
	Metadata      map[string]string
}

// AuditLogger writes audit events to a dedicated slog stream.
type AuditLogger struct {
	logger *slog.Logger
}

func NewAuditLogger(logger *slog.Logger) *AuditLogger {
	return &AuditLogger{logger: logger}
}

// Log writes the event at info on success and warn on failure.
func (al *AuditLogger) Log(event AuditEvent) {
	attrs := []slog.Attr{
		slog.String("audit_type", event.Category),
		slog.String("event_type", event.EventType),
		slog.Bool("success", event.Success),
		slog.String("timestamp", time.Now().UTC().Format(time.RFC3339)),
	}

	optional := []struct{ key, val string }{
		{"user_id", event.UserID},
		{"username", event.Username},
		{"target_id", event.TargetID},
		{"ip_address", event.IPAddress},
		{"user_agent", event.UserAgent},
		{"failure_reason", event.FailureReason},
	}
	for _, o := range optional {
		if o.val != "" {
			attrs = append(attrs, slog.String(o.key, o.val))
		}
	}
	for key, val := range event.Metadata {
		attrs = append(attrs, slog.String(key, val))
	}

	level := slog.LevelInfo
	if !event.Success {
		level = slog.LevelWarn
	}
	al.logger.LogAttrs(context.Background(), level, "audit", attrs...)
}

// LogAuthAttempt records a login outcome.
func (al *AuditLogger) LogAuthAttempt(event AuditEvent) {
	event.Category = AuditAuth
	al.Log(event)
}
