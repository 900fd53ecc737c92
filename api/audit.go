package api

import (
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// AuditEvent identifies the type of security-relevant action being logged.
type AuditEvent string

const (
	AuditLoginSuccess    AuditEvent = "login_success"
	AuditLoginFailure    AuditEvent = "login_failure"
	AuditLogout          AuditEvent = "logout"
	AuditLogoutAll       AuditEvent = "logout_all"
	AuditKeyIssued       AuditEvent = "key_issued"
	AuditKeyRevoked      AuditEvent = "key_revoked"
	AuditKeyRevokeFailed AuditEvent = "key_revoke_failed"
	AuditAuthDenied      AuditEvent = "auth_denied"
	AuditCSRFRejected    AuditEvent = "csrf_rejected"
	AuditScopeDenied     AuditEvent = "scope_denied"
)

// auditLogger wraps slog.Logger for structured security audit logging.
// Passwords, key secrets and secret hashes never reach it.
type auditLogger struct {
	logger  *slog.Logger
	metrics *metricsCollector
	forward *auditForwarder
}

func newAuditLogger(logger *slog.Logger) *auditLogger {
	return &auditLogger{
		logger: logger.With("component", "audit"),
	}
}

func (al *auditLogger) log(event AuditEvent, r *http.Request, attrs ...slog.Attr) {
	now := time.Now().UTC()
	baseAttrs := []slog.Attr{
		slog.String("event", string(event)),
		slog.String("remote_addr", r.RemoteAddr),
		slog.String("timestamp", now.Format(time.RFC3339)),
	}
	baseAttrs = append(baseAttrs, attrs...)
	al.logger.LogAttrs(r.Context(), slog.LevelInfo, "audit", baseAttrs...)

	if al.metrics != nil {
		al.metrics.recordEvent(event)
	}
	if al.forward != nil {
		al.forward.publish(newAuditRecord(event, r, now, attrs))
	}
}

func newAuditRecord(event AuditEvent, r *http.Request, at time.Time, attrs []slog.Attr) auditRecord {
	rec := auditRecord{Event: event, At: at, RemoteAddr: r.RemoteAddr}
	for _, a := range attrs {
		v := a.Value.String()
		switch a.Key {
		case "principal":
			rec.Principal = v
		case "username":
			rec.Username = v
		case "key_id":
			rec.KeyID = v
		case "scope":
			rec.Scope = v
		case "scopes":
			rec.Scopes = strings.Fields(v)
		case "path":
			rec.Path = v
		case "reason":
			rec.Reason = v
		}
	}
	return rec
}

// logEvent records an action taken by principal (see auth.Principal.ID).
func (al *auditLogger) logEvent(event AuditEvent, r *http.Request, principal string, extra ...slog.Attr) {
	attrs := []slog.Attr{
		slog.String("principal", principal),
	}
	attrs = append(attrs, extra...)
	al.log(event, r, attrs...)
}

// logFailure logs a rejected request.
func (al *auditLogger) logFailure(event AuditEvent, r *http.Request, reason string, extra ...slog.Attr) {
	attrs := []slog.Attr{
		slog.String("reason", reason),
	}
	attrs = append(attrs, extra...)
	al.log(event, r, attrs...)
}
