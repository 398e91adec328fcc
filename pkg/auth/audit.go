package auth

import (
	"net/http"

	"github.com/platinummonkey/helios/pkg/httputil"
	"github.com/platinummonkey/helios/pkg/observability"
)

// Audit actions
const (
	AuditActionLogin    = "auth.login"
	AuditActionLogout   = "auth.logout"
	AuditActionRegister = "auth.register"
	AuditActionRefresh  = "auth.refresh"
	AuditActionVerify   = "auth.verify_email"
)

// AuditEvent describes a security-relevant authentication event
type AuditEvent struct {
	Action    string
	UserID    string
	Email     string
	IPAddress string
	UserAgent string
	Success   bool
	Reason    string
}

// AuditLogger writes authentication events to the structured log
type AuditLogger struct {
	logger *observability.Logger
}

// NewAuditLogger creates a new audit logger
func NewAuditLogger(logger *observability.Logger) *AuditLogger {
	if logger == nil {
		logger = observability.NewLogger(observability.InfoLevel, nil)
	}
	return &AuditLogger{logger: logger.WithField("component", "audit")}
}

// Log records event
func (al *AuditLogger) Log(event AuditEvent) {
	entry := al.logger.WithFields(map[string]interface{}{
		"action":     event.Action,
		"user_id":    event.UserID,
		"email":      event.Email,
		"ip_address": event.IPAddress,
		"user_agent": event.UserAgent,
		"success":    event.Success,
	})
	if event.Reason != "" {
		entry = entry.WithField("reason", event.Reason)
	}
	if event.Success {
		entry.Info("auth event")
		return
	}
	entry.Warn("auth event")
}

// LogFromRequest records event with client details taken from r
func (al *AuditLogger) LogFromRequest(r *http.Request, event AuditEvent) {
	event.IPAddress = httputil.ClientIP(r)
	event.UserAgent = r.UserAgent()
	al.Log(event)
}
