package discovery

import (
	"log/slog"
)

// AuditLog writes structured events for the security-relevant edges of
// the token protocol: issuance, rejection, and the echo-suppression
// path that doubles as its self-announce detector (spec.md §4.5, §9).
// All methods are nil-safe: calling any method on a nil *AuditLog is a
// no-op, so callers never branch on whether auditing is enabled.
type AuditLog struct {
	logger *slog.Logger
}

// NewAuditLog creates an AuditLog writing to the given handler. Events
// are written under the "audit" group for easy filtering.
func NewAuditLog(handler slog.Handler) *AuditLog {
	return &AuditLog{logger: slog.New(handler).WithGroup("audit")}
}

// TokenIssued logs a probe reply handing out a fresh token.
func (a *AuditLog) TokenIssued(host string, port uint16) {
	if a == nil {
		return
	}
	a.logger.Info("token_issued", "host", host, "port", port)
}

// TokenRejected logs an announce/unannounce/lookup payload whose token
// matched neither the fresh nor the grace secret generation.
func (a *AuditLog) TokenRejected(host string) {
	if a == nil {
		return
	}
	a.logger.Warn("token_rejected", "host", host)
}

// EchoSuppressed logs a payload recognized as this instance's own
// reflected announcement rather than a remote peer's.
func (a *AuditLog) EchoSuppressed(topic, host string) {
	if a == nil {
		return
	}
	a.logger.Debug("echo_suppressed", "topic", topic, "host", host)
}

// TokenAnnounceAccepted logs a freshly-inserted peer accepted via a
// valid token.
func (a *AuditLog) TokenAnnounceAccepted(topic, host string, port uint16) {
	if a == nil {
		return
	}
	a.logger.Info("announce_accepted", "topic", topic, "host", host, "port", port)
}

// WhoamiInconsistent logs a whoami run where trackers disagreed on the
// observed host:port.
func (a *AuditLog) WhoamiInconsistent(observations int) {
	if a == nil {
		return
	}
	a.logger.Warn("whoami_inconsistent", "observations", observations)
}
