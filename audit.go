package authflow

import (
	"context"
	"strings"

	"github.com/MrEthical07/authflow/internal/audit"
)

// Audit event types emitted by the Coordinator.
const (
	AuditSignIn          = "auth.sign_in"
	AuditSignUp          = "auth.sign_up"
	AuditOTPRequest      = "auth.otp_request"
	AuditSignOut         = "auth.sign_out"
	AuditRateLimited     = "auth.rate_limited"
	AuditSessionRestored = "auth.session_restored"
)

type (
	// AuditEvent is one authentication outcome. Identifier is always masked.
	AuditEvent = audit.Event
	// AuditSink receives audit events from the dispatcher goroutine.
	AuditSink = audit.Sink
	// NoOpSink discards every event.
	NoOpSink = audit.NoOpSink
	// ChannelSink delivers events on a buffered channel.
	ChannelSink = audit.ChannelSink
	// JSONWriterSink writes one JSON object per line.
	JSONWriterSink = audit.JSONWriterSink
	// SlogSink logs each event through a *slog.Logger.
	SlogSink = audit.SlogSink
)

var (
	NewChannelSink    = audit.NewChannelSink
	NewJSONWriterSink = audit.NewJSONWriterSink
	NewSlogSink       = audit.NewSlogSink
)

func (c *Coordinator) emitAudit(ctx context.Context, eventType string, method Method, identifier, userID string, err error) {
	if c.audit == nil {
		return
	}
	event := AuditEvent{
		Timestamp:  c.now().UTC(),
		EventType:  eventType,
		Method:     string(method),
		UserID:     userID,
		Identifier: maskIdentifier(identifier),
		Success:    err == nil,
	}
	if err != nil {
		event.ErrorKind = string(KindOf(err))
	}
	c.audit.Emit(ctx, event)
}

// maskIdentifier keeps enough of an email or phone number to correlate events
// without storing it: the first character of an email local part and its
// domain, or the last four digits of a number.
func maskIdentifier(id string) string {
	if id == "" {
		return ""
	}
	if at := strings.LastIndexByte(id, '@'); at > 0 {
		return id[:1] + "***" + id[at:]
	}
	if len(id) <= 4 {
		return "****"
	}
	return strings.Repeat("*", len(id)-4) + id[len(id)-4:]
}
