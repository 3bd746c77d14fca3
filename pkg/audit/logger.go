package audit

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/tradelink/leadexchange/pkg/contextkeys"
)

// Logger is the interface for audit logging
type Logger interface {
	// Log records an audit event
	Log(ctx context.Context, event *AuditEvent) error

	// Close closes the logger and flushes any buffered events
	Close() error
}

// NoOpLogger discards every event
type NoOpLogger struct{}

func (NoOpLogger) Log(context.Context, *AuditEvent) error { return nil }

func (NoOpLogger) Close() error { return nil }

// NewEvent creates an event populated from the request: method, path, user
// agent, peer address and the request and user ids set by middleware.
// Forwarded headers are not consulted for the address.
func NewEvent(r *http.Request, eventType EventType, status EventStatus) *AuditEvent {
	event := &AuditEvent{
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		Status:    status,
		Metadata:  make(map[string]interface{}),
	}
	if r == nil {
		return event
	}

	ctx := r.Context()
	event.RequestID = contextkeys.GetRequestID(ctx)
	event.UserID = contextkeys.GetUserID(ctx)
	event.Method = r.Method
	event.Path = r.URL.Path
	event.UserAgent = r.UserAgent()
	event.IPAddress = r.RemoteAddr
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		event.IPAddress = host
	}
	return event
}
