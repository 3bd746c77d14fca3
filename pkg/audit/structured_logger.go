package audit

import (
	"context"

	"github.com/tradelink/leadexchange/pkg/observability"
)

// StructuredLogger writes events into the application log stream, tagged
// with audit=true so they can be routed separately downstream
type StructuredLogger struct {
	logger *observability.Logger
}

// NewStructuredLogger creates an audit logger on top of logger
func NewStructuredLogger(logger *observability.Logger) *StructuredLogger {
	if logger == nil {
		logger = observability.NewLogger(observability.InfoLevel, nil)
	}
	return &StructuredLogger{logger: logger.WithField("audit", true)}
}

// Log logs the event at info level, or warn for failures and denials
func (l *StructuredLogger) Log(_ context.Context, event *AuditEvent) error {
	fields := map[string]interface{}{
		"event_type": string(event.EventType),
		"status":     string(event.Status),
	}
	for key, value := range map[string]string{
		"user_id":    event.UserID,
		"email":      event.Email,
		"ip_address": event.IPAddress,
		"request_id": event.RequestID,
		"path":       event.Path,
	} {
		if value != "" {
			fields[key] = value
		}
	}
	for key, value := range event.Metadata {
		fields["meta_"+key] = value
	}

	entry := l.logger.WithFields(fields)
	message := event.Message
	if message == "" {
		message = string(event.EventType)
	}
	if event.Status == EventStatusSuccess {
		entry.Info(message)
	} else {
		entry.Warn(message)
	}
	return nil
}

// Close is a no-op; the underlying logger is owned by the caller
func (l *StructuredLogger) Close() error {
	return nil
}
