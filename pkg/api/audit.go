package api

import (
	"net/http"

	"github.com/tradelink/leadexchange/pkg/audit"
	"github.com/tradelink/leadexchange/pkg/observability"
)

// recordAudit writes event to logger. Failures are logged and never
// change the response.
func recordAudit(r *http.Request, logger audit.Logger, event *audit.AuditEvent) {
	if err := logger.Log(r.Context(), event); err != nil {
		observability.FromContext(r.Context()).WithError(err).
			WithField("event_type", string(event.EventType)).
			Warn("failed to write audit event")
	}
}
