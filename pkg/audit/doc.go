// Package audit records security-relevant account events: registrations,
// logins and failed logins, logouts, password hash upgrades and entitlement
// changes applied from billing webhooks.
//
// Events go to a Logger. StructuredLogger writes them into the application
// log stream with audit=true; FileLogger appends newline-delimited JSON with
// size-based rotation; MultiLogger combines both.
//
//	auditLog := audit.NewMultiLogger(
//		audit.NewStructuredLogger(logger),
//		fileLogger,
//	)
//	event := audit.NewEvent(r, audit.EventTypeAuthLoginFailed, audit.EventStatusFailure)
//	event.Email = email
//	auditLog.Log(ctx, event)
//
// Audit failures are logged by callers and never fail the request.
package audit
