package middleware

import (
	"context"
	"net/http"

	"github.com/tradelink/leadexchange/pkg/auth"
	"github.com/tradelink/leadexchange/pkg/httputil"
	"github.com/tradelink/leadexchange/pkg/observability"
)

// ProfileLookup loads a user's role and entitlements. A nil profile with a
// nil error means the user has no profile.
type ProfileLookup interface {
	GetUserProfile(ctx context.Context, userID string) (*auth.UserProfile, error)
}

// ProfileLookupFunc adapts a function to ProfileLookup
type ProfileLookupFunc func(ctx context.Context, userID string) (*auth.UserProfile, error)

func (f ProfileLookupFunc) GetUserProfile(ctx context.Context, userID string) (*auth.UserProfile, error) {
	return f(ctx, userID)
}

// ErrorHandler writes the response for a failed profile lookup
type ErrorHandler func(w http.ResponseWriter, r *http.Request, err error)

type entitlementOptions struct {
	missingMessage string
	deniedMessage  string
	onError        ErrorHandler
	metrics        *observability.Metrics
}

// EntitlementOption customizes RequireEntitlement
type EntitlementOption func(*entitlementOptions)

// WithMissingMessage sets the 403 message used when no profile exists
func WithMissingMessage(message string) EntitlementOption {
	return func(o *entitlementOptions) { o.missingMessage = message }
}

// WithDeniedMessage sets the 403 message used when the entitlement is absent
func WithDeniedMessage(message string) EntitlementOption {
	return func(o *entitlementOptions) { o.deniedMessage = message }
}

// WithErrorHandler replaces the default 500 response for lookup failures
func WithErrorHandler(handler ErrorHandler) EntitlementOption {
	return func(o *entitlementOptions) { o.onError = handler }
}

// WithEntitlementMetrics counts decisions by outcome
func WithEntitlementMetrics(m *observability.Metrics) EntitlementOption {
	return func(o *entitlementOptions) { o.metrics = m }
}

// defaultLookupErrorHandler answers 401 when the principal's account is gone
// and 500 otherwise. A failed lookup is never reported as a denial.
func defaultLookupErrorHandler(w http.ResponseWriter, r *http.Request, err error) {
	if httputil.StatusForError(err) == http.StatusUnauthorized {
		observability.FromContext(r.Context()).WithError(err).Warn("profile lookup rejected principal")
		httputil.WriteUnauthorized(w, httputil.MessageUnauthenticated)
		return
	}
	observability.FromContext(r.Context()).WithError(err).Error("profile lookup failed")
	httputil.WriteInternalError(w)
}

// RequireEntitlement admits the request when the principal's profile grants
// entitlement. Principals with an administrative role skip the lookup.
// Lookup errors go to the error handler and never become a 403.
func RequireEntitlement(lookup ProfileLookup, entitlement string, opts ...EntitlementOption) func(http.Handler) http.Handler {
	o := &entitlementOptions{
		missingMessage: "Entitlements not available",
		deniedMessage:  httputil.MessageForbidden,
		onError:        defaultLookupErrorHandler,
	}
	for _, opt := range opts {
		opt(o)
	}

	count := func(outcome string) {
		if o.metrics != nil {
			o.metrics.EntitlementChecksTotal.WithLabelValues(entitlement, outcome).Inc()
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal := GetPrincipal(r)
			if principal == nil {
				count("unauthenticated")
				httputil.WriteUnauthorized(w, httputil.MessageUnauthenticated)
				return
			}

			if auth.HasAdministrativeOverride(principal.Role) {
				count("override")
				next.ServeHTTP(w, r)
				return
			}

			profile, err := lookup.GetUserProfile(r.Context(), principal.ID)
			if err != nil {
				count("error")
				o.onError(w, r, err)
				return
			}
			if profile == nil {
				count("missing")
				httputil.WriteForbidden(w, o.missingMessage)
				return
			}
			if !profile.HasEntitlement(entitlement) {
				count("denied")
				httputil.WriteForbidden(w, o.deniedMessage)
				return
			}

			count("granted")
			next.ServeHTTP(w, r)
		})
	}
}
