package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/tradelink/leadexchange/pkg/auth"
	"github.com/tradelink/leadexchange/pkg/contextkeys"
	"github.com/tradelink/leadexchange/pkg/httputil"
	"github.com/tradelink/leadexchange/pkg/observability"
)

// SessionCookieName carries the session token for browser clients
const SessionCookieName = "leadx_session"

// AuthMiddleware resolves the session token into a Principal
type AuthMiddleware struct {
	sessions *auth.SessionManager
	optional bool // If true, allow requests without a session
}

// NewAuthMiddleware creates a new authentication middleware
func NewAuthMiddleware(sessions *auth.SessionManager, optional bool) *AuthMiddleware {
	return &AuthMiddleware{
		sessions: sessions,
		optional: optional,
	}
}

// Handler wraps an HTTP handler with authentication
func (m *AuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := SessionToken(r)
		if !ok {
			if m.optional {
				next.ServeHTTP(w, r)
				return
			}
			httputil.WriteUnauthorized(w, httputil.MessageUnauthenticated)
			return
		}

		principal, err := m.sessions.Resolve(r.Context(), token)
		if err != nil {
			if !errors.Is(err, auth.ErrSessionNotFound) {
				observability.FromContext(r.Context()).WithError(err).Error("session lookup failed")
				httputil.WriteInternalError(w)
				return
			}
			if m.optional {
				next.ServeHTTP(w, r)
				return
			}
			httputil.WriteUnauthorized(w, httputil.MessageUnauthenticated)
			return
		}

		ctx := contextkeys.WithPrincipal(r.Context(), principal)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// SessionToken extracts the token from "Authorization: Bearer <token>" or
// the session cookie, in that order.
func SessionToken(r *http.Request) (string, bool) {
	if header := r.Header.Get("Authorization"); header != "" {
		scheme, token, found := strings.Cut(header, " ")
		if found && strings.EqualFold(scheme, "Bearer") && token != "" {
			return strings.TrimSpace(token), true
		}
		return "", false
	}

	if cookie, err := r.Cookie(SessionCookieName); err == nil && cookie.Value != "" {
		return cookie.Value, true
	}
	return "", false
}

// GetPrincipal extracts the authenticated principal from the request
func GetPrincipal(r *http.Request) *auth.Principal {
	return contextkeys.GetPrincipal(r.Context())
}
