// Package contextkeys provides centralized context key definitions
//
// IMPORTANT: All context keys used across the application must be defined here.
// This prevents typos, documents dependencies, and makes key usage discoverable.
//
// USAGE PATTERN:
//
//	import "github.com/tradelink/leadexchange/pkg/contextkeys"
//	ctx = contextkeys.WithPrincipal(ctx, principal)
//	principal := contextkeys.GetPrincipal(ctx)
package contextkeys

import (
	"context"

	"github.com/tradelink/leadexchange/pkg/auth"
)

// Key is the type for context keys to prevent collisions
type Key string

const (
	// PrincipalKey contains *auth.Principal
	// Set by: middleware.AuthMiddleware (pkg/middleware/auth.go)
	// Required by: RequireEntitlement, /api/auth/me
	// Type: *auth.Principal
	PrincipalKey Key = "principal"

	// ParsedBodyKey contains the decoded request body
	// Set by: httputil.BodyParserMiddleware (pkg/httputil/bodyparser.go)
	// Used by: auth rate limit middleware for email extraction
	// Type: map[string]any
	ParsedBodyKey Key = "parsed_body"

	// RequestIDKey contains request ID string (UUID)
	// Set by: httputil.RequestIDMiddleware
	// Used by: Logger
	// Type: string
	RequestIDKey Key = "request_id"

	// UserIDKey contains user ID string
	// Set by: Session middleware after the session resolves
	// Used by: Logger
	// Type: string
	UserIDKey Key = "user_id"
)

// WithPrincipal adds the authenticated principal to the context
func WithPrincipal(ctx context.Context, principal *auth.Principal) context.Context {
	ctx = context.WithValue(ctx, PrincipalKey, principal)
	if principal != nil {
		ctx = WithUserID(ctx, principal.ID)
	}
	return ctx
}

// GetPrincipal retrieves the authenticated principal from context
func GetPrincipal(ctx context.Context) *auth.Principal {
	if principal, ok := ctx.Value(PrincipalKey).(*auth.Principal); ok {
		return principal
	}
	return nil
}

// WithParsedBody adds a decoded request body to the context
func WithParsedBody(ctx context.Context, body map[string]any) context.Context {
	return context.WithValue(ctx, ParsedBodyKey, body)
}

// GetParsedBody retrieves the decoded request body from context
func GetParsedBody(ctx context.Context) (map[string]any, bool) {
	body, ok := ctx.Value(ParsedBodyKey).(map[string]any)
	return body, ok
}

// WithRequestID adds request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// WithUserID adds user ID to the context
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, UserIDKey, userID)
}

// GetRequestID retrieves request ID from context
func GetRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(RequestIDKey).(string); ok {
		return requestID
	}
	return ""
}

// GetUserID retrieves user ID from context
func GetUserID(ctx context.Context) string {
	if userID, ok := ctx.Value(UserIDKey).(string); ok {
		return userID
	}
	return ""
}
