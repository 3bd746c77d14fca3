package auth

import "errors"

var (
	// ErrRateLimitExceeded is returned when an auth policy rejects a request
	ErrRateLimitExceeded = errors.New("rate limit exceeded")
	// ErrUnauthenticated means no principal is attached to the request
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrForbidden means the principal lacks the required entitlement
	ErrForbidden = errors.New("forbidden")
	// ErrCryptoFailure wraps failures of the underlying crypto primitives
	ErrCryptoFailure = errors.New("crypto failure")

	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidRole        = errors.New("invalid role")
	ErrUserNotFound       = errors.New("user not found")
	ErrSessionNotFound    = errors.New("session not found")
	ErrMalformedHash      = errors.New("malformed password hash")
)
