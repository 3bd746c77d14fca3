// Package middleware provides HTTP middleware for authentication, entitlement
// checks, and auth rate limiting.
//
// # Overview
//
// AuthMiddleware resolves a session token (Bearer header or the leadx_session
// cookie) into an auth.Principal. RequireEntitlement gates routes
// on that principal. LoginRateLimiter and RegisterRateLimiter throttle
// credential endpoints per client IP and per submitted email.
//
// # Rate limiting
//
// SlidingWindowRateLimiter opens a window at an identifier's first request
// and counts until the window elapses. Records live in a RateLimitStore:
//
//	limiter := middleware.NewSlidingWindowRateLimiter(
//		&middleware.RateLimitConfig{Max: 5, Window: 15 * time.Minute},
//		middleware.NewMemoryStore(),
//	)
//
// RedisStore shares records across instances using optimistic WATCH/MULTI
// transactions. Store errors never block a request; they are logged and the
// request proceeds.
//
// The login policy consults two limiters. Every request is consumed against
// the attempt limiter. The failure limiter is only read before the handler
// runs; afterwards a 401 increments it and a 200 clears it:
//
//	login := middleware.NewLoginRateLimiter(nil, middleware.RedisStoreFactory(rdb, "ratelimit"), logger)
//	router.Handle("/api/auth/login", login.Handler(loginHandler)).Methods("POST")
//
// Rejected requests receive 429 with a Retry-After header and a generic
// message that does not say which limit tripped.
//
// # Entitlements
//
//	router.Handle("/api/leads", middleware.RequireEntitlement(users, auth.EntitlementLeadsView)(h))
//
// No principal yields 401. Administrative roles bypass the lookup. A missing
// profile or entitlement yields 403, and a lookup error yields 500.
package middleware
