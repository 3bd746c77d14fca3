// Package httputil provides HTTP utilities for standardized request/response handling.
//
// # Response Helpers
//
// Every non-success response is {"message": "..."}:
//
//	httputil.WriteUnauthorized(w, "Invalid email or password")
//	httputil.WriteTooManyRequests(w, retryAfter) // sets Retry-After
//	httputil.WriteInternalError(w)               // never echoes the error
//
// # Request Guards
//
// The billing webhook must reach its handler unparsed so the signature can be
// checked against the raw body:
//
//	httputil.ShouldSkipBodyParsers("/api/billing/webhook?x=1") // true
//	httputil.ShouldSkipBodyParsers("/api/billing/webhook/x")   // false
//
// API log lines carry method, path, status and duration only, and are capped
// at 80 runes:
//
//	httputil.BuildAPILogLine(httputil.APILogEntry{Method: "POST", Path: "/api/auth/login", StatusCode: 200, DurationMs: 18})
//	// "POST /api/auth/login 200 in 18ms"
//
// # Middleware
//
//	router.Use(
//		httputil.RecoveryMiddleware(logger),
//		httputil.RequestIDMiddleware,
//		httputil.APILoggingMiddleware(logger),
//		httputil.BodyParserMiddleware(1<<20),
//	)
package httputil
