// Package auth provides identities, password hashing and login sessions for
// the lead exchange.
//
// # Overview
//
// Accounts carry one role from a closed set (sales, builder, dual, admin,
// super_admin). Administrative roles bypass entitlement checks; every other
// capability comes from entitlements granted by a billing plan.
//
// # Password Hashing
//
// Passwords are derived with PBKDF2-SHA256 at 310,000 iterations, a fresh
// 16-byte salt per hash and a 32-byte key:
//
//	stored, err := auth.HashPassword("correct horse")
//	ok, err := auth.VerifyPassword("correct horse", stored)
//
// Verification compares digests in constant time and returns false for a
// wrong password rather than an error.
//
// # Sessions
//
// Login issues an opaque token (leadx_<base64url(32 random bytes)>). Only its
// SHA256 hash is stored, either in-process (bounded LRU with TTL) or in Redis:
//
//	manager := auth.NewSessionManager(auth.NewMemorySessionStore(10000, 0), 0)
//	token, session, err := manager.Create(ctx, user.Principal())
//	principal, err := manager.Resolve(ctx, token)
//
// # Related Packages
//
//   - pkg/middleware: session, rate limit and entitlement middleware
//   - pkg/storage/postgres: user and entitlement persistence
package auth
