// Package api implements the lead exchange HTTP API.
//
// # Routes
//
//	POST /api/auth/register          register rate limit policy
//	POST /api/auth/login             login rate limit policy, sets leadx_session
//	POST /api/auth/logout            revokes the session, clears the cookie
//	GET  /api/auth/me                current user and entitlements
//	GET  /api/leads                  requires leads:view
//	POST /api/leads/{id}/purchase    requires leads:purchase
//	POST /api/billing/webhook        HMAC-SHA256 signed, raw body
//
// Every route runs behind panic recovery, request ids, bounded request
// logging, body parsing (skipped for the webhook) and optional session
// resolution. Error bodies are {"message": "..."} and never reveal whether
// an account exists or which rate limit tripped.
//
// # Usage
//
//	server := api.NewServer(api.ServerConfig{
//		Users:    postgres.NewUserStore(cm),
//		Leads:    postgres.NewLeadStore(cm),
//		Sessions: sessions,
//		Logger:   logger,
//	})
//	http.ListenAndServe(":8080", server)
package api
