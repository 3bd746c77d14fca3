// Package config loads application configuration from defaults, an optional
// YAML file and environment variables, in that order of precedence.
//
// # Configuration Structure
//
// Server settings:
//
//	LEADX_HOST="0.0.0.0"
//	LEADX_PORT="8080"
//	LEADX_HEALTH_PORT="9090"
//	LEADX_MAX_BODY_BYTES="1048576"
//	LEADX_TRUST_PROXY="false"
//
// Database settings:
//
//	LEADX_DATABASE_URL="postgres://localhost/leadexchange?sslmode=disable"
//	LEADX_DATABASE_REPLICA_URLS="postgres://replica1/leadexchange,postgres://replica2/leadexchange"
//	LEADX_DATABASE_MAX_CONNS="25"
//	LEADX_DATABASE_MIGRATE="true"
//
// Redis, sessions and rate limiting:
//
//	LEADX_REDIS_URL="redis://localhost:6379"
//	LEADX_SESSION_STORE="redis"     # memory, redis
//	LEADX_SESSION_TTL="24h"
//	LEADX_RATE_LIMIT_STORE="redis"  # memory, redis
//	LEADX_LOGIN_MAX_FAILURES="5"
//	LEADX_BILLING_WEBHOOK_SECRET="whsec_..."
//
// Audit trail:
//
//	LEADX_AUDIT_DIR="/var/log/leadexchange/audit"  # empty logs audit events to stdout only
//	LEADX_AUDIT_MAX_FILES="10"
//
// Observability settings:
//
//	LEADX_LOG_LEVEL="info"  # debug, info, warn, error
//	LEADX_METRICS_ENABLED="true"
//
// # Config File
//
// LEADX_CONFIG_FILE names a YAML document using the field names of Config:
//
//	server:
//	  port: "8080"
//	  trust_proxy: true
//	database:
//	  url: postgres://db/leadexchange
//	rate_limit:
//	  store: redis
//	  login_window: 15m
//
// Environment variables override values from the file.
package config
