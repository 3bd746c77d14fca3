// Package postgres persists accounts, entitlements and leads in PostgreSQL
// through database/sql and lib/pq, and opens the shared Redis client.
//
// ConnectionManager sends writes and credential reads to the primary and
// spreads profile and catalogue reads across replicas. Migrate creates the
// schema idempotently and is safe to run on every start.
//
//	cm, err := postgres.NewConnectionManager(postgres.ConnectionConfig{
//		PrimaryURL: "postgres://localhost/leadexchange?sslmode=disable",
//		MaxConns:   20,
//		Timeout:    5 * time.Second,
//	}, logger)
//	users := postgres.NewUserStore(cm)
package postgres
