package postgres

import (
	"context"
	"database/sql"
	"fmt"
)

// schemaStatements create the auth, entitlement and lead tables. Each is
// idempotent so Migrate can run on every start.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id                  UUID PRIMARY KEY,
		email               TEXT NOT NULL UNIQUE,
		full_name           TEXT NOT NULL DEFAULT '',
		role                TEXT NOT NULL DEFAULT '',
		password_hash       TEXT NOT NULL,
		password_salt       TEXT NOT NULL,
		password_iterations INTEGER NOT NULL,
		created_at          TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at          TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		last_login_at       TIMESTAMPTZ
	)`,
	`CREATE TABLE IF NOT EXISTS user_entitlements (
		user_id     UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		entitlement TEXT NOT NULL,
		granted_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		PRIMARY KEY (user_id, entitlement)
	)`,
	`CREATE TABLE IF NOT EXISTS leads (
		id           UUID PRIMARY KEY,
		title        TEXT NOT NULL,
		trade        TEXT NOT NULL,
		region       TEXT NOT NULL,
		price_cents  INTEGER NOT NULL,
		posted_by    UUID REFERENCES users(id),
		purchased_by UUID REFERENCES users(id),
		purchased_at TIMESTAMPTZ,
		created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_leads_available ON leads (created_at DESC) WHERE purchased_by IS NULL`,
}

// Migrate applies the schema inside one transaction
func Migrate(ctx context.Context, db *sql.DB) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin migration: %w", err)
	}
	defer tx.Rollback()

	for i, stmt := range schemaStatements {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration step %d failed: %w", i+1, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit migration: %w", err)
	}
	return nil
}
