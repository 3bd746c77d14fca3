package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/tradelink/leadexchange/pkg/auth"
)

// Postgres SQLSTATE codes mapped to domain errors
const (
	uniqueViolation     = "23505"
	foreignKeyViolation = "23503"
)

// Pools hands out the connection pools for writes and lag-tolerant reads.
// *ConnectionManager satisfies it.
type Pools interface {
	Primary() *sql.DB
	Replica() *sql.DB
}

// UserStore persists accounts and their entitlements. Credential lookups
// go to the primary; profile reads may be served by a replica.
type UserStore struct {
	pools Pools
}

// NewUserStore creates a store
func NewUserStore(pools Pools) *UserStore {
	return &UserStore{pools: pools}
}

const userColumns = `id, email, full_name, role, password_hash, password_salt,
	password_iterations, created_at, updated_at, last_login_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*auth.User, error) {
	var (
		u         auth.User
		role      string
		hash      auth.PasswordHash
		lastLogin sql.NullTime
	)
	err := row.Scan(&u.ID, &u.Email, &u.FullName, &role, &hash.Hash, &hash.Salt,
		&hash.Iterations, &u.CreatedAt, &u.UpdatedAt, &lastLogin)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan user: %w", err)
	}

	if u.Role, err = auth.ParseRole(role); err != nil {
		return nil, err
	}
	u.Password = &hash
	if lastLogin.Valid {
		u.LastLoginAt = &lastLogin.Time
	}
	return &u, nil
}

// CreateUser inserts u, assigning an ID when it has none. A duplicate
// email yields auth.ErrEmailTaken.
func (s *UserStore) CreateUser(ctx context.Context, u *auth.User) error {
	if u.Password == nil {
		return fmt.Errorf("failed to create user: %w", auth.ErrMalformedHash)
	}
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}

	query := `
		INSERT INTO users (id, email, full_name, role, password_hash, password_salt, password_iterations)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at
	`
	err := s.pools.Primary().QueryRowContext(ctx, query,
		u.ID,
		auth.NormalizeEmail(u.Email),
		u.FullName,
		string(u.Role),
		u.Password.Hash,
		u.Password.Salt,
		u.Password.Iterations,
	).Scan(&u.CreatedAt, &u.UpdatedAt)

	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return auth.ErrEmailTaken
	}
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	u.Email = auth.NormalizeEmail(u.Email)
	return nil
}

// GetUserByEmail looks up an account for login
func (s *UserStore) GetUserByEmail(ctx context.Context, email string) (*auth.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1`
	return scanUser(s.pools.Primary().QueryRowContext(ctx, query, auth.NormalizeEmail(email)))
}

// GetUserByID looks up an account by primary key
func (s *UserStore) GetUserByID(ctx context.Context, id string) (*auth.User, error) {
	uid, err := uuid.Parse(id)
	if err != nil {
		return nil, auth.ErrUserNotFound
	}
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return scanUser(s.pools.Replica().QueryRowContext(ctx, query, uid))
}

// UpdatePasswordHash replaces the stored hash, e.g. after an iteration bump
func (s *UserStore) UpdatePasswordHash(ctx context.Context, id uuid.UUID, hash *auth.PasswordHash) error {
	query := `
		UPDATE users
		SET password_hash = $2, password_salt = $3, password_iterations = $4, updated_at = NOW()
		WHERE id = $1
	`
	return s.execOne(ctx, "update password", query, id, hash.Hash, hash.Salt, hash.Iterations)
}

// TouchLastLogin records a successful login
func (s *UserStore) TouchLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error {
	return s.execOne(ctx, "touch last login", `UPDATE users SET last_login_at = $2 WHERE id = $1`, id, at)
}

func (s *UserStore) execOne(ctx context.Context, op, query string, args ...any) error {
	res, err := s.pools.Primary().ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to %s: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to %s: %w", op, err)
	}
	if n == 0 {
		return auth.ErrUserNotFound
	}
	return nil
}

// GetUserProfile returns the role and entitlements of a user, or nil when
// the user does not exist
func (s *UserStore) GetUserProfile(ctx context.Context, userID string) (*auth.UserProfile, error) {
	uid, err := uuid.Parse(userID)
	if err != nil {
		return nil, nil
	}

	query := `
		SELECT u.role,
		       COALESCE(array_agg(e.entitlement ORDER BY e.entitlement)
		                FILTER (WHERE e.entitlement IS NOT NULL), '{}')
		FROM users u
		LEFT JOIN user_entitlements e ON e.user_id = u.id
		WHERE u.id = $1
		GROUP BY u.role
	`
	var (
		role         string
		entitlements []string
	)
	err = s.pools.Replica().QueryRowContext(ctx, query, uid).Scan(&role, pq.Array(&entitlements))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load profile: %w", err)
	}

	parsed, err := auth.ParseRole(role)
	if err != nil {
		return nil, err
	}
	return &auth.UserProfile{ID: uid.String(), Role: parsed, Entitlements: entitlements}, nil
}

// GrantEntitlement adds an entitlement; granting twice is a no-op. An
// unknown user yields auth.ErrUserNotFound.
func (s *UserStore) GrantEntitlement(ctx context.Context, userID uuid.UUID, entitlement string) error {
	query := `
		INSERT INTO user_entitlements (user_id, entitlement)
		VALUES ($1, $2)
		ON CONFLICT (user_id, entitlement) DO NOTHING
	`
	_, err := s.pools.Primary().ExecContext(ctx, query, userID, entitlement)

	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == foreignKeyViolation {
		return auth.ErrUserNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to grant entitlement: %w", err)
	}
	return nil
}

// RevokeEntitlement removes an entitlement if present
func (s *UserStore) RevokeEntitlement(ctx context.Context, userID uuid.UUID, entitlement string) error {
	query := `DELETE FROM user_entitlements WHERE user_id = $1 AND entitlement = $2`
	if _, err := s.pools.Primary().ExecContext(ctx, query, userID, entitlement); err != nil {
		return fmt.Errorf("failed to revoke entitlement: %w", err)
	}
	return nil
}
